package harness

import (
	"errors"
	"fmt"
)

// ErrFailureSignature aborts a run whose test output contains the
// configured failure signature.
var ErrFailureSignature = errors.New("failure signature in test output")

type SignatureError struct {
	Test      string
	Signature string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("test %s: output contains %q", e.Test, e.Signature)
}

func (e *SignatureError) Unwrap() error { return ErrFailureSignature }
