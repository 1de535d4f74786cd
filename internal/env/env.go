package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes the environment handed to background services: the caller's
// OS environment, then harness-wide variables, then per-service overrides.
type Env struct {
	Var  Var // harness-wide variables (K->V)
	base Var // cached OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.base = parse(os.Environ())
}

// Set sets a harness-wide variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Merge returns the final "K=V" list, sorted by key. ${VAR} references in
// harness-wide and override values are replaced when VAR is known; the
// inherited OS environment is passed through verbatim.
func (e *Env) Merge(overrides ...string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.Var)+len(overrides))
	for k, v := range e.base {
		m[k] = v
	}
	set := make(Var, len(e.Var)+len(overrides))
	for k, v := range e.Var {
		if k != "" {
			set[k] = v
		}
	}
	for k, v := range parse(overrides) {
		set[k] = v
	}
	for k, v := range set {
		m[k] = v
	}
	for k, v := range set {
		m[k] = expand(v, m)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

func parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// expand replaces ${KEY} for keys present in m. Unknown references and bare
// $ signs are left alone.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			break
		}
		key := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := m[key]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
	b.WriteString(s)
	return b.String()
}
