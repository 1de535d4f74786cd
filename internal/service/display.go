package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alessio/shellescape"

	"github.com/loykin/seleniumrun/internal/detector"
	"github.com/loykin/seleniumrun/internal/process"
)

const (
	DefaultDisplayBinary = "/usr/bin/Xvfb"
	DefaultDisplayWidth  = 1600
	DefaultDisplayHeight = 1200
	DefaultDisplayDepth  = 24
)

type DisplayOptions struct {
	Common
	Binary string
	Number int
	Width  int
	Height int
	Depth  int
	// ReadyCommand optionally gates readiness on a shell command such as
	// "xdpyinfo", run with DISPLAY set to this display. Empty means ready
	// once spawned.
	ReadyCommand string
}

func (o *DisplayOptions) withDefaults() {
	if o.Binary == "" {
		o.Binary = DefaultDisplayBinary
	}
	if o.Width <= 0 {
		o.Width = DefaultDisplayWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultDisplayHeight
	}
	if o.Depth <= 0 {
		o.Depth = DefaultDisplayDepth
	}
}

// Display is an Xvfb virtual frame buffer.
type Display struct {
	*process.Process
	number int
	width  int
	height int
}

// LaunchDisplay starts Xvfb on the requested display number.
func LaunchDisplay(ctx context.Context, opts DisplayOptions) (*Display, error) {
	opts.withDefaults()
	if opts.Number < 0 {
		return nil, fmt.Errorf("invalid display number %d", opts.Number)
	}
	var ready detector.Detector
	if opts.ReadyCommand != "" {
		ready = detector.CommandDetector{
			Command: opts.ReadyCommand,
			Env:     []string{"DISPLAY=:" + strconv.Itoa(opts.Number)},
		}
	}
	spec := opts.spec("xvfb", displayCommand(opts), nil, ready)
	p, err := process.Launch(ctx, spec, process.WithLogger(opts.logger()))
	if err != nil {
		return nil, err
	}
	return &Display{Process: p, number: opts.Number, width: opts.Width, height: opts.Height}, nil
}

func displayCommand(o DisplayOptions) string {
	screen := fmt.Sprintf("%dx%dx%d", o.Width, o.Height, o.Depth)
	return shellescape.QuoteCommand([]string{o.Binary, ":" + strconv.Itoa(o.Number), "-ac", "-screen", "0", screen})
}

func (d *Display) Display() string { return ":" + strconv.Itoa(d.number) }
func (d *Display) Number() int     { return d.number }
func (d *Display) Width() int      { return d.width }
func (d *Display) Height() int     { return d.height }
