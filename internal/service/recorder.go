package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/alessio/shellescape"

	"github.com/loykin/seleniumrun/internal/process"
)

const (
	DefaultRecorderBinary = "ffmpeg"
	DefaultFrameRate      = 50
	DefaultCodec          = "mpeg4"
	DefaultQuality        = 1
	DefaultPreStopGrace   = 3 * time.Second
	DefaultPostStopGrace  = 5 * time.Second
)

type RecorderOptions struct {
	Common
	Binary    string
	File      string
	FrameRate int
	Codec     string
	Quality   int
	// PreStopGrace lets the last frames of a test reach the encoder before
	// the stop signal; PostStopGrace lets the encoder finalize the file.
	PreStopGrace  time.Duration
	PostStopGrace time.Duration
}

func (o *RecorderOptions) withDefaults() {
	if o.Binary == "" {
		o.Binary = DefaultRecorderBinary
	}
	if o.FrameRate <= 0 {
		o.FrameRate = DefaultFrameRate
	}
	if o.Codec == "" {
		o.Codec = DefaultCodec
	}
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	if o.PreStopGrace == 0 {
		o.PreStopGrace = DefaultPreStopGrace
	}
	if o.PostStopGrace == 0 {
		o.PostStopGrace = DefaultPostStopGrace
	}
}

// Recorder captures a display into a video file.
type Recorder struct {
	proc *process.Process
	file string
	pre  time.Duration
	post time.Duration

	sleep func(time.Duration)
	once  sync.Once
}

// LaunchRecorder starts capturing screen into opts.File. The recorder is
// ready as soon as it is spawned.
func LaunchRecorder(ctx context.Context, screen Screen, opts RecorderOptions) (*Recorder, error) {
	opts.withDefaults()
	if screen == nil {
		return nil, fmt.Errorf("recorder requires a display")
	}
	if opts.File == "" {
		return nil, fmt.Errorf("recorder requires an output file")
	}
	spec := opts.spec("ffmpeg", recorderCommand(screen, opts), nil, nil)
	p, err := process.Launch(ctx, spec, process.WithLogger(opts.logger()))
	if err != nil {
		return nil, err
	}
	return newRecorder(p, opts.File, opts.PreStopGrace, opts.PostStopGrace), nil
}

func newRecorder(p *process.Process, file string, pre, post time.Duration) *Recorder {
	return &Recorder{proc: p, file: file, pre: pre, post: post, sleep: time.Sleep}
}

func recorderCommand(screen Screen, o RecorderOptions) string {
	size := fmt.Sprintf("%dx%d", screen.Width(), screen.Height())
	return shellescape.QuoteCommand([]string{
		o.Binary, "-an", "-f", "x11grab", "-y",
		"-r", strconv.Itoa(o.FrameRate),
		"-s", size,
		"-i", screen.Display() + ".0+0,0",
		"-vcodec", o.Codec,
		"-q:v", strconv.Itoa(o.Quality),
		o.File,
	})
}

// File is the video being written.
func (r *Recorder) File() string { return r.file }

func (r *Recorder) PID() int       { return r.proc.PID() }
func (r *Recorder) Output() string { return r.proc.Output() }

// Release waits the pre-stop grace, signals the encoder, waits the
// post-stop grace and then releases the process.
func (r *Recorder) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.sleep(r.pre)
		if err := r.proc.Signal(); err != nil {
			r.proc.Release()
			return
		}
		r.sleep(r.post)
		r.proc.Release()
	})
}
