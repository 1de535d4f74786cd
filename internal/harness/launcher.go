package harness

import (
	"context"

	"github.com/loykin/seleniumrun/internal/service"
)

// Launcher starts the services a run needs.
type Launcher interface {
	Probe(ctx context.Context, host string, port int, opts service.ProbeOptions) bool
	LaunchDisplay(ctx context.Context, opts service.DisplayOptions) (service.DisplayService, error)
	LaunchServer(ctx context.Context, screen service.Screen, opts service.ServerOptions) (service.ServerService, error)
	LaunchRecorder(ctx context.Context, screen service.Screen, opts service.RecorderOptions) (service.Managed, error)
}

// ProcessLauncher launches real Xvfb, Selenium and ffmpeg processes.
type ProcessLauncher struct{}

func (ProcessLauncher) Probe(ctx context.Context, host string, port int, opts service.ProbeOptions) bool {
	return service.IsRunning(ctx, host, port, opts)
}

func (ProcessLauncher) LaunchDisplay(ctx context.Context, opts service.DisplayOptions) (service.DisplayService, error) {
	d, err := service.LaunchDisplay(ctx, opts)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (ProcessLauncher) LaunchServer(ctx context.Context, screen service.Screen, opts service.ServerOptions) (service.ServerService, error) {
	s, err := service.LaunchServer(ctx, screen, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (ProcessLauncher) LaunchRecorder(ctx context.Context, screen service.Screen, opts service.RecorderOptions) (service.Managed, error) {
	r, err := service.LaunchRecorder(ctx, screen, opts)
	if err != nil {
		return nil, err
	}
	return r, nil
}
