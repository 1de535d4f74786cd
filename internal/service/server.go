package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/alessio/shellescape"

	"github.com/loykin/seleniumrun/internal/detector"
	"github.com/loykin/seleniumrun/internal/env"
	"github.com/loykin/seleniumrun/internal/process"
)

const (
	DefaultJava       = "java"
	DefaultJar        = "~/selenium-server/selenium-server-standalone.jar"
	DefaultStatusPath = "/selenium-server/driver/?cmd=testComplete"
	DefaultPort       = 4444
	DefaultProbeDelay = 5 * time.Second
	localHost         = "127.0.0.1"
)

// StatusURL is the Selenium RC endpoint probed for liveness.
func StatusURL(host string, port int, path string) string {
	if path == "" {
		path = DefaultStatusPath
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

type ProbeOptions struct {
	// Delay is waited before probing so a server still binding its socket
	// gets a chance to answer.
	Delay          time.Duration
	ConnectTimeout time.Duration
	StatusPath     string
	Logger         *slog.Logger
}

// IsRunning reports whether a Selenium server answers on host:port. Any
// transport error or non-2xx status counts as not running.
func IsRunning(ctx context.Context, host string, port int, opts ProbeOptions) bool {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Delay > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(opts.Delay):
		}
	}
	d := detector.HTTPDetector{
		URL:             StatusURL(host, port, opts.StatusPath),
		ConnectTimeout:  opts.ConnectTimeout,
		ResponseTimeout: opts.ConnectTimeout,
	}
	ok, err := d.Probe(ctx)
	if err != nil {
		log.Debug("selenium probe failed", "url", d.URL, "error", err)
	}
	return ok
}

// ExternalServer is a server the harness found already running. It is never
// released.
type ExternalServer struct {
	host string
	port int
}

func NewExternalServer(host string, port int) ExternalServer {
	return ExternalServer{host: host, port: port}
}

func (s ExternalServer) Host() string { return s.host }
func (s ExternalServer) Port() int    { return s.port }

type ServerOptions struct {
	Common
	Java            string
	Jar             string
	Port            int
	ProfileTemplate string
	// LogFile receives the server's own log (-log). Empty disables it.
	LogFile    string
	StatusPath string
	// BaseEnv is the environment DISPLAY is merged into. Nil means the
	// current process environment.
	BaseEnv *env.Env
}

func (o *ServerOptions) withDefaults() {
	if o.Java == "" {
		o.Java = DefaultJava
	}
	if o.Jar == "" {
		o.Jar = DefaultJar
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.BaseEnv == nil {
		o.BaseEnv = env.New()
	}
}

// OwnedServer is a Selenium RC server launched by the harness.
type OwnedServer struct {
	*process.Process
	port int
}

// LaunchServer starts the Selenium server jar bound to screen's display and
// waits until its status endpoint answers.
func LaunchServer(ctx context.Context, screen Screen, opts ServerOptions) (*OwnedServer, error) {
	opts.withDefaults()
	if screen == nil {
		return nil, fmt.Errorf("selenium server requires a display")
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return nil, fmt.Errorf("invalid selenium port %d", opts.Port)
	}
	ready := detector.HTTPDetector{URL: StatusURL(localHost, opts.Port, opts.StatusPath)}
	environ := opts.BaseEnv.Merge("DISPLAY=" + screen.Display())
	spec := opts.spec("selenium", serverCommand(opts), environ, ready)
	p, err := process.Launch(ctx, spec, process.WithLogger(opts.logger()))
	if err != nil {
		return nil, err
	}
	return &OwnedServer{Process: p, port: opts.Port}, nil
}

func serverCommand(o ServerOptions) string {
	argv := []string{o.Java, "-jar", expandHome(o.Jar)}
	if o.ProfileTemplate != "" {
		argv = append(argv, "-firefoxProfileTemplate", expandHome(o.ProfileTemplate))
	}
	if o.LogFile != "" {
		argv = append(argv, "-browserSideLog", "-log", o.LogFile)
	}
	argv = append(argv, "-port", strconv.Itoa(o.Port))
	return shellescape.QuoteCommand(argv)
}

func (s *OwnedServer) Host() string { return localHost }
func (s *OwnedServer) Port() int    { return s.port }
