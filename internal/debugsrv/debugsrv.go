// Package debugsrv serves the Go pprof profiling endpoints on a
// loopback address for live inspection of the daemon.
package debugsrv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"autosaved/internal/supervisor"
	logx "autosaved/pkg/logx"
)

type Config struct {
	Enabled bool
	// Addr defaults to 127.0.0.1:6060. Non-loopback binds are refused
	// unless AllowRemote is set; the endpoints expose process internals.
	Addr        string
	AllowRemote bool
}

type Service struct {
	cfg Config
	log logx.Logger
	sup *supervisor.Supervisor
}

func New(cfg Config, log logx.Logger) *Service {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6060"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

// Start launches the server under a restart loop. No-op when disabled.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	if !s.cfg.AllowRemote {
		if err := requireLoopback(s.cfg.Addr); err != nil {
			return err
		}
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup.GoRestart("debug.http", s.serveOnce, supervisor.RestartPolicy{
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
	})
	return nil
}

func (s *Service) serveOnce(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 65 * time.Second, // profile captures run long
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.log.Info("debug server listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Service) Stop(ctx context.Context) {
	if s.sup == nil {
		return
	}
	_ = s.sup.Stop(ctx)
	s.sup = nil
}

func requireLoopback(addr string) error {
	hostPart, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("debugsrv: bad addr %q: %w", addr, err)
	}
	if hostPart == "localhost" {
		return nil
	}
	ip := net.ParseIP(hostPart)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("debugsrv: refusing non-loopback bind %q (set allow_remote to override)", addr)
	}
	return nil
}
