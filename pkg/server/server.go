package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"mercator-hq/guardrails/pkg/config"
)

// ErrAlreadyRunning is returned when Serve is called on a server that is
// already serving.
var ErrAlreadyRunning = errors.New("server is already running")

// Server hosts an HTTP handler behind the standard middleware chain and shuts
// it down gracefully when its context ends.
type Server struct {
	config  *config.ServerConfig
	handler http.Handler
	logger  *slog.Logger

	mu         sync.RWMutex
	httpServer *http.Server
	addr       net.Addr
	running    bool
}

// New creates a server for handler. The handler is wrapped by Handler's
// middleware chain when served.
func New(cfg *config.ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:  cfg,
		handler: handler,
		logger:  logger.With("component", "server"),
	}
}

// Handler returns the wrapped handler. Recovery is outermost so a panic in any
// middleware is answered with a 500.
func (s *Server) Handler() http.Handler {
	return Chain(s.handler,
		Recovery(s.logger),
		RequestID,
		Logging(s.logger),
		CORS(s.config.CORS),
		Timeout(s.config.RequestTimeout),
	)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down within
// ShutdownTimeout. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	useTLS := s.config.TLS.Enabled()
	if useTLS {
		tlsConfig, err := s.configureTLS()
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		httpServer.TLSConfig = tlsConfig
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		ln.Close()
		return ErrAlreadyRunning
	}
	s.running = true
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", ln.Addr().String(), "tls_enabled", useTLS)

		var err error
		if useTLS {
			err = httpServer.ServeTLS(ln, s.config.TLS.CertFile, s.config.TLS.KeyFile)
		} else {
			err = httpServer.Serve(ln)
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
	}

	if err := s.Shutdown(context.Background()); err != nil {
		return err
	}
	<-errCh
	return nil
}

// Shutdown stops accepting connections and waits up to ShutdownTimeout for
// in-flight requests. It is a no-op when the server is not running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	httpServer := s.httpServer
	running := s.running
	s.mu.RUnlock()

	if !running || httpServer == nil {
		return nil
	}

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

	shutdownCtx := ctx
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Addr returns the address being served, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// IsRunning reports whether Serve is active.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) configureTLS() (*tls.Config, error) {
	if _, err := os.Stat(s.config.TLS.CertFile); err != nil {
		return nil, fmt.Errorf("TLS cert file: %w", err)
	}
	if _, err := os.Stat(s.config.TLS.KeyFile); err != nil {
		return nil, fmt.Errorf("TLS key file: %w", err)
	}
	return &tls.Config{MinVersion: tls.VersionTLS13}, nil
}
