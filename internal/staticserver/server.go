package staticserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrRootMissing is returned by Start when the directory to serve does not exist.
var ErrRootMissing = errors.New("output root does not exist")

// Config controls where the session listens and what it serves.
type Config struct {
	Root         string
	RootDocument string
	Host         string
	Port         int
}

// Session is a running static server bound to a local port.
type Session struct {
	srv       *http.Server
	listener  net.Listener
	host      string
	root      string
	logger    *zap.Logger
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Start verifies the root directory, binds the listener and begins serving.
// The caller owns the returned Session and must Close it.
func Start(_ context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(cfg.Root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, cfg.Root)
	case err != nil:
		return nil, fmt.Errorf("stat root %s: %w", cfg.Root, err)
	case !info.IsDir():
		return nil, fmt.Errorf("root %s is not a directory", cfg.Root)
	}

	handler, err := NewHandler(cfg.Root, cfg.RootDocument, logger)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Session{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		host:     cfg.Host,
		root:     cfg.Root,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("static server stopped", zap.Error(err))
		}
	}()
	logger.Info("static server running", zap.String("url", s.BaseURL()), zap.String("root", cfg.Root))
	return s, nil
}

// Port returns the bound TCP port.
func (s *Session) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Root returns the directory being served.
func (s *Session) Root() string { return s.root }

// BaseURL is the origin browsers should navigate against.
func (s *Session) BaseURL() string {
	host := s.host
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port()))
}

// Close shuts the server down. Calls after the first return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.srv.Shutdown(ctx); err != nil {
			s.closeErr = fmt.Errorf("shutdown static server: %w", err)
			_ = s.srv.Close()
		}
		<-s.done
		s.logger.Info("static server closed")
	})
	return s.closeErr
}
