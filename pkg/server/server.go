// Package server runs short-lived loopback HTTP servers: the social login
// callback and the CLI's metrics endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/conduit-ucpi/webapp-sub000/pkg/config"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
)

// Config represents server configuration
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// ShutdownTimeout bounds Stop.
	ShutdownTimeout time.Duration
}

// DefaultConfig binds an ephemeral loopback port.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// SetupRouter creates a Gin router with request id, logging and recovery
// middleware.
func SetupRouter(logger logging.Logger) *gin.Engine {
	logger = logging.OrDiscard(logger)
	if config.GetEnv("GIN_MODE", "release") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))
	return router
}

// Loopback is a running server.
type Loopback struct {
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
	timeout  time.Duration
	logger   logging.Logger
}

// StartLoopback listens on cfg.Addr and serves router in the background.
// The listener is bound before StartLoopback returns, so URL is usable
// immediately.
func StartLoopback(cfg Config, router http.Handler, logger logging.Logger) (*Loopback, error) {
	logger = logging.OrDiscard(logger)
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	l := &Loopback{
		srv: &http.Server{
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		listener: ln,
		done:     make(chan struct{}),
		timeout:  cfg.ShutdownTimeout,
		logger:   logger,
	}

	go func() {
		defer close(l.done)
		logger.WithField("addr", ln.Addr().String()).Debug("Starting loopback server")
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Loopback server failed")
		}
	}()
	return l, nil
}

// Addr is the bound address.
func (l *Loopback) Addr() string { return l.listener.Addr().String() }

// URL joins path onto the server's base URL.
func (l *Loopback) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + l.Addr() + path
}

// Stop shuts the server down gracefully and waits for it to exit.
func (l *Loopback) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.srv.Shutdown(ctx); err != nil {
		l.logger.WithError(err).Warn("Loopback server forced to shutdown")
		_ = l.srv.Close()
	}
	<-l.done
}
