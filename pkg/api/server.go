// Package api exposes the status server: an HTTP surface for inspecting
// configured registry endpoints and the instances they currently hold.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nautkit/anchor/pkg/api/middleware"
	"github.com/nautkit/anchor/pkg/xlog"
)

// Server wraps the gin HTTP server lifecycle.
type Server struct {
	config *ServerConfig

	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener

	log *slog.Logger
}

// NewServer creates the status server. The logger is taken from ctx,
// falling back to slog.Default().
func NewServer(ctx context.Context, cfg *ServerConfig, opts ...Option) *Server {
	if cfg == nil {
		panic("api: server config is nil")
	}

	log := xlog.FromContext(ctx).With("component", "api.server")

	s := &Server{
		config: cfg,
		log:    log,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.engine == nil {
		mode := cfg.Mode
		if mode == "" {
			mode = gin.ReleaseMode
		}
		gin.SetMode(mode)

		engine := gin.New()
		engine.Use(
			middleware.Recovery(),
			middleware.Logging(),
		)
		s.engine = engine
	}

	if cfg.EnablePProf {
		s.registerPProf()
	}

	return s
}

// Engine returns the underlying gin.Engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Use adds middlewares to the engine.
func (s *Server) Use(middlewares ...gin.HandlerFunc) {
	s.engine.Use(middlewares...)
}

// Start begins serving and blocks until a termination signal arrives, then
// shuts down gracefully.
func (s *Server) Start() error {
	if s.config.Port <= 0 {
		return fmt.Errorf("api: invalid port %d", s.config.Port)
	}

	host := s.config.Host
	if host == "" {
		host = "0.0.0.0"
	}
	addr := fmt.Sprintf("%s:%d", host, s.config.Port)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: failed to listen on %s: %w", addr, err)
	}
	s.listener = lis

	server := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.httpServer = server

	s.log.Info("starting status server", "addr", addr)

	go func() {
		if err := server.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.log.Error("status server stopped", "error", err)
		}
	}()

	s.waitForShutdown()

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerPProf() {
	g := s.engine.Group("/debug/pprof")
	{
		g.GET("/", gin.WrapF(pprof.Index))
		g.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		g.GET("/profile", gin.WrapF(pprof.Profile))
		g.POST("/symbol", gin.WrapF(pprof.Symbol))
		g.GET("/symbol", gin.WrapF(pprof.Symbol))
		g.GET("/trace", gin.WrapF(pprof.Trace))
		g.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
		g.GET("/block", gin.WrapH(pprof.Handler("block")))
		g.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		g.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		g.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
		g.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
	}
}

func (s *Server) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	s.log.Info("shutting down status server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		s.log.Error("failed to shutdown status server", "error", err)
		return
	}

	s.log.Info("status server shutdown complete")
}
