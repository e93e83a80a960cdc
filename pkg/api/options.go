package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// Option customizes the status server.
type Option func(s *Server)

// WithLogger uses an existing logger instead of the context logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithEngine uses an externally constructed gin.Engine. Without it the
// server builds its own engine with the default middlewares.
func WithEngine(engine *gin.Engine) Option {
	return func(s *Server) {
		if engine != nil {
			s.engine = engine
		}
	}
}
