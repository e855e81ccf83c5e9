// Package status serves a small read-only view of the scheduler for
// health checks.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Pollers is the part of the registry exposed here.
type Pollers interface {
	Running() []string
}

type Server struct {
	engine *gin.Engine
	srv    *http.Server
	log    logrus.FieldLogger
}

func New(addr string, pollers Pollers, log logrus.FieldLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/pollers", func(c *gin.Context) {
		ids := pollers.Running()
		c.JSON(http.StatusOK, gin.H{"count": len(ids), "targets": ids})
	})

	return &Server{
		engine: engine,
		srv: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves in the background. Listen errors other than a clean close
// are logged.
func (s *Server) Start() {
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("status endpoint listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("status endpoint failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("status request")
	}
}
