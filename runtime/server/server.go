// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BDNK1/autoflow/runtime"
	"github.com/BDNK1/autoflow/runtime/engine/blueprint"
	"github.com/gin-gonic/gin"
)

type Config struct {
	Addr            string        `yaml:"addr" default:":8080" validate:"required"`
	Mode            string        `yaml:"mode" default:"release" validate:"oneof=debug release test"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"5m" validate:"gte=0"`
	RunTimeout      time.Duration `yaml:"run_timeout" default:"10m" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s" validate:"gt=0"`
}

// Engine is the part of blueprint.Engine the server drives.
type Engine interface {
	Run(ctx context.Context, bp *runtime.Blueprint, req runtime.RunRequest) (*runtime.Result, error)
	RunByID(ctx context.Context, id string, req runtime.RunRequest) (*runtime.Result, error)
	Blueprint(id string) (runtime.Blueprint, bool)
	Blueprints() []runtime.Blueprint
	Integrations() []blueprint.IntegrationStatus
	Evaluate(expr string, vars map[string]any) (bool, error)
}

type Server struct {
	Config Config
	engine Engine
	runs   runtime.ProgressStore
	l      *slog.Logger
	router *gin.Engine
	http   *http.Server

	// async runs outlive their request; they stop when baseCtx is cancelled.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(l *slog.Logger, cfg Config, engine Engine, runs runtime.ProgressStore) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		Config:  cfg,
		engine:  engine,
		runs:    runs,
		l:       l,
		router:  gin.New(),
		baseCtx: baseCtx,
		cancel:  cancel,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.health)

	v1 := s.router.Group("/v1")
	v1.GET("/blueprints", s.listBlueprints)
	v1.POST("/runs", s.startRun)
	v1.GET("/runs/:id", s.getRun)
	v1.GET("/integrations", s.integrations)
	v1.POST("/expressions/evaluate", s.evaluate)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.Config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.Config.ReadTimeout,
		WriteTimeout: s.Config.WriteTimeout,
	}
	s.l.Info(fmt.Sprintf("HTTP server listening on %s", s.Config.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight async runs until
// ctx is done and then cancels the rest.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.l.Warn("Cancelling async runs still in flight")
		s.cancel()
		<-done
	}
	s.cancel()
	return err
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.l.DebugContext(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
