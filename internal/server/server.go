package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campuslink/portal/internal/auth/jwt"
	"github.com/campuslink/portal/internal/common/config"
	"github.com/campuslink/portal/internal/middleware"
	"github.com/campuslink/portal/internal/observability"
)

// Registrar is anything that can attach its routes to the authenticated API
// group.
type Registrar interface {
	Register(r gin.IRouter)
}

type Options struct {
	Config   *config.Config
	Logger   *zap.Logger
	JWT      *jwt.Manager
	Metrics  *observability.Metrics
	Health   *observability.HealthChecker
	Handlers []Registrar

	// FilesDir, when set, is served read-only under /files.
	FilesDir string
}

type Server struct {
	http   *http.Server
	logger *zap.Logger
}

func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		middleware.RequestID(opts.Logger),
		middleware.Recovery(opts.Logger),
		middleware.AccessLog(opts.Metrics),
	)

	router.GET("/health", func(c *gin.Context) {
		resp := opts.Health.Check(c.Request.Context())
		status := http.StatusOK
		if resp.Status != observability.StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	})

	if opts.FilesDir != "" {
		router.Static("/files", opts.FilesDir)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(opts.JWT))
	api.Use(middleware.NewRateLimiter(opts.Config.RateLimit).Middleware())

	for _, h := range opts.Handlers {
		h.Register(api)
	}

	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", opts.Config.Server.Host, opts.Config.Server.Port),
			Handler:      router,
			ReadTimeout:  opts.Config.Server.ReadTimeout,
			WriteTimeout: opts.Config.Server.WriteTimeout,
			IdleTimeout:  opts.Config.Server.IdleTimeout,
		},
		logger: opts.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.http.Addr))

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
