// Package server assembles the HTTP surface: the REST API under /api, the
// server-rendered UI, health probes, metrics and the OpenAPI document.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/apidoc"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/category"
	"github.com/username/ecoenergy-api/internal/config"
	"github.com/username/ecoenergy-api/internal/dashboard"
	"github.com/username/ecoenergy-api/internal/database"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/export"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/logger"
	"github.com/username/ecoenergy-api/internal/measurement"
	"github.com/username/ecoenergy-api/internal/metrics"
	"github.com/username/ecoenergy-api/internal/organization"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/session"
	"github.com/username/ecoenergy-api/internal/trace"
	"github.com/username/ecoenergy-api/internal/user"
	"github.com/username/ecoenergy-api/internal/web"
	"github.com/username/ecoenergy-api/internal/zone"
)

const ServiceName = "EcoEnergy API"

type Server struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	engine  *gin.Engine
	store   session.Store
	closers []io.Closer
}

// New wires every service and handler on a fresh gin engine.
func New(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(cfg.Server.Mode)

	tr, err := i18n.New(cfg.I18n.DefaultLang)
	if err != nil {
		return nil, fmt.Errorf("load translations: %w", err)
	}
	i18n.SetDefault(tr)
	pagination.SetLimits(cfg.Pagination.DefaultLimit, cfg.Pagination.MaxLimit)

	store, err := session.NewStore(log, cfg.Session)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, log: log, db: db, store: store}
	if c, ok := store.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	if err := s.routes(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// corsMiddleware adapts rs/cors to gin; preflight requests end here.
// corsMiddleware only allows credentials for an explicit origin list; with "*"
// the library would echo any origin back together with credentials.
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept-Language", "X-Lang", "X-Requested-With"},
		AllowCredentials: !slices.Contains(origins, "*"),
	})
	return func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)
		if ctx.Request.Method == http.MethodOptions && ctx.GetHeader("Access-Control-Request-Method") != "" {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}

func (s *Server) routes() error {
	cfg, log, db := s.cfg, s.log, s.db

	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(log), corsMiddleware(cfg.CORS.AllowedOrigins))
	if cfg.Tracing.Enabled {
		r.Use(trace.Middleware(cfg.Tracing.ServiceName))
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
		r.Use(m.Middleware())
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	r.Use(session.Middleware(s.store, session.Options{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
	}, log))

	// services
	organizations := organization.NewService(db, log)
	users := user.NewService(db, log)
	users.AvatarDir = cfg.Uploads.Dir
	if cfg.Uploads.MaxAvatarBytes > 0 {
		users.MaxAvatarBytes = cfg.Uploads.MaxAvatarBytes
	}
	categories := category.NewService(db, log)
	zones := zone.NewService(db, log)
	devices := device.NewService(db, log)
	alerts := alert.NewService(db, devices, log)
	measurements := measurement.NewService(db, devices, log)
	measurements.Observe(alert.LogObserver(log.Named("alert")))
	if m != nil {
		measurements.Observe(m)
		measurements.Record(m)
	}
	stats := dashboard.NewService(devices, zones, measurements, alerts, log)
	exports := export.NewHandler(zones, categories, devices, measurements, alerts, log)

	r.GET("/health", s.health)
	r.GET("/info", s.health)
	r.Static("/media", cfg.Uploads.Dir)

	doc, err := apidoc.Load(cfg.Server.Version)
	if err != nil {
		return err
	}
	docHandler, err := apidoc.Handler(doc)
	if err != nil {
		return err
	}
	r.GET("/api/openapi.json", docHandler)

	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)
	public := r.Group("/api")
	auth.NewHandler(users, tokens).RegisterRoutes(public)
	organization.NewHandler(organizations).RegisterPublicRoutes(public)
	user.NewHandler(users).RegisterPublicRoutes(public)

	api := r.Group("/api", auth.AuthMiddleware(tokens))
	organization.NewHandler(organizations).RegisterRoutes(api)
	user.NewHandler(users).RegisterRoutes(api)
	category.NewHandler(categories).RegisterRoutes(api)
	zone.NewHandler(zones).RegisterRoutes(api)
	device.NewHandler(devices, zones, categories).RegisterRoutes(api)
	measurement.NewHandler(measurements).RegisterRoutes(api)
	alert.NewHandler(alerts).RegisterRoutes(api)
	dashboard.NewHandler(stats).RegisterRoutes(api)
	exports.RegisterRoutes(api)

	if cfg.Server.Web {
		pages, err := web.New(web.Services{
			Users:         users,
			Organizations: organizations,
			Zones:         zones,
			Categories:    categories,
			Devices:       devices,
			Measurements:  measurements,
			Alerts:        alerts,
			Dashboard:     stats,
			Export:        exports,
		}, log)
		if err != nil {
			return err
		}
		pages.RegisterRoutes(r.Group("/", auth.SessionMiddleware(users)))
	}

	s.engine = r
	return nil
}

func (s *Server) health(c *gin.Context) {
	status, dbState := http.StatusOK, "connected"
	if err := database.Ping(c.Request.Context(), s.db); err != nil {
		s.log.Warn("database ping failed", zap.Error(err))
		status, dbState = http.StatusServiceUnavailable, "disconnected"
	}
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   s.cfg.Server.Version,
		"service":   ServiceName,
		"database":  dbState,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", srv.Addr), zap.Bool("web", s.cfg.Server.Web))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

func (s *Server) Close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Warn("close failed", zap.Error(err))
		}
	}
}
