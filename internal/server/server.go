// Пакет server — HTTP-сервер Media Module: chi-роутер, TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/media-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/media-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/media-module/internal/config"
)

// Handlers — набор обработчиков, монтируемых в роутер.
type Handlers struct {
	Media       *handlers.MediaHandler
	Accounts    *handlers.AccountsHandler
	System      *handlers.SystemHandler
	Mode        *handlers.ModeHandler
	Maintenance *handlers.MaintenanceHandler
	Health      *handlers.HealthHandler
	// OpenAPI — отдача документа /api/v1/openapi.json (опционально)
	OpenAPI http.Handler
}

// RouterOptions — необязательные middleware роутера.
type RouterOptions struct {
	// Auth — проверка JWT; nil — все запросы анонимны
	Auth *middleware.JWTAuth
	// Validator — валидация запросов по OpenAPI-документу (опционально)
	Validator func(http.Handler) http.Handler
}

// NewRouter собирает chi-роутер со всеми endpoints модуля.
func NewRouter(logger *slog.Logger, h Handlers, opts RouterOptions) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.Middleware())
		}
		if opts.Validator != nil {
			r.Use(opts.Validator)
		}

		if h.OpenAPI != nil {
			r.Handle("/openapi.json", h.OpenAPI)
		}

		r.Route("/media", func(r chi.Router) {
			r.Post("/", h.Media.Upload)
			r.Get("/search", h.Media.Search)
			r.Get("/tags", h.Media.Tags)
			r.Get("/{id}", h.Media.Info)
			r.Patch("/{id}", h.Media.Edit)
			r.Delete("/{id}", h.Media.Delete)
			r.Get("/{id}/download", h.Media.Download)
		})

		r.Post("/accounts", h.Accounts.Register)
		r.Get("/accounts/{username}", h.Accounts.Get)

		r.Get("/service/config", h.System.GetServiceConfig)
		r.Get("/service/info", h.System.GetServiceInfo)

		// Административные операции
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeAdmin))
			r.Get("/stats/media", h.System.GetMediaStats)
			r.Get("/stats/users", h.System.GetUserStats)
			r.Post("/mode/transition", h.Mode.TransitionMode)
			r.Post("/maintenance/reconcile", h.Maintenance.Reconcile)
		})
	})

	return router
}

// Server — HTTP-сервер Media Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер поверх готового роутера.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// Run запускает сервер и блокируется до отмены ctx или ошибки сервера.
// При отмене ctx выполняется graceful shutdown с таймаутом ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		tlsEnabled := s.cfg.TLSCert != "" && s.cfg.TLSKey != ""
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", tlsEnabled),
		)

		var err error
		if tlsEnabled {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
