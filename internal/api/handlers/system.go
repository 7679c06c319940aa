// system.go — публичные системные endpoints: параметры сервиса,
// информация о модуле, статистика.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/bigkaa/goartstore/media-module/internal/config"
	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/service"
)

// DependencyHealth — состояние внешних зависимостей (topologymetrics).
type DependencyHealth interface {
	Health() map[string]bool
}

// ServiceInfo — ответ GET /api/v1/service/info.
type ServiceInfo struct {
	Service           string           `json:"service"`
	Version           string           `json:"version"`
	Mode              mode.Mode        `json:"mode"`
	AllowedOperations []mode.Operation `json:"allowed_operations"`
	Dependencies      map[string]bool  `json:"dependencies"`
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg    *config.Config
	sm     *mode.StateMachine
	stats  *service.StatsService
	deps   DependencyHealth
	logger *slog.Logger
}

// NewSystemHandler создаёт обработчик. deps может быть nil (JWKS не настроен).
func NewSystemHandler(
	cfg *config.Config,
	sm *mode.StateMachine,
	stats *service.StatsService,
	deps DependencyHealth,
	logger *slog.Logger,
) *SystemHandler {
	return &SystemHandler{
		cfg:    cfg,
		sm:     sm,
		stats:  stats,
		deps:   deps,
		logger: logger.With(slog.String("component", "system_handler")),
	}
}

// GetServiceConfig обрабатывает GET /api/v1/service/config.
func (h *SystemHandler) GetServiceConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.PublicView())
}

// GetServiceInfo обрабатывает GET /api/v1/service/info.
func (h *SystemHandler) GetServiceInfo(w http.ResponseWriter, _ *http.Request) {
	deps := map[string]bool{}
	if h.deps != nil {
		deps = h.deps.Health()
	}
	writeJSON(w, http.StatusOK, ServiceInfo{
		Service:           "media-module",
		Version:           config.Version,
		Mode:              h.sm.CurrentMode(),
		AllowedOperations: h.sm.AllowedOperations(),
		Dependencies:      deps,
	})
}

// GetMediaStats обрабатывает GET /api/v1/stats/media.
func (h *SystemHandler) GetMediaStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Media(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetUserStats обрабатывает GET /api/v1/stats/users.
func (h *SystemHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Users(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
