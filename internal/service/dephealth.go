// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// Media Module мониторит JWKS endpoint провайдера идентичности
// (HTTP GET, critical). Без MM_JWKS_URL сервис не создаётся.
//
// Метрики app_dependency_* доступны на /metrics.
package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/prometheus/client_golang/prometheus"
)

// dephealthGroup — группа в метриках topologymetrics.
const dephealthGroup = "media-module"

// jwksDependency — имя зависимости JWKS.
const jwksDependency = "jwks"

// DephealthService — сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис; метрики регистрируются в глобальном registry.
//
// Параметры:
//   - serviceID — имя вершины графа (MM_DEPHEALTH_NAME)
//   - jwksURL — URL JWKS endpoint (MM_JWKS_URL)
//   - checkInterval — интервал проверки (MM_DEPHEALTH_CHECK_INTERVAL)
func NewDephealthService(serviceID, jwksURL string, checkInterval time.Duration, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(serviceID, jwksURL, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer — то же с указанным registerer (изоляция метрик в тестах).
func NewDephealthServiceWithRegisterer(
	serviceID, jwksURL string,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, jwksURL, checkInterval, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID, jwksURL string,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	depOpts := []dephealth.DependencyOption{
		dephealth.FromURL(jwksURL),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(jwksURL); err == nil && parsed.Scheme == "https" {
		depOpts = append(depOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}

	opts := make([]dephealth.Option, 0, 2+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.HTTP(jwksDependency, depOpts...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, dephealthGroup, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (JWKS)")
	return ds.dh.Start(ctx)
}

// Stop останавливает проверку.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает состояние зависимостей: имя → ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
