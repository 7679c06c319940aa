// Точка входа Media Module — хостинга медиафайлов с метаданными
// во встроенном KV-хранилище.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bigkaa/goartstore/media-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/media-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/media-module/internal/api/openapi"
	"github.com/bigkaa/goartstore/media-module/internal/config"
	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
	"github.com/bigkaa/goartstore/media-module/internal/server"
	"github.com/bigkaa/goartstore/media-module/internal/service"
	"github.com/bigkaa/goartstore/media-module/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/media-module/internal/storage/kv"
	"github.com/bigkaa/goartstore/media-module/internal/storage/modefile"
	"github.com/bigkaa/goartstore/media-module/internal/storage/wal"
)

// recordCacheSize — ёмкость LRU-кэша записей метаданных.
const recordCacheSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Media Module запускается",
		slog.String("version", config.Version),
		slog.String("mode", cfg.Mode),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("db_path", cfg.DBPath),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Media Module завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Media Module остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Хранилища ---

	store, err := kv.OpenSQLite(ctx, cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("инициализация хранилища метаданных: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("Ошибка закрытия хранилища метаданных", slog.String("error", closeErr.Error()))
		}
	}()

	mediaRepo, err := repository.NewMediaRepository(store, logger)
	if err != nil {
		return err
	}
	accountRepo, err := repository.NewAccountRepository(store, logger)
	if err != nil {
		return err
	}
	inviteRepo, err := repository.NewInviteRepository(store)
	if err != nil {
		return err
	}

	blobs, err := blobstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("инициализация хранилища блобов: %w", err)
	}

	journal, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		return fmt.Errorf("инициализация WAL: %w", err)
	}

	initialMode, err := mode.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	// Режим, выставленный через API до перезапуска, важнее MM_MODE
	modeStore := modefile.New(cfg.DataDir)
	saved, err := modeStore.LoadMode()
	switch {
	case err == nil:
		if saved != initialMode {
			logger.Info("Режим восстановлен из файла",
				slog.String("path", modeStore.Path()),
				slog.String("mode", string(saved)),
			)
		}
		initialMode = saved
	case !errors.Is(err, modefile.ErrNotSaved):
		logger.Warn("Файл режима не прочитан, используется MM_MODE",
			slog.String("path", modeStore.Path()),
			slog.String("error", err.Error()),
		)
	}
	sm, err := mode.NewStateMachine(initialMode)
	if err != nil {
		return err
	}

	// --- Сервисы ---

	cache := service.NewMediaCache(recordCacheSize, cfg.TagsCacheTTL)

	uploadSvc := service.NewUploadService(cfg, mediaRepo, accountRepo, blobs, journal, sm, cache, logger)
	searchSvc := service.NewSearchService(mediaRepo, accountRepo, sm, logger)
	downloadSvc := service.NewDownloadService(mediaRepo, blobs, sm, cache, logger)
	mutationSvc := service.NewMutationService(cfg, mediaRepo, accountRepo, journal, sm, cache, logger)
	mediaSvc := service.NewMediaService(mediaRepo, sm, cache, logger)
	accountSvc := service.NewAccountService(accountRepo, logger)
	statsSvc := service.NewStatsService(mediaRepo, accountRepo, inviteRepo, logger)
	reconcileSvc := service.NewReconcileService(mediaRepo, accountRepo, blobs, journal, cache, cfg.ReconcileInterval, logger)

	// Незавершённые двойные записи прошлого запуска доводятся до конца
	// до приёма запросов
	if report, skipped := reconcileSvc.Recover(ctx); !skipped {
		logger.Info("Восстановление после запуска завершено",
			slog.Int("pending_recovered", report.PendingRecovered),
			slog.Int("issues", len(report.Issues)),
			slog.Int("repaired", report.Repaired),
		)
	}
	reconcileSvc.Start(ctx)
	defer reconcileSvc.Stop()

	// --- Аутентификация и мониторинг зависимостей ---

	var (
		jwtAuth *middleware.JWTAuth
		deps    handlers.DependencyHealth
	)
	if cfg.JWKSUrl != "" {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			// Без JWKS все запросы обрабатываются как анонимные
			logger.Warn("JWKS недоступен, запуск без аутентификации",
				slog.String("jwks_url", cfg.JWKSUrl),
				slog.String("error", err.Error()),
			)
			jwtAuth = nil
		} else {
			logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSUrl))
		}

		dephealthSvc, dhErr := startDephealth(ctx, cfg, logger)
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			deps = dephealthSvc
		}
	} else {
		logger.Warn("MM_JWKS_URL не задан, все запросы анонимные")
	}

	// --- HTTP ---

	doc, err := openapi.Load(ctx)
	if err != nil {
		return err
	}
	validator, err := openapi.ValidationMiddleware(doc, logger)
	if err != nil {
		return err
	}
	specHandler, err := openapi.Handler(doc)
	if err != nil {
		return err
	}

	router := server.NewRouter(logger, server.Handlers{
		Media:       handlers.NewMediaHandler(uploadSvc, searchSvc, downloadSvc, mutationSvc, mediaSvc, cfg.UploadSizeLimit(), logger),
		Accounts:    handlers.NewAccountsHandler(accountSvc, logger),
		System:      handlers.NewSystemHandler(cfg, sm, statsSvc, deps, logger),
		Mode:        handlers.NewModeHandler(sm, modeStore, logger),
		Maintenance: handlers.NewMaintenanceHandler(reconcileSvc),
		Health:      handlers.NewHealthHandler(blobs.Root(), journal.Dir(), store),
		OpenAPI:     specHandler,
	}, server.RouterOptions{
		Auth:      jwtAuth,
		Validator: validator,
	})

	return server.New(cfg, logger, router).Run(ctx)
}

// startDephealth запускает мониторинг JWKS endpoint.
func startDephealth(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service.DephealthService, error) {
	name := cfg.DephealthName
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("не удалось определить hostname: %w", err)
		}
		name = parseOwnerName(hostname)
	}

	svc, err := service.NewDephealthService(name, cfg.JWKSUrl, cfg.DephealthCheckInterval, logger)
	if err != nil {
		return nil, err
	}
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	logger.Info("topologymetrics запущен",
		slog.String("name", name),
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return svc, nil
}
