package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/media-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/media-module/internal/config"
	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
	"github.com/bigkaa/goartstore/media-module/internal/service"
	"github.com/bigkaa/goartstore/media-module/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/media-module/internal/storage/kv"
	"github.com/bigkaa/goartstore/media-module/internal/storage/wal"
)

// subjectHeader — тестовый заголовок с именем вызывающего вместо JWT.
const subjectHeader = "X-Test-Subject"

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	cfg      *config.Config
	dataDir  string
	walDir   string
	sm       *mode.StateMachine
	accounts *service.AccountService
	router   chi.Router
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{
		AllowEditing:           true,
		MaxNameLength:          32,
		IDLength:               4,
		StoreCompressed:        true,
		DefaultTags:            []string{"funny", "meme", "nsfw", "clip"},
		MaxTagLength:           16,
		TagsCacheTTL:           30 * time.Second,
		UploadLimit:            60,
		UploadSizeLimitMB:      12,
		TotalUploadSizeLimitMB: 120,
		ReconcileInterval:      time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := discardLogger()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	walDir := filepath.Join(dir, "wal")

	store := kv.NewMemoryStore()
	media, err := repository.NewMediaRepository(store, logger)
	require.NoError(t, err)
	accounts, err := repository.NewAccountRepository(store, logger)
	require.NoError(t, err)
	invites, err := repository.NewInviteRepository(store)
	require.NoError(t, err)
	blobs, err := blobstore.New(dataDir)
	require.NoError(t, err)
	journal, err := wal.New(walDir, logger)
	require.NoError(t, err)
	sm, err := mode.NewStateMachine(mode.ModeRW)
	require.NoError(t, err)
	cache := service.NewMediaCache(128, cfg.TagsCacheTTL)

	acctSvc := service.NewAccountService(accounts, logger)
	mediaHandler := NewMediaHandler(
		service.NewUploadService(cfg, media, accounts, blobs, journal, sm, cache, logger),
		service.NewSearchService(media, accounts, sm, logger),
		service.NewDownloadService(media, blobs, sm, cache, logger),
		service.NewMutationService(cfg, media, accounts, journal, sm, cache, logger),
		service.NewMediaService(media, sm, cache, logger),
		cfg.UploadSizeLimit(),
		logger,
	)
	accountsHandler := NewAccountsHandler(acctSvc, logger)
	systemHandler := NewSystemHandler(cfg, sm, service.NewStatsService(media, accounts, invites, logger), nil, logger)
	modeHandler := NewModeHandler(sm, nil, logger)
	reconcile := service.NewReconcileService(media, accounts, blobs, journal, cache, cfg.ReconcileInterval, logger)
	maintenance := NewMaintenanceHandler(reconcile)

	r := chi.NewRouter()
	r.Use(testSubject)
	r.Post("/media", mediaHandler.Upload)
	r.Get("/media/search", mediaHandler.Search)
	r.Get("/media/tags", mediaHandler.Tags)
	r.Get("/media/{id}", mediaHandler.Info)
	r.Patch("/media/{id}", mediaHandler.Edit)
	r.Delete("/media/{id}", mediaHandler.Delete)
	r.Get("/media/{id}/download", mediaHandler.Download)
	r.Post("/accounts", accountsHandler.Register)
	r.Get("/accounts/{username}", accountsHandler.Get)
	r.Get("/service/config", systemHandler.GetServiceConfig)
	r.Get("/service/info", systemHandler.GetServiceInfo)
	r.Get("/stats/media", systemHandler.GetMediaStats)
	r.Get("/stats/users", systemHandler.GetUserStats)
	r.Post("/mode/transition", modeHandler.TransitionMode)
	r.Post("/maintenance/reconcile", maintenance.Reconcile)

	return &testEnv{
		cfg:      cfg,
		dataDir:  dataDir,
		walDir:   walDir,
		sm:       sm,
		accounts: acctSvc,
		router:   r,
	}
}

// testSubject переносит subject из тестового заголовка в контекст запроса.
func testSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sub := r.Header.Get(subjectHeader); sub != "" {
			r = r.WithContext(context.WithValue(r.Context(), middleware.ContextKeySubject, sub))
		}
		next.ServeHTTP(w, r)
	})
}

func (e *testEnv) do(t *testing.T, method, target, subject string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if subject != "" {
		req.Header.Set(subjectHeader, subject)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(t *testing.T, username string) {
	t.Helper()
	_, err := e.accounts.Register(context.Background(), username)
	require.NoError(t, err)
}

func (e *testEnv) upload(t *testing.T, owner, query string, data []byte) service.MediaInfo {
	t.Helper()
	w := e.do(t, http.MethodPost, "/media?"+query, owner, data)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var info service.MediaInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	return info
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error.Code
}
