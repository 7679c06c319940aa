package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/media-module/internal/config"
	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
	"github.com/bigkaa/goartstore/media-module/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/media-module/internal/storage/kv"
	"github.com/bigkaa/goartstore/media-module/internal/storage/wal"
)

// timeZero — отсечка RecoverPending, возвращающая все pending-записи.
var timeZero time.Time

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testConfig — значения по умолчанию из MM_* переменных.
func testConfig() *config.Config {
	return &config.Config{
		AllowEditing:           true,
		MaxNameLength:          32,
		IDLength:               4,
		StoreCompressed:        true,
		DefaultTags:            []string{"funny", "meme", "nsfw", "clip"},
		AllowCustomTags:        false,
		MaxTagLength:           16,
		TagsCacheTTL:           30 * time.Second,
		UploadLimit:            60,
		UploadSizeLimitMB:      12,
		TotalUploadSizeLimitMB: 120,
		ReconcileInterval:      time.Hour,
	}
}

// testEnv — сервисы поверх общего хранилища, блобов и журнала.
type testEnv struct {
	cfg      *config.Config
	store    kv.Store
	media    *repository.MediaRepository
	accounts *repository.AccountRepository
	invites  *repository.InviteRepository
	blobs    *blobstore.Store
	journal  *wal.WAL
	sm       *mode.StateMachine
	cache    *MediaCache

	upload    *UploadService
	search    *SearchService
	download  *DownloadService
	mutate    *MutationService
	mediaSvc  *MediaService
	acctSvc   *AccountService
	stats     *StatsService
	reconcile *ReconcileService
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, kv.NewMemoryStore(), opts...)
}

func newTestEnvWithStore(t *testing.T, store kv.Store, opts ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := testLogger()
	dir := t.TempDir()

	media, err := repository.NewMediaRepository(store, logger)
	require.NoError(t, err)
	accounts, err := repository.NewAccountRepository(store, logger)
	require.NoError(t, err)
	invites, err := repository.NewInviteRepository(store)
	require.NoError(t, err)
	blobs, err := blobstore.New(filepath.Join(dir, "data"))
	require.NoError(t, err)
	journal, err := wal.New(filepath.Join(dir, "wal"), logger)
	require.NoError(t, err)
	sm, err := mode.NewStateMachine(mode.ModeRW)
	require.NoError(t, err)
	cache := NewMediaCache(128, cfg.TagsCacheTTL)

	return &testEnv{
		cfg:       cfg,
		store:     store,
		media:     media,
		accounts:  accounts,
		invites:   invites,
		blobs:     blobs,
		journal:   journal,
		sm:        sm,
		cache:     cache,
		upload:    NewUploadService(cfg, media, accounts, blobs, journal, sm, cache, logger),
		search:    NewSearchService(media, accounts, sm, logger),
		download:  NewDownloadService(media, blobs, sm, cache, logger),
		mutate:    NewMutationService(cfg, media, accounts, journal, sm, cache, logger),
		mediaSvc:  NewMediaService(media, sm, cache, logger),
		acctSvc:   NewAccountService(accounts, logger),
		stats:     NewStatsService(media, accounts, invites, logger),
		reconcile: NewReconcileService(media, accounts, blobs, journal, cache, cfg.ReconcileInterval, logger),
	}
}

// register создаёт аккаунт username.
func (e *testEnv) register(t *testing.T, username string) {
	t.Helper()
	_, err := e.acctSvc.Register(context.Background(), username)
	require.NoError(t, err)
}

// mustUpload загружает data от имени owner.
func (e *testEnv) mustUpload(t *testing.T, owner, name string, data []byte, tags ...string) *model.MediaRecord {
	t.Helper()
	rec, err := e.upload.Upload(context.Background(), UploadParams{
		Owner: owner,
		Name:  name,
		Data:  data,
		Tags:  tags,
	})
	require.NoError(t, err)
	return rec
}

// requireCode проверяет машиночитаемый код ошибки сервиса.
func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, AsError(err).Code, err.Error())
}

// faultyStore отдаёт пространство user, обёрнутое в faultyNamespace.
type faultyStore struct {
	*kv.MemoryStore
	user *faultyNamespace
}

func newFaultyStore() *faultyStore {
	mem := kv.NewMemoryStore()
	ns, _ := mem.Namespace(kv.NamespaceUser)
	return &faultyStore{MemoryStore: mem, user: &faultyNamespace{Namespace: ns}}
}

func (s *faultyStore) Namespace(name string) (kv.Namespace, error) {
	if name == kv.NamespaceUser {
		return s.user, nil
	}
	return s.MemoryStore.Namespace(name)
}

// faultyNamespace перехватывает UpdateAndFetch: ожидание вызова задаёт
// ошибку (или nil для прохода в настоящее пространство).
type faultyNamespace struct {
	kv.Namespace
	mock.Mock
}

func (n *faultyNamespace) UpdateAndFetch(ctx context.Context, key string, fn kv.UpdateFunc) ([]byte, error) {
	args := n.Called(key)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return n.Namespace.UpdateAndFetch(ctx, key, fn)
}
