package repository

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/storage/kv"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newRepos(t *testing.T) (*kv.MemoryStore, *MediaRepository, *AccountRepository) {
	t.Helper()
	store := kv.NewMemoryStore()
	media, err := NewMediaRepository(store, testLogger())
	require.NoError(t, err)
	accounts, err := NewAccountRepository(store, testLogger())
	require.NoError(t, err)
	return store, media, accounts
}

func TestMediaRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	_, repo, _ := newRepos(t)

	rec := &model.MediaRecord{
		ID: "aB3d", Name: "cat", Extension: "png", Category: model.CategoryImage,
		SizeBytes: 10, BlobPath: "/data/content/Image/x", UploadedAt: time.Now().UTC(), Author: "alice",
	}
	require.NoError(t, repo.Insert(ctx, rec))

	ok, err := repo.Exists(ctx, "aB3d")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Get(ctx, "aB3d")
	require.NoError(t, err)
	assert.Equal(t, "cat", got.Name)
	assert.Nil(t, got.Tags)

	updated, err := repo.Update(ctx, "aB3d", func(r *model.MediaRecord) error {
		r.DownloadCount++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), updated.DownloadCount)

	_, err = repo.Update(ctx, "none", func(*model.MediaRecord) error {
		t.Fatal("fn не должна вызываться для отсутствующей записи")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Remove(ctx, "aB3d"))
	_, err = repo.Get(ctx, "aB3d")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMediaRepository_ScanSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	store, repo, _ := newRepos(t)
	ns, _ := store.Namespace(kv.NamespaceMedia)

	require.NoError(t, repo.Insert(ctx, &model.MediaRecord{ID: "good1", Author: "alice"}))
	require.NoError(t, ns.Insert(ctx, "bad", []byte("{not json")))
	require.NoError(t, ns.Insert(ctx, "empty", []byte(`{}`)))
	require.NoError(t, repo.Insert(ctx, &model.MediaRecord{ID: "good2", Author: "bob"}))

	before := testutil.ToFloat64(CorruptRecordsSkipped.WithLabelValues(kv.NamespaceMedia))

	records, err := repo.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "good1", records[0].ID)
	assert.Equal(t, "good2", records[1].ID)

	after := testutil.ToFloat64(CorruptRecordsSkipped.WithLabelValues(kv.NamespaceMedia))
	assert.Equal(t, 2.0, after-before)
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	_, _, repo := newRepos(t)

	acc, err := repo.Create(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, acc.Uploads)

	_, err = repo.Create(ctx, "alice")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, repo.AppendUpload(ctx, "alice", "a1"))
	require.NoError(t, repo.AppendUpload(ctx, "alice", "b2"))
	require.NoError(t, repo.AppendUpload(ctx, "alice", "a1"))
	require.NoError(t, repo.DetachUpload(ctx, "alice", "b2"))

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, got.Uploads)

	assert.ErrorIs(t, repo.AppendUpload(ctx, "ghost", "x"), ErrNotFound)

	ok, err := repo.Exists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	accounts, err := repo.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestInviteRepository_Count(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	ns, _ := store.Namespace(kv.NamespaceInvite)
	require.NoError(t, ns.Insert(ctx, "key-1", []byte(`{}`)))

	repo, err := NewInviteRepository(store)
	require.NoError(t, err)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
