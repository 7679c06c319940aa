package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/bigkaa/goartstore/media-module/internal/api/errors"
	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
)

func TestMediaCache_StaleStoreDropped(t *testing.T) {
	cache := NewMediaCache(16, time.Minute)
	rec := &model.MediaRecord{ID: "abc123", Name: "old"}

	// Чтение началось, затем запись изменилась конкурентно
	epoch := cache.Epoch()
	cache.InvalidateRecord(rec.ID)

	assert.False(t, cache.StoreRecord(rec.ID, rec, epoch))
	_, ok := cache.records.Get(rec.ID)
	assert.False(t, ok)

	assert.False(t, cache.StoreTags([]string{"cats"}, epoch))
	_, ok = cache.tags.Get(tagsKey)
	assert.False(t, ok)

	epoch = cache.Epoch()
	assert.True(t, cache.StoreRecord(rec.ID, rec, epoch))
	got, ok := cache.records.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "old", got.Name)
}

func TestMediaInfo_NotCachedAfterEdit(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	rec := env.mustUpload(t, "alice", "img", pngHeader)
	ctx := context.Background()

	epoch := env.cache.Epoch()
	stale, err := env.media.Get(ctx, rec.ID)
	require.NoError(t, err)

	name := "renamed"
	_, err = env.mutate.Edit(ctx, rec.ID, "alice", EditParams{Name: &name})
	require.NoError(t, err)

	// Устаревшее чтение не перезаписывает кэш после инвалидации
	assert.False(t, env.cache.StoreRecord(rec.ID, stale, epoch))

	info, err := env.mediaSvc.Info(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", info.Name)
}

func TestMalformedIDNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, id := range []string{"", "../etc", "ab-c", "id with space"} {
		_, err := env.mediaSvc.Info(ctx, id)
		requireCode(t, err, apierrors.CodeNotFound)

		_, err = env.download.Download(ctx, id)
		requireCode(t, err, apierrors.CodeNotFound)
	}
}
