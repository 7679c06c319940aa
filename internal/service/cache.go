package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
)

// Cache — LRU-кэш с TTL поверх hashicorp/golang-lru/v2/expirable.
// Инвалидируется явно при изменениях записей.
type Cache[V any] struct {
	name  string
	cache *expirable.LRU[string, V]
}

// NewCache создаёт кэш; name — метка метрик попаданий/промахов.
func NewCache[V any](name string, maxSize int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		name:  name,
		cache: expirable.NewLRU[string, V](maxSize, nil, ttl),
	}
}

// Get возвращает значение и признак попадания.
func (c *Cache[V]) Get(key string) (V, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.WithLabelValues(c.name).Inc()
	} else {
		cacheMissesTotal.WithLabelValues(c.name).Inc()
	}
	return val, ok
}

// Set добавляет или обновляет значение.
func (c *Cache[V]) Set(key string, val V) {
	c.cache.Add(key, val)
}

// Delete удаляет значение.
func (c *Cache[V]) Delete(key string) {
	c.cache.Remove(key)
}

// Purge очищает кэш.
func (c *Cache[V]) Purge() {
	c.cache.Purge()
}

// tagsKey — единственный ключ кэша списка тегов.
const tagsKey = "all"

// MediaCache — кэши чтения медиа: записи по id и список тегов.
// Каждая инвалидация увеличивает epoch; значение, прочитанное из хранилища
// до инвалидации, в кэш уже не попадает.
type MediaCache struct {
	records *Cache[*model.MediaRecord]
	tags    *Cache[[]string]

	mu    sync.Mutex
	epoch uint64
}

// NewMediaCache создаёт кэши записей и тегов с общим TTL.
func NewMediaCache(maxRecords int, ttl time.Duration) *MediaCache {
	return &MediaCache{
		records: NewCache[*model.MediaRecord]("records", maxRecords, ttl),
		tags:    NewCache[[]string]("tags", 1, ttl),
	}
}

// Epoch возвращает текущее поколение кэша. Снимается до чтения из хранилища.
func (c *MediaCache) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// StoreRecord кэширует запись, если с момента epoch не было инвалидаций.
func (c *MediaCache) StoreRecord(id string, rec *model.MediaRecord, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.records.Set(id, rec)
	return true
}

// StoreTags кэширует список тегов, если с момента epoch не было инвалидаций.
func (c *MediaCache) StoreTags(tags []string, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.tags.Set(tagsKey, tags)
	return true
}

// Invalidate сбрасывает запись id и список тегов.
func (c *MediaCache) Invalidate(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.records.Delete(id)
	c.tags.Purge()
}

// InvalidateRecord сбрасывает только запись id (теги не менялись).
func (c *MediaCache) InvalidateRecord(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.records.Delete(id)
}

// InvalidateAll сбрасывает все кэши.
func (c *MediaCache) InvalidateAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.records.Purge()
	c.tags.Purge()
}
