// media.go — чтение метаданных: info по id и список тегов.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
)

// MediaInfo — публичная проекция MediaRecord (без пути к блобу).
type MediaInfo struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Extension  string         `json:"extension"`
	Category   model.Category `json:"category"`
	SizeBytes  int64          `json:"size_bytes"`
	Compressed bool           `json:"compressed"`
	UploadedAt time.Time      `json:"uploaded_at"`
	Author     string         `json:"author"`
	Unlisted   bool           `json:"unlisted"`
	Tags       []string       `json:"tags"`
	Downloads  uint64         `json:"downloads"`
}

// NewMediaInfo строит проекцию записи.
func NewMediaInfo(r *model.MediaRecord) *MediaInfo {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return &MediaInfo{
		ID:         r.ID,
		Name:       r.Name,
		Extension:  r.Extension,
		Category:   r.Category,
		SizeBytes:  r.SizeBytes,
		Compressed: r.Compressed,
		UploadedAt: r.UploadedAt,
		Author:     r.Author,
		Unlisted:   r.Unlisted,
		Tags:       tags,
		Downloads:  r.DownloadCount,
	}
}

// MediaService — сервис чтения метаданных медиа.
type MediaService struct {
	media  *repository.MediaRepository
	sm     *mode.StateMachine
	cache  *MediaCache
	logger *slog.Logger
}

// NewMediaService создаёт сервис чтения метаданных.
func NewMediaService(
	media *repository.MediaRepository,
	sm *mode.StateMachine,
	cache *MediaCache,
	logger *slog.Logger,
) *MediaService {
	return &MediaService{
		media:  media,
		sm:     sm,
		cache:  cache,
		logger: logger.With(slog.String("component", "media_service")),
	}
}

// Info возвращает проекцию записи id. Скрытые записи доступны по прямому id.
func (s *MediaService) Info(ctx context.Context, id string) (*MediaInfo, error) {
	if !s.sm.CanPerform(mode.OpList) {
		return nil, modeNotAllowed(mode.OpList, s.sm.CurrentMode())
	}

	if !model.IsAlphanumeric(id) {
		return nil, notFound("Медиа %s не найдено", id)
	}

	if rec, ok := s.cache.records.Get(id); ok {
		return NewMediaInfo(rec), nil
	}

	epoch := s.cache.Epoch()
	rec, err := s.media.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("Медиа %s не найдено", id)
	}
	if err != nil {
		s.logger.Error("Ошибка чтения записи", slog.String("media_id", id), slog.String("error", err.Error()))
		return nil, internal(err)
	}

	s.cache.StoreRecord(id, rec, epoch)
	return NewMediaInfo(rec), nil
}

// Tags возвращает отсортированный список различных тегов всех записей.
func (s *MediaService) Tags(ctx context.Context) ([]string, error) {
	if !s.sm.CanPerform(mode.OpList) {
		return nil, modeNotAllowed(mode.OpList, s.sm.CurrentMode())
	}

	if tags, ok := s.cache.tags.Get(tagsKey); ok {
		return append([]string(nil), tags...), nil
	}

	epoch := s.cache.Epoch()
	records, err := s.media.Scan(ctx)
	if err != nil {
		s.logger.Error("Ошибка сканирования media", slog.String("error", err.Error()))
		return nil, internal(err)
	}

	seen := make(map[string]bool)
	tags := []string{}
	for _, r := range records {
		for _, tag := range r.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)

	s.cache.StoreTags(tags, epoch)
	return append([]string(nil), tags...), nil
}
