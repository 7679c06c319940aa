// download.go — выдача содержимого и учёт скачиваний.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bigkaa/goartstore/media-module/internal/content"
	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
	"github.com/bigkaa/goartstore/media-module/internal/storage/blobstore"
)

// DownloadResult — содержимое и метаданные для ответа.
type DownloadResult struct {
	Data     []byte
	FileName string
	Record   *model.MediaRecord
}

// DownloadService — сервис скачивания медиа.
type DownloadService struct {
	media  *repository.MediaRepository
	blobs  *blobstore.Store
	sm     *mode.StateMachine
	cache  *MediaCache
	logger *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
func NewDownloadService(
	media *repository.MediaRepository,
	blobs *blobstore.Store,
	sm *mode.StateMachine,
	cache *MediaCache,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		media:  media,
		blobs:  blobs,
		sm:     sm,
		cache:  cache,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Download читает блоб записи id (с распаковкой) и увеличивает счётчик
// скачиваний. Инкремент выполняется отдельно от чтения: при параллельных
// скачиваниях счётчик не гарантирует точность.
func (s *DownloadService) Download(ctx context.Context, id string) (res *DownloadResult, err error) {
	defer func() { observe("download", err) }()

	if !s.sm.CanPerform(mode.OpDownload) {
		return nil, modeNotAllowed(mode.OpDownload, s.sm.CurrentMode())
	}

	if !model.IsAlphanumeric(id) {
		return nil, notFound("Медиа %s не найдено", id)
	}

	rec, err := s.media.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("Медиа %s не найдено", id)
	}
	if err != nil {
		s.logger.Error("Ошибка чтения записи", slog.String("media_id", id), slog.String("error", err.Error()))
		return nil, internal(err)
	}

	// Отсутствующий блоб при существующей записи — внутренняя ошибка, не 404
	data, err := s.blobs.Read(rec.BlobPath)
	if err != nil {
		s.logger.Error("Ошибка чтения блоба", slog.String("media_id", id), slog.String("error", err.Error()))
		return nil, internal(err)
	}

	if rec.Compressed {
		data, err = content.Decompress(data)
		if err != nil {
			s.logger.Error("Ошибка распаковки блоба", slog.String("media_id", id), slog.String("error", err.Error()))
			return nil, internal(err)
		}
	}

	updated, err := s.media.Update(ctx, id, func(r *model.MediaRecord) error {
		r.DownloadCount++
		return nil
	})
	if err != nil {
		// Содержимое уже прочитано: ошибка учёта не мешает выдаче
		s.logger.Warn("Не удалось увеличить счётчик скачиваний",
			slog.String("media_id", id),
			slog.String("error", err.Error()),
		)
	} else {
		rec = updated
	}
	s.cache.InvalidateRecord(id)

	return &DownloadResult{
		Data:     data,
		FileName: rec.FileName(),
		Record:   rec,
	}, nil
}
