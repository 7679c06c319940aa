// upload.go — оркестратор загрузки: классификация, сжатие, размещение блоба
// и две записи метаданных (media + индекс владельца) под журналом намерений.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/bigkaa/goartstore/media-module/internal/config"
	"github.com/bigkaa/goartstore/media-module/internal/content"
	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
	"github.com/bigkaa/goartstore/media-module/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/media-module/internal/storage/wal"
)

// maxIDAttempts — попытки сгенерировать незанятый идентификатор записи.
const maxIDAttempts = 8

// UploadParams — параметры загрузки.
type UploadParams struct {
	// Owner — username владельца (sub из JWT)
	Owner string
	// Name — отображаемое имя
	Name string
	// Data — содержимое файла
	Data []byte
	// Unlisted — скрыть из анонимных листингов (nil — false)
	Unlisted *bool
	// Tags — теги до нормализации
	Tags []string
}

// UploadService — сервис загрузки медиа.
type UploadService struct {
	cfg      *config.Config
	media    *repository.MediaRepository
	accounts *repository.AccountRepository
	blobs    *blobstore.Store
	journal  *wal.WAL
	sm       *mode.StateMachine
	cache    *MediaCache
	logger   *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	cfg *config.Config,
	media *repository.MediaRepository,
	accounts *repository.AccountRepository,
	blobs *blobstore.Store,
	journal *wal.WAL,
	sm *mode.StateMachine,
	cache *MediaCache,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		cfg:      cfg,
		media:    media,
		accounts: accounts,
		blobs:    blobs,
		journal:  journal,
		sm:       sm,
		cache:    cache,
		logger:   logger.With(slog.String("component", "upload_service")),
	}
}

// Upload сохраняет блоб и создаёт запись MediaRecord.
//
// Поток:
//  1. Проверка режима и аккаунта владельца
//  2. Длина имени, квота количества загрузок, квоты размера
//  3. Классификация и политика сжатия
//  4. Размещение блоба, нормализация тегов, генерация id
//  5. WAL StartTransaction (media_create)
//  6. Запись в media + flush
//  7. Добавление id в индекс владельца (user) + flush
//  8. WAL Commit
//
// При сбое шагов 6-7 возвращается внутренняя ошибка без отката:
// WAL-запись остаётся pending и разбирается сверкой.
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (rec *model.MediaRecord, err error) {
	defer func() { observe("upload", err) }()

	if !s.sm.CanPerform(mode.OpUpload) {
		return nil, modeNotAllowed(mode.OpUpload, s.sm.CurrentMode())
	}

	if params.Owner == "" {
		return nil, unauthorized("Загрузка требует аутентификации")
	}
	account, err := s.accounts.Get(ctx, params.Owner)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, unauthorized("Аккаунт не зарегистрирован")
	}
	if err != nil {
		return nil, s.fail("чтение аккаунта", err)
	}

	if err := validateName(params.Name, s.cfg.MaxNameLength); err != nil {
		return nil, err
	}

	if limit := s.cfg.UploadLimit; limit > 0 && len(account.Uploads) >= limit {
		return nil, badRequest("Достигнут лимит загрузок: %d", limit)
	}

	if err := s.checkSize(ctx, int64(len(params.Data))); err != nil {
		return nil, err
	}

	class, err := content.Classify(params.Data)
	if err != nil {
		return nil, s.fail("классификация содержимого", err)
	}

	stored, compressed := params.Data, false
	if s.cfg.StoreCompressed {
		stored, compressed = content.Compress(params.Data)
	}

	blobPath, err := s.blobs.Place(class.Category, stored)
	if err != nil {
		return nil, s.fail("размещение блоба", err)
	}

	id, err := s.newRecordID(ctx)
	if err != nil {
		s.removeBlob(blobPath)
		return nil, s.fail("генерация идентификатора", err)
	}

	rec = &model.MediaRecord{
		ID:         id,
		Name:       params.Name,
		Extension:  class.Extension,
		Category:   class.Category,
		SizeBytes:  int64(len(stored)),
		BlobPath:   blobPath,
		Compressed: compressed,
		UploadedAt: time.Now().UTC(),
		Author:     params.Owner,
		Unlisted:   params.Unlisted != nil && *params.Unlisted,
		Tags:       normalizeTags(params.Tags, s.cfg),
	}

	entry, err := s.journal.StartTransaction(wal.OpMediaCreate, wal.Intent{
		MediaID:  id,
		Owner:    params.Owner,
		BlobPath: blobPath,
	})
	if err != nil {
		s.removeBlob(blobPath)
		return nil, s.fail("журнал намерений", err)
	}

	if err := s.media.Insert(ctx, rec); err != nil {
		return nil, s.fail("запись в media", err)
	}
	if err := s.media.Flush(ctx); err != nil {
		return nil, s.fail("flush media", err)
	}

	// Вторая запись: при сбое запись уже видна в поиске, но не в индексе владельца
	if err := s.accounts.AppendUpload(ctx, params.Owner, id); err != nil {
		dualWriteFailuresTotal.WithLabelValues(string(wal.OpMediaCreate)).Inc()
		return nil, s.fail("индекс загрузок владельца", err,
			slog.String("media_id", id), slog.String("tx_id", entry.TransactionID))
	}
	if err := s.accounts.Flush(ctx); err != nil {
		return nil, s.fail("flush user", err)
	}

	if err := s.journal.Commit(entry.TransactionID); err != nil {
		// Обе записи выполнены; pending-запись сверка закроет идемпотентно
		s.logger.Warn("Не удалось закоммитить WAL после загрузки",
			slog.String("tx_id", entry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	s.cache.Invalidate(id)
	storedBytesTotal.Add(float64(rec.SizeBytes))
	if compressed {
		compressedUploadsTotal.Inc()
	}

	s.logger.Info("Медиа загружено",
		slog.String("media_id", id),
		slog.String("owner", params.Owner),
		slog.String("category", string(rec.Category)),
		slog.Int("raw_size", len(params.Data)),
		slog.Int64("stored_size", rec.SizeBytes),
		slog.Bool("compressed", compressed),
	)

	return rec, nil
}

// checkSize проверяет лимит одной загрузки и общий лимит.
// Общий лимит суммирует size_bytes всех записей пространства media,
// а не только записей владельца.
func (s *UploadService) checkSize(ctx context.Context, size int64) error {
	if limit := s.cfg.UploadSizeLimit(); limit > 0 && size > limit {
		return badRequest("Размер %d байт превышает лимит загрузки %d байт", size, limit)
	}

	limit := s.cfg.TotalUploadSizeLimit()
	if limit <= 0 {
		return nil
	}

	records, err := s.media.Scan(ctx)
	if err != nil {
		return s.fail("подсчёт общего объёма", err)
	}
	var total int64
	for _, r := range records {
		total += r.SizeBytes
	}
	if total+size > limit {
		return badRequest("Превышен общий лимит объёма загрузок %d байт", limit)
	}
	return nil
}

// newRecordID генерирует идентификатор, отсутствующий в пространстве media.
func (s *UploadService) newRecordID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := model.NewID(s.cfg.IDLength)
		if err != nil {
			return "", err
		}
		exists, err := s.media.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
		s.logger.Debug("Коллизия идентификатора записи", slog.String("media_id", id))
	}
	return "", fmt.Errorf("не удалось получить свободный идентификатор за %d попыток", maxIDAttempts)
}

func (s *UploadService) removeBlob(path string) {
	if err := s.blobs.Remove(path); err != nil {
		s.logger.Warn("Не удалось удалить блоб после ошибки загрузки",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (s *UploadService) fail(step string, err error, attrs ...any) *Error {
	s.logger.Error("Ошибка загрузки: "+step, append(attrs, slog.String("error", err.Error()))...)
	return internal(fmt.Errorf("%s: %w", step, err))
}

// validateName проверяет, что имя непустое и не длиннее maxLen символов.
func validateName(name string, maxLen int) error {
	if name == "" {
		return badRequest("Имя не может быть пустым")
	}
	if n := utf8.RuneCountInString(name); n > maxLen {
		return badRequest("Длина имени %d превышает максимум %d", n, maxLen)
	}
	return nil
}
