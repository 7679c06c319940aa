// Пакет repository — типизированный доступ к пространствам имён
// хранилища метаданных (JSON-сериализация записей).
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/storage/kv"
)

var (
	// ErrNotFound — запись или аккаунт не найдены.
	ErrNotFound = errors.New("не найдено")
	// ErrAlreadyExists — аккаунт уже зарегистрирован.
	ErrAlreadyExists = errors.New("уже существует")
)

// MediaRepository — записи MediaRecord в пространстве media.
type MediaRepository struct {
	ns     kv.Namespace
	logger *slog.Logger
}

// NewMediaRepository создаёт репозиторий поверх пространства media.
func NewMediaRepository(store kv.Store, logger *slog.Logger) (*MediaRepository, error) {
	ns, err := store.Namespace(kv.NamespaceMedia)
	if err != nil {
		return nil, err
	}
	return &MediaRepository{
		ns:     ns,
		logger: logger.With(slog.String("component", "media_repository")),
	}, nil
}

// Get возвращает запись по id или ErrNotFound.
func (r *MediaRepository) Get(ctx context.Context, id string) (*model.MediaRecord, error) {
	raw, err := r.ns.Get(ctx, id)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeMedia(raw)
}

// Exists проверяет наличие ключа id.
func (r *MediaRepository) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.ns.Get(ctx, id)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Insert сохраняет запись под ключом rec.ID.
func (r *MediaRepository) Insert(ctx context.Context, rec *model.MediaRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи %s: %w", rec.ID, err)
	}
	return r.ns.Insert(ctx, rec.ID, raw)
}

// Update атомарно изменяет запись функцией fn и возвращает результат.
// Отсутствующая запись — ErrNotFound, fn не вызывается.
func (r *MediaRepository) Update(ctx context.Context, id string, fn func(rec *model.MediaRecord) error) (*model.MediaRecord, error) {
	var updated *model.MediaRecord
	_, err := r.ns.UpdateAndFetch(ctx, id, func(old []byte) ([]byte, error) {
		if old == nil {
			return nil, ErrNotFound
		}
		rec, err := decodeMedia(old)
		if err != nil {
			return nil, err
		}
		if err := fn(rec); err != nil {
			return nil, err
		}
		updated = rec
		return json.Marshal(rec)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Remove удаляет запись. Отсутствующая запись не считается ошибкой.
func (r *MediaRepository) Remove(ctx context.Context, id string) error {
	return r.ns.Remove(ctx, id)
}

// Scan возвращает все читаемые записи в порядке хранилища.
// Повреждённые записи пропускаются с предупреждением и учитываются в метрике.
func (r *MediaRepository) Scan(ctx context.Context) ([]*model.MediaRecord, error) {
	entries, err := r.ns.Scan(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*model.MediaRecord, 0, len(entries))
	for _, e := range entries {
		rec, err := decodeMedia(e.Value)
		if err != nil {
			skipCorrupt(r.logger, kv.NamespaceMedia, e.Key, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Flush — барьер долговечности пространства media.
func (r *MediaRepository) Flush(ctx context.Context) error {
	return r.ns.Flush(ctx)
}

func decodeMedia(raw []byte) (*model.MediaRecord, error) {
	var rec model.MediaRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("ошибка десериализации записи: %w", err)
	}
	if rec.ID == "" {
		return nil, errors.New("запись без идентификатора")
	}
	return &rec, nil
}

func skipCorrupt(logger *slog.Logger, namespace, key string, err error) {
	CorruptRecordsSkipped.WithLabelValues(namespace).Inc()
	logger.Warn("corrupt_record_skipped",
		slog.String("namespace", namespace),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
