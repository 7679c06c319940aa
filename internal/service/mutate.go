// mutate.go — редактирование и удаление записей.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bigkaa/goartstore/media-module/internal/config"
	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
	"github.com/bigkaa/goartstore/media-module/internal/storage/wal"
)

// EditParams — изменяемые поля. nil — поле не меняется.
type EditParams struct {
	Name     *string
	Unlisted *bool
	// Tags — полная замена набора тегов
	Tags *[]string
}

// MutationService — сервис изменения и удаления медиа.
type MutationService struct {
	cfg      *config.Config
	media    *repository.MediaRepository
	accounts *repository.AccountRepository
	journal  *wal.WAL
	sm       *mode.StateMachine
	cache    *MediaCache
	logger   *slog.Logger
}

// NewMutationService создаёт сервис изменения и удаления.
func NewMutationService(
	cfg *config.Config,
	media *repository.MediaRepository,
	accounts *repository.AccountRepository,
	journal *wal.WAL,
	sm *mode.StateMachine,
	cache *MediaCache,
	logger *slog.Logger,
) *MutationService {
	return &MutationService{
		cfg:      cfg,
		media:    media,
		accounts: accounts,
		journal:  journal,
		sm:       sm,
		cache:    cache,
		logger:   logger.With(slog.String("component", "mutation_service")),
	}
}

// Edit меняет имя, видимость и/или теги записи id.
// Требует включённого редактирования и зарегистрированного вызывающего.
// Владение записью не проверяется: редактировать может любой аккаунт.
func (s *MutationService) Edit(ctx context.Context, id, caller string, params EditParams) (rec *model.MediaRecord, err error) {
	defer func() { observe("edit", err) }()

	if !s.sm.CanPerform(mode.OpEdit) {
		return nil, modeNotAllowed(mode.OpEdit, s.sm.CurrentMode())
	}
	if !s.cfg.AllowEditing {
		return nil, forbidden("Редактирование медиа отключено")
	}
	if err := s.requireAccount(ctx, caller); err != nil {
		return nil, err
	}

	if params.Name != nil {
		if err := validateName(*params.Name, s.cfg.MaxNameLength); err != nil {
			return nil, err
		}
	}

	var tags []string
	if params.Tags != nil {
		tags = normalizeTags(*params.Tags, s.cfg)
	}

	rec, err = s.media.Update(ctx, id, func(r *model.MediaRecord) error {
		if params.Name != nil {
			r.Name = *params.Name
		}
		if params.Unlisted != nil {
			r.Unlisted = *params.Unlisted
		}
		if params.Tags != nil {
			r.Tags = tags
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("Медиа %s не найдено", id)
	}
	if err != nil {
		s.logger.Error("Ошибка обновления записи", slog.String("media_id", id), slog.String("error", err.Error()))
		return nil, internal(err)
	}
	if err := s.media.Flush(ctx); err != nil {
		s.logger.Error("Ошибка flush media", slog.String("error", err.Error()))
		return nil, internal(err)
	}

	s.cache.Invalidate(id)
	s.logger.Info("Медиа изменено",
		slog.String("media_id", id),
		slog.String("caller", caller),
	)
	return rec, nil
}

// Delete удаляет запись id владельца caller и исключает id из его индекса.
// Блоб на диске сохраняется.
func (s *MutationService) Delete(ctx context.Context, id, caller string) (err error) {
	defer func() { observe("delete", err) }()

	if !s.sm.CanPerform(mode.OpDelete) {
		return modeNotAllowed(mode.OpDelete, s.sm.CurrentMode())
	}
	if caller == "" {
		return unauthorized("Удаление требует аутентификации")
	}

	rec, err := s.media.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("Медиа %s не найдено", id)
	}
	if err != nil {
		s.logger.Error("Ошибка чтения записи", slog.String("media_id", id), slog.String("error", err.Error()))
		return internal(err)
	}
	if rec.Author != caller {
		return unauthorized("Удалить медиа может только владелец")
	}

	entry, err := s.journal.StartTransaction(wal.OpMediaDelete, wal.Intent{
		MediaID:  id,
		Owner:    caller,
		BlobPath: rec.BlobPath,
	})
	if err != nil {
		s.logger.Error("Ошибка журнала намерений", slog.String("error", err.Error()))
		return internal(err)
	}

	if err := s.media.Remove(ctx, id); err != nil {
		s.logger.Error("Ошибка удаления записи", slog.String("media_id", id), slog.String("error", err.Error()))
		return internal(err)
	}
	if err := s.media.Flush(ctx); err != nil {
		s.logger.Error("Ошибка flush media", slog.String("error", err.Error()))
		return internal(err)
	}
	s.cache.Invalidate(id)

	err = s.accounts.DetachUpload(ctx, caller, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		dualWriteFailuresTotal.WithLabelValues(string(wal.OpMediaDelete)).Inc()
		s.logger.Error("Ошибка обновления индекса загрузок владельца",
			slog.String("media_id", id),
			slog.String("tx_id", entry.TransactionID),
			slog.String("error", err.Error()),
		)
		return internal(err)
	}
	if err := s.accounts.Flush(ctx); err != nil {
		s.logger.Error("Ошибка flush user", slog.String("error", err.Error()))
		return internal(err)
	}

	if err := s.journal.Commit(entry.TransactionID); err != nil {
		s.logger.Warn("Не удалось закоммитить WAL после удаления",
			slog.String("tx_id", entry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Медиа удалено",
		slog.String("media_id", id),
		slog.String("owner", caller),
	)
	return nil
}

func (s *MutationService) requireAccount(ctx context.Context, caller string) error {
	if caller == "" {
		return unauthorized("Операция требует аутентификации")
	}
	ok, err := s.accounts.Exists(ctx, caller)
	if err != nil {
		s.logger.Error("Ошибка проверки аккаунта", slog.String("error", err.Error()))
		return internal(err)
	}
	if !ok {
		return unauthorized("Аккаунт не зарегистрирован")
	}
	return nil
}
