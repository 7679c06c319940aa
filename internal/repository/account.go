package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/storage/kv"
)

// AccountRepository — проекции аккаунтов в пространстве user.
type AccountRepository struct {
	ns     kv.Namespace
	logger *slog.Logger
}

// NewAccountRepository создаёт репозиторий поверх пространства user.
func NewAccountRepository(store kv.Store, logger *slog.Logger) (*AccountRepository, error) {
	ns, err := store.Namespace(kv.NamespaceUser)
	if err != nil {
		return nil, err
	}
	return &AccountRepository{
		ns:     ns,
		logger: logger.With(slog.String("component", "account_repository")),
	}, nil
}

// Get возвращает аккаунт или ErrNotFound.
func (r *AccountRepository) Get(ctx context.Context, username string) (*model.Account, error) {
	raw, err := r.ns.Get(ctx, username)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeAccount(raw)
}

// Exists проверяет, что аккаунт зарегистрирован и читаем.
func (r *AccountRepository) Exists(ctx context.Context, username string) (bool, error) {
	_, err := r.Get(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create регистрирует аккаунт с пустым индексом загрузок.
// Существующий аккаунт — ErrAlreadyExists.
func (r *AccountRepository) Create(ctx context.Context, username string) (*model.Account, error) {
	acc := &model.Account{
		Username:  username,
		Uploads:   []string{},
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.ns.UpdateAndFetch(ctx, username, func(old []byte) ([]byte, error) {
		if old != nil {
			return nil, ErrAlreadyExists
		}
		return json.Marshal(acc)
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// AppendUpload добавляет id в индекс загрузок владельца (идемпотентно).
func (r *AccountRepository) AppendUpload(ctx context.Context, username, id string) error {
	_, err := r.update(ctx, username, func(acc *model.Account) { acc.AppendUpload(id) })
	return err
}

// DetachUpload исключает id из индекса загрузок владельца (идемпотентно).
func (r *AccountRepository) DetachUpload(ctx context.Context, username, id string) error {
	_, err := r.update(ctx, username, func(acc *model.Account) { acc.DetachUpload(id) })
	return err
}

// Scan возвращает все читаемые аккаунты. Повреждённые пропускаются.
func (r *AccountRepository) Scan(ctx context.Context) ([]*model.Account, error) {
	entries, err := r.ns.Scan(ctx)
	if err != nil {
		return nil, err
	}

	accounts := make([]*model.Account, 0, len(entries))
	for _, e := range entries {
		acc, err := decodeAccount(e.Value)
		if err != nil {
			skipCorrupt(r.logger, kv.NamespaceUser, e.Key, err)
			continue
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// Flush — барьер долговечности пространства user.
func (r *AccountRepository) Flush(ctx context.Context) error {
	return r.ns.Flush(ctx)
}

func (r *AccountRepository) update(ctx context.Context, username string, fn func(acc *model.Account)) (*model.Account, error) {
	var updated *model.Account
	_, err := r.ns.UpdateAndFetch(ctx, username, func(old []byte) ([]byte, error) {
		if old == nil {
			return nil, ErrNotFound
		}
		acc, err := decodeAccount(old)
		if err != nil {
			return nil, err
		}
		fn(acc)
		updated = acc
		return json.Marshal(acc)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func decodeAccount(raw []byte) (*model.Account, error) {
	var acc model.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("ошибка десериализации аккаунта: %w", err)
	}
	if acc.Username == "" {
		return nil, errors.New("аккаунт без имени")
	}
	return &acc, nil
}
