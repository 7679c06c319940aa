// accounts.go — проекция аккаунтов: регистрация username и индекс загрузок.
package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	apierrors "github.com/bigkaa/goartstore/media-module/internal/api/errors"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
)

// usernamePattern — допустимый username (совпадает с sub из JWT).
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// AccountInfo — публичная проекция аккаунта.
type AccountInfo struct {
	Username  string    `json:"username"`
	Uploads   []string  `json:"uploads"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountService — сервис аккаунтов.
type AccountService struct {
	accounts *repository.AccountRepository
	logger   *slog.Logger
}

// NewAccountService создаёт сервис аккаунтов.
func NewAccountService(accounts *repository.AccountRepository, logger *slog.Logger) *AccountService {
	return &AccountService{
		accounts: accounts,
		logger:   logger.With(slog.String("component", "account_service")),
	}
}

// Register создаёт проекцию аккаунта с пустым индексом загрузок.
func (s *AccountService) Register(ctx context.Context, username string) (*AccountInfo, error) {
	if !usernamePattern.MatchString(username) {
		return nil, badRequest("Недопустимое имя пользователя %q", username)
	}

	acc, err := s.accounts.Create(ctx, username)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return nil, conflict(apierrors.CodeAlreadyExists, "Аккаунт уже зарегистрирован")
	}
	if err != nil {
		s.logger.Error("Ошибка регистрации аккаунта", slog.String("error", err.Error()))
		return nil, internal(err)
	}
	if err := s.accounts.Flush(ctx); err != nil {
		s.logger.Error("Ошибка flush user", slog.String("error", err.Error()))
		return nil, internal(err)
	}

	s.logger.Info("Аккаунт зарегистрирован", slog.String("username", username))
	return &AccountInfo{Username: acc.Username, Uploads: acc.Uploads, CreatedAt: acc.CreatedAt}, nil
}

// Info возвращает аккаунт и его индекс загрузок.
func (s *AccountService) Info(ctx context.Context, username string) (*AccountInfo, error) {
	acc, err := s.accounts.Get(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("Аккаунт %s не найден", username)
	}
	if err != nil {
		s.logger.Error("Ошибка чтения аккаунта", slog.String("error", err.Error()))
		return nil, internal(err)
	}

	uploads := acc.Uploads
	if uploads == nil {
		uploads = []string{}
	}
	return &AccountInfo{Username: acc.Username, Uploads: uploads, CreatedAt: acc.CreatedAt}, nil
}

// Exists проверяет, что аккаунт зарегистрирован.
func (s *AccountService) Exists(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	ok, err := s.accounts.Exists(ctx, username)
	if err != nil {
		return false, internal(err)
	}
	return ok, nil
}
