// accounts.go — регистрация и просмотр аккаунтов.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/media-module/internal/api/errors"
	"github.com/bigkaa/goartstore/media-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/media-module/internal/service"
)

// AccountsHandler — обработчик endpoints аккаунтов.
type AccountsHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAccountsHandler создаёт обработчик аккаунтов.
func NewAccountsHandler(accounts *service.AccountService, logger *slog.Logger) *AccountsHandler {
	return &AccountsHandler{
		accounts: accounts,
		logger:   logger.With(slog.String("component", "accounts_handler")),
	}
}

// Register обрабатывает POST /api/v1/accounts.
// Регистрирует аккаунт с именем subject из JWT.
func (h *AccountsHandler) Register(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		apierrors.Unauthorized(w, "Регистрация требует аутентификации")
		return
	}

	acc, err := h.accounts.Register(r.Context(), subject)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

// Get обрабатывает GET /api/v1/accounts/{username}.
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.Info(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}
