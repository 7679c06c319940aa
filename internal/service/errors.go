// Пакет service — бизнес-логика Media Module: загрузка, поиск,
// скачивание, редактирование и удаление медиа, сверка метаданных.
package service

import (
	"errors"
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/media-module/internal/api/errors"
	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
)

// msgInternal — сообщение клиенту для внутренних ошибок. Детали только в логах.
const msgInternal = "Внутренняя ошибка сервера"

// Error — ошибка сервиса с HTTP-кодом и машиночитаемым кодом.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	// Err — причина, только для логов
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsInternal сообщает, что ошибка внутренняя (5xx).
func (e *Error) IsInternal() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// AsError извлекает *Error из цепочки. Прочие ошибки считаются внутренними.
func AsError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return internal(err)
}

func badRequest(format string, args ...any) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: apierrors.CodeValidationError, Message: fmt.Sprintf(format, args...)}
}

func unauthorized(message string) *Error {
	return &Error{StatusCode: http.StatusUnauthorized, Code: apierrors.CodeUnauthorized, Message: message}
}

func forbidden(message string) *Error {
	return &Error{StatusCode: http.StatusForbidden, Code: apierrors.CodeForbidden, Message: message}
}

func notFound(format string, args ...any) *Error {
	return &Error{StatusCode: http.StatusNotFound, Code: apierrors.CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(code, message string) *Error {
	return &Error{StatusCode: http.StatusConflict, Code: code, Message: message}
}

func modeNotAllowed(op mode.Operation, current mode.Mode) *Error {
	return conflict(apierrors.CodeModeNotAllowed,
		fmt.Sprintf("Операция %s недоступна в режиме %s", op, current))
}

func internal(err error) *Error {
	return &Error{StatusCode: http.StatusInternalServerError, Code: apierrors.CodeInternalError, Message: msgInternal, Err: err}
}
