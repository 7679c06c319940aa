// Пакет handlers — HTTP-обработчики Media Module. Обработчики разбирают
// запрос, вызывают сервисный слой и отображают результат или *service.Error
// в JSON-ответ.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/media-module/internal/api/errors"
	"github.com/bigkaa/goartstore/media-module/internal/service"
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError отображает ошибку сервиса в ответ. Причина внутренних
// ошибок остаётся в логах.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	se := service.AsError(err)
	if se.IsInternal() && se.Err != nil {
		logger.Error("Внутренняя ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", se.Err.Error()),
		)
	}
	apierrors.WriteError(w, se.StatusCode, se.Code, se.Message)
}
