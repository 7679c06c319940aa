// Пакет openapi — встроенный OpenAPI-контракт Media Module:
// загрузка (kin-openapi), выдача в JSON и валидация параметров запросов.
package openapi

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/bigkaa/goartstore/media-module/internal/api/errors"
)

//go:embed openapi.yaml
var specYAML []byte

// Load разбирает и валидирует встроенный контракт.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI контракта: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI контракта: %w", err)
	}
	return doc, nil
}

// Handler отдаёт контракт в JSON (GET /api/v1/openapi.json).
func Handler(doc *openapi3.T) (http.Handler, error) {
	body, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI контракта: %w", err)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}), nil
}

// ValidationMiddleware проверяет path- и query-параметры запросов
// по контракту. Тело запроса проверяют обработчики: загрузка передаёт
// содержимое файла без промежуточной буферизации валидатором.
// Запросы к путям вне контракта пропускаются без проверки.
func ValidationMiddleware(doc *openapi3.T, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("создание OpenAPI роутера: %w", err)
	}
	logger = logger.With(slog.String("component", "openapi_validator"))

	options := &openapi3filter.Options{
		ExcludeRequestBody:  true,
		ExcludeResponseBody: true,
		SkipSettingDefaults: true,
		AuthenticationFunc:  openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				// Метод или путь вне контракта — решает chi (404/405)
				logger.Debug("Маршрут не найден в контракте",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				apierrors.ValidationError(w, validationMessage(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// validationMessage сокращает ошибку валидатора до сообщения клиенту.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) && reqErr.Parameter != nil {
		return fmt.Sprintf("Некорректный параметр %s", reqErr.Parameter.Name)
	}
	return err.Error()
}
