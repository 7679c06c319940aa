// media.go — обработчики /api/v1/media: загрузка, поиск, info, теги,
// скачивание, редактирование, удаление.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/goartstore/media-module/internal/api/errors"
	"github.com/bigkaa/goartstore/media-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/service"
)

// uploadBodySlack — запас сверх лимита загрузки, чтобы превышение
// отличалось от ровно допустимого размера.
const uploadBodySlack = 1

// SearchResponse — ответ поиска.
type SearchResponse struct {
	IDs   []string `json:"ids"`
	Total int      `json:"total"`
}

// TagsResponse — ответ списка тегов.
type TagsResponse struct {
	Tags []string `json:"tags"`
}

// EditRequest — тело PATCH /api/v1/media/{id}. Отсутствующее поле не меняется.
type EditRequest struct {
	Name     *string   `json:"name"`
	Unlisted *bool     `json:"unlisted"`
	Tags     *[]string `json:"tags"`
}

// MediaHandler — обработчик endpoints медиа.
type MediaHandler struct {
	upload      *service.UploadService
	search      *service.SearchService
	download    *service.DownloadService
	mutate      *service.MutationService
	media       *service.MediaService
	uploadLimit int64
	logger      *slog.Logger
}

// NewMediaHandler создаёт обработчик. uploadLimit — лимит тела загрузки в байтах (0 — без лимита).
func NewMediaHandler(
	upload *service.UploadService,
	search *service.SearchService,
	download *service.DownloadService,
	mutate *service.MutationService,
	media *service.MediaService,
	uploadLimit int64,
	logger *slog.Logger,
) *MediaHandler {
	return &MediaHandler{
		upload:      upload,
		search:      search,
		download:    download,
		mutate:      mutate,
		media:       media,
		uploadLimit: uploadLimit,
		logger:      logger.With(slog.String("component", "media_handler")),
	}
}

// Upload обрабатывает POST /api/v1/media.
// Тело — содержимое файла; name, unlisted, tags — query-параметры.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var unlisted *bool
	if raw := query.Get("unlisted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.ValidationError(w, "Параметр unlisted должен быть boolean")
			return
		}
		unlisted = &v
	}

	var tags []string
	if err := runtime.BindQueryParameter("form", true, false, "tags", query, &tags); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр tags")
		return
	}

	body := r.Body
	if h.uploadLimit > 0 {
		body = http.MaxBytesReader(w, r.Body, h.uploadLimit+uploadBodySlack)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер превышает лимит загрузки %d байт", h.uploadLimit))
			return
		}
		apierrors.ValidationError(w, "Ошибка чтения тела запроса")
		return
	}

	rec, err := h.upload.Upload(r.Context(), service.UploadParams{
		Owner:    middleware.SubjectFromContext(r.Context()),
		Name:     query.Get("name"),
		Data:     data,
		Unlisted: unlisted,
		Tags:     tags,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, service.NewMediaInfo(rec))
}

// Search обрабатывает GET /api/v1/media/search.
func (h *MediaHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := service.Filter{
		Author:          query.Get("author"),
		Requester:       middleware.SubjectFromContext(r.Context()),
		SortByDownloads: query.Get("sort") == "downloads",
	}

	if raw := query.Get("category"); raw != "" {
		category, err := model.ParseCategory(raw)
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
		filter.Category = category
	}

	if err := runtime.BindQueryParameter("form", true, false, "tags", query, &filter.Tags); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр tags")
		return
	}

	ids, err := h.search.Search(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{IDs: ids, Total: len(ids)})
}

// Tags обрабатывает GET /api/v1/media/tags.
func (h *MediaHandler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.media.Tags(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}

// Info обрабатывает GET /api/v1/media/{id}.
func (h *MediaHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.media.Info(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Download обрабатывает GET /api/v1/media/{id}/download.
// Range-запросы обслуживает http.ServeContent; каждый запрос учитывается
// в download_count.
func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	res, err := h.download.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	contentType := mime.TypeByExtension("." + res.Record.Extension)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": res.FileName,
	}))

	http.ServeContent(w, r, res.FileName, res.Record.UploadedAt, bytes.NewReader(res.Data))
}

// Edit обрабатывает PATCH /api/v1/media/{id}.
func (h *MediaHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	rec, err := h.mutate.Edit(r.Context(), chi.URLParam(r, "id"), middleware.SubjectFromContext(r.Context()), service.EditParams{
		Name:     req.Name,
		Unlisted: req.Unlisted,
		Tags:     req.Tags,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, service.NewMediaInfo(rec))
}

// Delete обрабатывает DELETE /api/v1/media/{id}.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.mutate.Delete(r.Context(), chi.URLParam(r, "id"), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
