// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/goartstore/media-module/internal/config"
)

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// ReadinessChecker — проверка готовности хранилища метаданных.
type ReadinessChecker interface {
	CheckReady() (status string, message string)
}

// HealthHandler реализует /health/live и /health/ready.
type HealthHandler struct {
	version string
	dataDir string
	walDir  string
	store   ReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
// store может быть nil — проверка хранилища метаданных пропускается.
func NewHealthHandler(dataDir, walDir string, store ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		dataDir: dataDir,
		walDir:  walDir,
		store:   store,
	}
}

// HealthLive обрабатывает GET /health/live. Зависимости не проверяются.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    statusOK,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "media-module",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: хранилище метаданных, директорию блобов, директорию WAL.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overall := statusOK
	httpStatus := http.StatusOK

	checks := map[string]any{
		"filesystem": checkWritableDir(h.dataDir, "Директория данных"),
		"wal":        checkWritableDir(h.walDir, "Директория WAL"),
	}
	if h.store != nil {
		status, message := h.store.CheckReady()
		checks["metadata"] = map[string]any{"status": status, "message": message}
	}

	for _, c := range checks {
		if c.(map[string]any)["status"] != statusOK {
			overall = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "media-module",
		"checks":    checks,
	})
}

// checkWritableDir проверяет доступность директории на запись пробным файлом.
func checkWritableDir(dir, title string) map[string]any {
	if dir == "" {
		return map[string]any{
			"status":  statusOK,
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(dir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": title + " недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{"status": statusOK}
}
