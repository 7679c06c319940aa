// maintenance.go — обработчик POST /api/v1/maintenance/reconcile.
// Делегирует сверку метаданных в ReconcileService.
package handlers

import (
	"context"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/media-module/internal/api/errors"
	"github.com/bigkaa/goartstore/media-module/internal/service"
)

// ReconcileRunner — запуск одного цикла сверки.
type ReconcileRunner interface {
	// IsInProgress возвращает true, пока выполняется цикл сверки.
	IsInProgress() bool
	// RunOnce возвращает отчёт и skipped=true, если цикл уже выполнялся.
	RunOnce(ctx context.Context) (report *service.ReconcileReport, skipped bool)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reconciler: reconciler}
}

// Reconcile обрабатывает POST /api/v1/maintenance/reconcile.
// Если сверка уже выполняется — 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.reconciler.IsInProgress() {
		apierrors.ReconcileInProgress(w, "Сверка уже выполняется")
		return
	}
	report, skipped := h.reconciler.RunOnce(r.Context())
	if skipped {
		apierrors.ReconcileInProgress(w, "Сверка уже выполняется")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
