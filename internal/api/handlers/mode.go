// mode.go — обработчик POST /api/v1/mode/transition.
// Смена режима работы Media Module (rw→ro свободно, ro→rw с confirm).
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goartstore/media-module/internal/api/errors"
	"github.com/bigkaa/goartstore/media-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
)

// ModeTransitionRequest — тело запроса смены режима.
type ModeTransitionRequest struct {
	TargetMode string `json:"target_mode"`
	Confirm    *bool  `json:"confirm,omitempty"`
}

// ModeTransitionResponse — результат смены режима.
type ModeTransitionResponse struct {
	PreviousMode   mode.Mode `json:"previous_mode"`
	CurrentMode    mode.Mode `json:"current_mode"`
	TransitionedAt time.Time `json:"transitioned_at"`
}

// ModePersister — сохранение режима между перезапусками.
type ModePersister interface {
	SaveMode(m mode.Mode, updatedBy string) error
}

// ModeHandler — обработчик endpoint смены режима.
type ModeHandler struct {
	sm        *mode.StateMachine
	persister ModePersister
	logger    *slog.Logger
}

// NewModeHandler создаёт обработчик смены режима.
// persister может быть nil — режим живёт только в памяти.
func NewModeHandler(sm *mode.StateMachine, persister ModePersister, logger *slog.Logger) *ModeHandler {
	return &ModeHandler{
		sm:        sm,
		persister: persister,
		logger:    logger.With(slog.String("component", "mode_handler")),
	}
}

// TransitionMode обрабатывает POST /api/v1/mode/transition.
// Требует scope media:admin.
func (h *ModeHandler) TransitionMode(w http.ResponseWriter, r *http.Request) {
	var req ModeTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	target, err := mode.ParseMode(req.TargetMode)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	subject := middleware.SubjectFromContext(r.Context())
	previous := h.sm.CurrentMode()
	confirm := req.Confirm != nil && *req.Confirm

	if err := h.sm.TransitionTo(target, confirm, subject); err != nil {
		var transErr *mode.TransitionError
		if !errors.As(err, &transErr) {
			apierrors.InternalError(w, "Ошибка смены режима")
			return
		}
		switch transErr.Code {
		case apierrors.CodeConfirmationRequired:
			apierrors.ConfirmationRequired(w, transErr.Message)
		default:
			apierrors.InvalidTransition(w, transErr.Message)
		}
		return
	}

	if h.persister != nil {
		if err := h.persister.SaveMode(target, subject); err != nil {
			// Режим уже изменён в памяти, после перезапуска вернётся прежний
			h.logger.Error("Ошибка сохранения режима", slog.String("error", err.Error()))
		}
	}

	now := time.Now().UTC()
	h.logger.Info("Режим изменён",
		slog.String("from", string(previous)),
		slog.String("to", string(target)),
		slog.String("subject", subject),
	)

	writeJSON(w, http.StatusOK, ModeTransitionResponse{
		PreviousMode:   previous,
		CurrentMode:    target,
		TransitionedAt: now,
	})
}
