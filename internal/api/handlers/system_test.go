package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/media-module/internal/domain/mode"
	"github.com/bigkaa/goartstore/media-module/internal/service"
	"github.com/bigkaa/goartstore/media-module/internal/storage/modefile"
)

func TestAccounts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/accounts", "alice", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var acc service.AccountInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&acc))
	assert.Equal(t, "alice", acc.Username)
	assert.Empty(t, acc.Uploads)

	w = env.do(t, http.MethodPost, "/accounts", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_EXISTS", errorCode(t, w))

	info := env.upload(t, "alice", "name=img", pngHeader)
	w = env.do(t, http.MethodGet, "/accounts/alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&acc))
	assert.Equal(t, []string{info.ID}, acc.Uploads)

	w = env.do(t, http.MethodGet, "/accounts/bob", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModeTransition(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/mode/transition", "admin", []byte(`{"target_mode":"ro"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var resp ModeTransitionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, mode.ModeRW, resp.PreviousMode)
	assert.Equal(t, mode.ModeRO, resp.CurrentMode)
	assert.Equal(t, mode.ModeRO, env.sm.CurrentMode())

	w = env.do(t, http.MethodPost, "/mode/transition", "admin", []byte(`{"target_mode":"rw"}`))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", errorCode(t, w))

	w = env.do(t, http.MethodPost, "/mode/transition", "admin", []byte(`{"target_mode":"ro"}`))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, w))

	w = env.do(t, http.MethodPost, "/mode/transition", "admin", []byte(`{"target_mode":"ar"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/mode/transition", "admin", []byte(`{"target_mode":"rw","confirm":true}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, mode.ModeRW, env.sm.CurrentMode())
}

func TestServiceConfigAndInfo(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/service/config", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cfg))
	assert.Equal(t, true, cfg["media_allow_editing"])
	assert.Equal(t, float64(32), cfg["media_max_name_length"])
	assert.NotContains(t, cfg, "DataDir")

	w = env.do(t, http.MethodGet, "/service/info", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info ServiceInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, "media-module", info.Service)
	assert.Equal(t, mode.ModeRW, info.Mode)
	assert.Contains(t, info.AllowedOperations, mode.OpUpload)
	assert.Empty(t, info.Dependencies)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	env.register(t, "bob")
	env.upload(t, "alice", "name=img", pngHeader)

	w := env.do(t, http.MethodGet, "/stats/media", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var media service.MediaStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&media))
	assert.Equal(t, 1, media.Total)

	w = env.do(t, http.MethodGet, "/stats/users", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users service.UserStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&users))
	assert.Equal(t, 2, users.Total)
	assert.Equal(t, 1, users.WithUploads)
}

func TestReconcile(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/maintenance/reconcile", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report service.ReconcileReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Empty(t, report.Issues)
	assert.False(t, report.StartedAt.IsZero())
}

type busyReconciler struct {
	running bool
	calls   int
}

func (b *busyReconciler) IsInProgress() bool { return b.running }

// RunOnce эмулирует гонку: цикл стартовал между IsInProgress и RunOnce.
func (b *busyReconciler) RunOnce(context.Context) (*service.ReconcileReport, bool) {
	b.calls++
	return nil, true
}

func TestReconcile_InProgress(t *testing.T) {
	tests := []struct {
		name      string
		running   bool
		wantCalls int
	}{
		{name: "цикл уже выполняется", running: true, wantCalls: 0},
		{name: "цикл стартовал конкурентно", running: false, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &busyReconciler{running: tt.running}
			h := NewMaintenanceHandler(runner)
			w := httptest.NewRecorder()
			h.Reconcile(w, httptest.NewRequest(http.MethodPost, "/maintenance/reconcile", nil))

			assert.Equal(t, http.StatusConflict, w.Code)
			assert.Equal(t, "RECONCILE_IN_PROGRESS", errorCode(t, w))
			assert.Equal(t, tt.wantCalls, runner.calls)
		})
	}
}

type fakeReadiness struct {
	status string
}

func (f fakeReadiness) CheckReady() (string, string) {
	return f.status, "проверка"
}

func TestHealth(t *testing.T) {
	dir := t.TempDir()

	t.Run("live", func(t *testing.T) {
		h := NewHealthHandler("", "", nil)
		w := httptest.NewRecorder()
		h.HealthLive(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
	})

	t.Run("ready", func(t *testing.T) {
		h := NewHealthHandler(dir, dir, fakeReadiness{status: "ok"})
		w := httptest.NewRecorder()
		h.HealthReady(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("хранилище недоступно", func(t *testing.T) {
		h := NewHealthHandler(dir, dir, fakeReadiness{status: "fail"})
		w := httptest.NewRecorder()
		h.HealthReady(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("директория WAL отсутствует", func(t *testing.T) {
		missing := filepath.Join(dir, "missing")
		_, err := os.Stat(missing)
		require.True(t, os.IsNotExist(err))

		h := NewHealthHandler(dir, missing, nil)
		w := httptest.NewRecorder()
		h.HealthReady(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "WAL")
	})
}

func TestModeTransition_Persisted(t *testing.T) {
	sm, err := mode.NewStateMachine(mode.ModeRW)
	require.NoError(t, err)
	store := modefile.New(t.TempDir())
	h := NewModeHandler(sm, store, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/mode/transition", strings.NewReader(`{"target_mode":"ro"}`))
	w := httptest.NewRecorder()
	h.TransitionMode(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	saved, err := store.LoadMode()
	require.NoError(t, err)
	assert.Equal(t, mode.ModeRO, saved)
}
