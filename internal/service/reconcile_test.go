package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/storage/wal"
)

func issuesOf(report *ReconcileReport, typ IssueType) []ReconcileIssue {
	var out []ReconcileIssue
	for _, issue := range report.Issues {
		if issue.Type == typ {
			out = append(out, issue)
		}
	}
	return out
}

func TestReconcileRunOnce_NoIssues(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	env.mustUpload(t, "alice", "img", pngHeader)

	runsBefore := testutil.ToFloat64(reconcileRunsTotal)

	report, skipped := env.reconcile.RunOnce(context.Background())
	require.False(t, skipped)
	assert.Equal(t, 1, report.RecordsChecked)
	assert.Equal(t, 1, report.AccountsChecked)
	assert.Empty(t, report.Issues)
	assert.Equal(t, 0, report.Repaired)
	assert.Equal(t, runsBefore+1, testutil.ToFloat64(reconcileRunsTotal))
}

func TestReconcile_AbortedCreateRemovesBlob(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	ctx := context.Background()

	// Блоб размещён, журнал начат, запись в media не создана
	path, err := env.blobs.Place(model.CategoryImage, pngHeader)
	require.NoError(t, err)
	_, err = env.journal.StartTransaction(wal.OpMediaCreate, wal.Intent{MediaID: "abcd", Owner: "alice", BlobPath: path})
	require.NoError(t, err)

	report, skipped := env.reconcile.Recover(ctx)
	require.False(t, skipped)

	aborted := issuesOf(report, IssueAbortedCreate)
	require.Len(t, aborted, 1)
	assert.True(t, aborted[0].Repaired)
	assert.False(t, env.blobs.Exists(path))
	assert.Empty(t, issuesOf(report, IssueUnreferencedBlob))

	pending, err := env.journal.RecoverPending(timeZero)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReconcile_RunOnceSkipsFreshPending(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	path, err := env.blobs.Place(model.CategoryImage, pngHeader)
	require.NoError(t, err)
	_, err = env.journal.StartTransaction(wal.OpMediaCreate, wal.Intent{MediaID: "abcd", Owner: "alice", BlobPath: path})
	require.NoError(t, err)

	// Свежая операция считается выполняющейся
	report, skipped := env.reconcile.RunOnce(context.Background())
	require.False(t, skipped)
	assert.Equal(t, 0, report.PendingRecovered)
	assert.True(t, env.blobs.Exists(path))
	assert.Empty(t, issuesOf(report, IssueUnreferencedBlob))
}

func TestReconcile_DanglingIndexEntry(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	rec := env.mustUpload(t, "alice", "img", pngHeader)
	ctx := context.Background()

	require.NoError(t, env.accounts.AppendUpload(ctx, "alice", "gone"))

	report, _ := env.reconcile.RunOnce(ctx)
	dangling := issuesOf(report, IssueDanglingIndexEntry)
	require.Len(t, dangling, 1)
	assert.Equal(t, "gone", dangling[0].MediaID)
	assert.True(t, dangling[0].Repaired)

	acc, err := env.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, acc.Uploads)
}

func TestReconcile_StillDangling(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	env.register(t, "bob")
	ctx := context.Background()

	// Запись появилась после сканирования: индекс не трогается
	rec := env.mustUpload(t, "alice", "img", pngHeader)
	assert.False(t, env.reconcile.stillDangling(ctx, "alice", rec.ID))

	assert.True(t, env.reconcile.stillDangling(ctx, "alice", "gone"))
	assert.True(t, env.reconcile.stillDangling(ctx, "bob", rec.ID))
}

func TestReconcile_ForeignIndexEntry(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	env.register(t, "bob")
	rec := env.mustUpload(t, "alice", "img", pngHeader)
	ctx := context.Background()

	require.NoError(t, env.accounts.AppendUpload(ctx, "bob", rec.ID))

	report, _ := env.reconcile.RunOnce(ctx)
	require.Len(t, issuesOf(report, IssueDanglingIndexEntry), 1)

	bob, err := env.accounts.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bob.Uploads)
}

func TestReconcile_UnindexedRecord(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	rec := env.mustUpload(t, "alice", "img", pngHeader)
	ctx := context.Background()

	require.NoError(t, env.accounts.DetachUpload(ctx, "alice", rec.ID))

	report, _ := env.reconcile.RunOnce(ctx)
	unindexed := issuesOf(report, IssueUnindexedRecord)
	require.Len(t, unindexed, 1)
	assert.True(t, unindexed[0].Repaired)
	assert.Equal(t, 1, report.Repaired)

	acc, err := env.accounts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, acc.Uploads)
}

func TestReconcile_ReportOnlyIssues(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	rec := env.mustUpload(t, "alice", "img", pngHeader)
	ctx := context.Background()

	// Запись без зарегистрированного владельца
	orphan := &model.MediaRecord{
		ID:         "orph",
		Name:       "orphan",
		Category:   model.CategoryOther,
		BlobPath:   filepath.Join(env.blobs.Root(), "content", "Other", "missing"),
		UploadedAt: time.Now().UTC(),
		Author:     "ghost",
	}
	require.NoError(t, env.media.Insert(ctx, orphan))

	// Блоб удалённой записи остаётся на диске
	require.NoError(t, env.mutate.Delete(ctx, rec.ID, "alice"))

	issuesBefore := testutil.ToFloat64(reconcileIssuesTotal.WithLabelValues(string(IssueMissingOwner)))

	report, _ := env.reconcile.RunOnce(ctx)

	owner := issuesOf(report, IssueMissingOwner)
	require.Len(t, owner, 1)
	assert.False(t, owner[0].Repaired)

	missing := issuesOf(report, IssueMissingBlob)
	require.Len(t, missing, 1)
	assert.Equal(t, "orph", missing[0].MediaID)

	unreferenced := issuesOf(report, IssueUnreferencedBlob)
	require.Len(t, unreferenced, 1)
	assert.Equal(t, rec.BlobPath, unreferenced[0].Path)
	assert.True(t, env.blobs.Exists(rec.BlobPath))

	assert.Equal(t, 0, report.Repaired)
	assert.Equal(t, issuesBefore+1, testutil.ToFloat64(reconcileIssuesTotal.WithLabelValues(string(IssueMissingOwner))))
}

func TestReconcile_ConcurrentRunSkipped(t *testing.T) {
	env := newTestEnv(t)

	env.reconcile.mu.Lock()
	env.reconcile.inProcess = true
	env.reconcile.mu.Unlock()

	assert.True(t, env.reconcile.IsInProgress())
	report, skipped := env.reconcile.RunOnce(context.Background())
	assert.True(t, skipped)
	assert.Nil(t, report)
}

func TestReconcile_StartStop(t *testing.T) {
	env := newTestEnv(t)
	env.reconcile.interval = 20 * time.Millisecond

	runsBefore := testutil.ToFloat64(reconcileRunsTotal)

	env.reconcile.Start(context.Background())
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(reconcileRunsTotal) > runsBefore
	}, 2*time.Second, 10*time.Millisecond)
	env.reconcile.Stop()

	assert.False(t, env.reconcile.IsInProgress())
}
