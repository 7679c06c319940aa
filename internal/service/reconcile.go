// reconcile.go — сверка метаданных (Reconciliation).
//
// Закрывает разрыв двух независимых записей (media и индекс владельца в user):
//   - pending media_create: запись есть → id добавляется в индекс; записи нет → блоб удаляется
//   - pending media_delete: запись удаляется, id исключается из индекса
//   - dangling_index_entry: id в индексе без записи (или чужой записи) → исключается
//   - unindexed_record: запись отсутствует в индексе владельца → добавляется
//   - missing_owner: владелец записи не зарегистрирован (только отчёт)
//   - missing_blob: запись ссылается на отсутствующий блоб (только отчёт)
//   - unreferenced_blob: блоб без записи (только отчёт, удалённые записи сохраняют блоб)
//
// При старте разбираются все pending-записи журнала, далее — периодически
// (MM_RECONCILE_INTERVAL) только достаточно старые.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/media-module/internal/domain/model"
	"github.com/bigkaa/goartstore/media-module/internal/repository"
	"github.com/bigkaa/goartstore/media-module/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/media-module/internal/storage/wal"
)

// pendingGrace — возраст pending-записи, после которого периодическая сверка
// считает операцию прерванной.
const pendingGrace = time.Minute

// IssueType — тип обнаруженной проблемы.
type IssueType string

const (
	IssueIncompleteCreate   IssueType = "incomplete_create"
	IssueAbortedCreate      IssueType = "aborted_create"
	IssueIncompleteDelete   IssueType = "incomplete_delete"
	IssueDanglingIndexEntry IssueType = "dangling_index_entry"
	IssueUnindexedRecord    IssueType = "unindexed_record"
	IssueMissingOwner       IssueType = "missing_owner"
	IssueMissingBlob        IssueType = "missing_blob"
	IssueUnreferencedBlob   IssueType = "unreferenced_blob"
)

// ReconcileIssue — одна проблема.
type ReconcileIssue struct {
	Type        IssueType `json:"type"`
	MediaID     string    `json:"media_id,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Path        string    `json:"path,omitempty"`
	Description string    `json:"description"`
	// Repaired — проблема исправлена автоматически
	Repaired bool `json:"repaired"`
}

// ReconcileReport — результат одного цикла.
type ReconcileReport struct {
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      time.Time        `json:"completed_at"`
	RecordsChecked   int              `json:"records_checked"`
	AccountsChecked  int              `json:"accounts_checked"`
	PendingRecovered int              `json:"pending_recovered"`
	Issues           []ReconcileIssue `json:"issues"`
	Repaired         int              `json:"repaired"`
}

// Prometheus метрики сверки.
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_reconcile_runs_total",
		Help: "Общее количество запусков сверки метаданных",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_reconcile_issues_total",
		Help: "Проблемы, обнаруженные сверкой, по типу",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mm_reconcile_duration_seconds",
		Help:    "Длительность сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ReconcileService — сервис сверки метаданных.
type ReconcileService struct {
	media    *repository.MediaRepository
	accounts *repository.AccountRepository
	blobs    *blobstore.Store
	journal  *wal.WAL
	cache    *MediaCache
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	media *repository.MediaRepository,
	accounts *repository.AccountRepository,
	blobs *blobstore.Store,
	journal *wal.WAL,
	cache *MediaCache,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		media:    media,
		accounts: accounts,
		blobs:    blobs,
		journal:  journal,
		cache:    cache,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Сверка метаданных запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновую горутину и дожидается её завершения.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
		<-rs.done
	}
	rs.logger.Info("Сверка метаданных остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce(ctx)
		}
	}
}

// Recover — сверка при старте: разбираются все pending-записи журнала.
func (rs *ReconcileService) Recover(ctx context.Context) (report *ReconcileReport, skipped bool) {
	return rs.runCycle(ctx, time.Time{})
}

// RunOnce выполняет один цикл сверки. Pending-записи моложе pendingGrace
// считаются выполняющимися и не трогаются.
// Второе значение — true, если сверка уже выполнялась (пропуск).
func (rs *ReconcileService) RunOnce(ctx context.Context) (report *ReconcileReport, skipped bool) {
	return rs.runCycle(ctx, time.Now().Add(-pendingGrace))
}

func (rs *ReconcileService) runCycle(ctx context.Context, cutoff time.Time) (*ReconcileReport, bool) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	report := &ReconcileReport{StartedAt: time.Now().UTC(), Issues: []ReconcileIssue{}}
	rs.logger.Info("Сверка начата")

	rs.recoverPending(ctx, cutoff, report)
	rs.checkConsistency(ctx, report)

	if _, err := rs.journal.CleanCommitted(); err != nil {
		rs.logger.Warn("Ошибка очистки WAL", slog.String("error", err.Error()))
	}

	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
		if issue.Repaired {
			report.Repaired++
		}
	}
	if report.Repaired > 0 {
		rs.cache.InvalidateAll()
	}

	report.CompletedAt = time.Now().UTC()
	duration := report.CompletedAt.Sub(report.StartedAt)
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())

	rs.logger.Info("Сверка завершена",
		slog.Int("records_checked", report.RecordsChecked),
		slog.Int("accounts_checked", report.AccountsChecked),
		slog.Int("pending_recovered", report.PendingRecovered),
		slog.Int("issues", len(report.Issues)),
		slog.Int("repaired", report.Repaired),
		slog.Duration("duration", duration),
	)

	return report, false
}

// recoverPending доводит или отменяет прерванные операции журнала.
func (rs *ReconcileService) recoverPending(ctx context.Context, cutoff time.Time, report *ReconcileReport) {
	// Нулевой cutoff разбирает всё: при старте in-flight операций нет
	entries, err := rs.journal.RecoverPending(cutoff)
	if err != nil {
		rs.logger.Error("Ошибка чтения WAL", slog.String("error", err.Error()))
		return
	}

	for _, entry := range entries {
		var issue *ReconcileIssue
		switch entry.Operation {
		case wal.OpMediaCreate:
			issue, err = rs.recoverCreate(ctx, entry)
		case wal.OpMediaDelete:
			issue, err = rs.recoverDelete(ctx, entry)
		default:
			rs.logger.Warn("Неизвестная операция WAL", slog.String("operation", string(entry.Operation)))
			continue
		}
		if err != nil {
			rs.logger.Error("Не удалось восстановить WAL-транзакцию",
				slog.String("tx_id", entry.TransactionID),
				slog.String("media_id", entry.MediaID),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.PendingRecovered++
		report.Issues = append(report.Issues, *issue)
	}
}

func (rs *ReconcileService) recoverCreate(ctx context.Context, entry *wal.Entry) (*ReconcileIssue, error) {
	exists, err := rs.media.Exists(ctx, entry.MediaID)
	if err != nil {
		return nil, err
	}

	if !exists {
		// Запись не создана: блоб ничей
		if entry.BlobPath != "" {
			if err := rs.blobs.Remove(entry.BlobPath); err != nil {
				return nil, err
			}
		}
		if err := rs.journal.Rollback(entry.TransactionID); err != nil {
			return nil, err
		}
		return &ReconcileIssue{
			Type:        IssueAbortedCreate,
			MediaID:     entry.MediaID,
			Owner:       entry.Owner,
			Path:        entry.BlobPath,
			Description: "Загрузка прервана до записи метаданных, блоб удалён",
			Repaired:    true,
		}, nil
	}

	err = rs.accounts.AppendUpload(ctx, entry.Owner, entry.MediaID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err := rs.accounts.Flush(ctx); err != nil {
		return nil, err
	}
	if err := rs.journal.Commit(entry.TransactionID); err != nil {
		return nil, err
	}
	return &ReconcileIssue{
		Type:        IssueIncompleteCreate,
		MediaID:     entry.MediaID,
		Owner:       entry.Owner,
		Description: "Запись создана, индекс владельца дополнен",
		Repaired:    true,
	}, nil
}

func (rs *ReconcileService) recoverDelete(ctx context.Context, entry *wal.Entry) (*ReconcileIssue, error) {
	if err := rs.media.Remove(ctx, entry.MediaID); err != nil {
		return nil, err
	}
	if err := rs.media.Flush(ctx); err != nil {
		return nil, err
	}
	err := rs.accounts.DetachUpload(ctx, entry.Owner, entry.MediaID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err := rs.accounts.Flush(ctx); err != nil {
		return nil, err
	}
	if err := rs.journal.Commit(entry.TransactionID); err != nil {
		return nil, err
	}
	return &ReconcileIssue{
		Type:        IssueIncompleteDelete,
		MediaID:     entry.MediaID,
		Owner:       entry.Owner,
		Description: "Удаление доведено: запись удалена, id исключён из индекса",
		Repaired:    true,
	}, nil
}

// checkConsistency сверяет записи media с индексами user и блобами.
// Идентификаторы с незавершёнными операциями журнала пропускаются.
func (rs *ReconcileService) checkConsistency(ctx context.Context, report *ReconcileReport) {
	inFlight := make(map[string]bool)
	inFlightBlobs := make(map[string]bool)
	if pending, err := rs.journal.RecoverPending(time.Time{}); err == nil {
		for _, e := range pending {
			inFlight[e.MediaID] = true
			inFlightBlobs[e.BlobPath] = true
		}
	}

	// Индексы читаются раньше записей: загрузка пишет запись до индекса,
	// поэтому каждый увиденный id индекса уже есть в снимке media
	accounts, err := rs.accounts.Scan(ctx)
	if err != nil {
		rs.logger.Error("Ошибка сканирования user", slog.String("error", err.Error()))
		return
	}
	records, err := rs.media.Scan(ctx)
	if err != nil {
		rs.logger.Error("Ошибка сканирования media", slog.String("error", err.Error()))
		return
	}
	report.RecordsChecked = len(records)
	report.AccountsChecked = len(accounts)

	byID := make(map[string]*model.MediaRecord, len(records))
	referenced := make(map[string]bool, len(records))
	for _, r := range records {
		byID[r.ID] = r
		referenced[r.BlobPath] = true
	}
	byOwner := make(map[string]*model.Account, len(accounts))
	for _, a := range accounts {
		byOwner[a.Username] = a
	}

	// Индекс → записи
	for _, a := range accounts {
		for _, id := range a.Uploads {
			if inFlight[id] {
				continue
			}
			if r, ok := byID[id]; ok && r.Author == a.Username {
				continue
			}
			if !rs.stillDangling(ctx, a.Username, id) {
				continue
			}
			issue := ReconcileIssue{
				Type:        IssueDanglingIndexEntry,
				MediaID:     id,
				Owner:       a.Username,
				Description: "Индекс загрузок ссылается на отсутствующую или чужую запись",
			}
			if err := rs.accounts.DetachUpload(ctx, a.Username, id); err != nil {
				rs.logger.Warn("Не удалось исключить id из индекса",
					slog.String("media_id", id), slog.String("error", err.Error()))
			} else {
				issue.Repaired = true
			}
			report.Issues = append(report.Issues, issue)
		}
	}

	// Записи → индекс и блобы
	for _, r := range records {
		if inFlight[r.ID] {
			continue
		}

		if !rs.blobs.Exists(r.BlobPath) {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueMissingBlob,
				MediaID:     r.ID,
				Owner:       r.Author,
				Path:        r.BlobPath,
				Description: "Запись ссылается на отсутствующий блоб",
			})
		}

		owner, ok := byOwner[r.Author]
		if !ok {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueMissingOwner,
				MediaID:     r.ID,
				Owner:       r.Author,
				Description: "Владелец записи не зарегистрирован",
			})
			continue
		}
		if owner.HasUpload(r.ID) {
			continue
		}

		issue := ReconcileIssue{
			Type:        IssueUnindexedRecord,
			MediaID:     r.ID,
			Owner:       r.Author,
			Description: "Запись отсутствует в индексе загрузок владельца",
		}
		if err := rs.accounts.AppendUpload(ctx, r.Author, r.ID); err != nil {
			rs.logger.Warn("Не удалось добавить id в индекс",
				slog.String("media_id", r.ID), slog.String("error", err.Error()))
		} else {
			issue.Repaired = true
		}
		report.Issues = append(report.Issues, issue)
	}

	if err := rs.accounts.Flush(ctx); err != nil {
		rs.logger.Warn("Ошибка flush user", slog.String("error", err.Error()))
	}

	err = rs.blobs.Walk(func(path string, _ int64) error {
		if !referenced[path] && !inFlightBlobs[path] {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueUnreferencedBlob,
				Path:        path,
				Description: "Блоб не связан ни с одной записью",
			})
		}
		return nil
	})
	if err != nil {
		rs.logger.Warn("Ошибка обхода блобов", slog.String("error", err.Error()))
	}
}

// stillDangling перечитывает запись перед исправлением индекса:
// операция, завершившаяся после сканирования, не считается расхождением.
func (rs *ReconcileService) stillDangling(ctx context.Context, owner, id string) bool {
	rec, err := rs.media.Get(ctx, id)
	if err != nil {
		return errors.Is(err, repository.ErrNotFound)
	}
	return rec.Author != owner
}
