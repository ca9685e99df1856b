// reconcile.go — фоновая сверка директории хранения с таблицей files.
//
// Обнаруживает проблемы:
//   - orphaned_blob: файл на диске без записи в БД (например, после сбоя
//     записи метаданных при загрузке). Старше grace — удаляется.
//   - missing_blob: запись в БД без файла на диске. Только логируется:
//     запись не удаляется автоматически.
//
// Запускается как горутина с периодическим тикером (FM_RECONCILE_INTERVAL).
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filemanager/internal/repository"
	"github.com/bigkaa/filemanager/internal/storage/filestore"
)

// Типы проблем сверки.
const (
	IssueOrphanedBlob = "orphaned_blob"
	IssueMissingBlob  = "missing_blob"
)

// Prometheus метрики сверки
var (
	// reconcileRunsTotal — количество запусков сверки.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fm_reconcile_runs_total",
		Help: "Общее количество запусков сверки хранилища",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fm_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой",
	}, []string{"type"})

	// reconcileRemovedTotal — количество удалённых осиротевших файлов.
	reconcileRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fm_reconcile_removed_total",
		Help: "Общее количество осиротевших файлов, удалённых сверкой",
	})

	// reconcileDurationSeconds — длительность выполнения сверки.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fm_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ReconcileIssue — одна обнаруженная проблема.
type ReconcileIssue struct {
	Type string
	Path string
	// Removed — осиротевший файл удалён
	Removed bool
}

// ReconcileResult — результат одного запуска сверки.
type ReconcileResult struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	BlobsChecked int
	Issues       []ReconcileIssue
	Removed      int
}

// ReconcileService — сервис фоновой сверки хранилища.
type ReconcileService struct {
	repo     repository.FileRepository
	store    *filestore.FileStore
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис сверки.
// grace — минимальный возраст файла без записи, после которого он удаляется;
// защищает файлы загрузок, которые ещё не успели записать метаданные.
func NewReconcileService(
	repo repository.FileRepository,
	store *filestore.FileStore,
	interval time.Duration,
	grace time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		repo:     repo,
		store:    store,
		interval: interval,
		grace:    grace,
		logger:   logger.With(slog.String("component", "reconcile")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину сверки с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Сверка хранилища запущена",
		slog.String("interval", rs.interval.String()),
		slog.String("grace", rs.grace.String()),
	)
}

// Stop останавливает фоновую сверку и дожидается завершения горутины.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Сверка хранилища остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := rs.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				rs.logger.Error("Ошибка сверки хранилища", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один цикл сверки.
// Если сверка уже выполняется, возвращает (nil, true, nil).
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileResult, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Debug("Сверка хранилища начата")

	// Сначала диск, затем БД
	blobs, err := rs.store.List()
	if err != nil {
		return nil, false, err
	}
	paths, err := rs.repo.ListPaths(ctx)
	if err != nil {
		return nil, false, err
	}

	result := &ReconcileResult{
		StartedAt:    startedAt,
		BlobsChecked: len(blobs),
	}

	// 1. Файлы без записи (orphaned_blob)
	onDisk := make(map[string]struct{}, len(blobs))
	cutoff := rs.now().Add(-rs.grace)
	for _, b := range blobs {
		onDisk[b.Name] = struct{}{}
		if _, ok := paths[b.Name]; ok {
			continue
		}
		if b.ModTime.After(cutoff) {
			// Возможно, загрузка ещё не записала метаданные
			continue
		}

		issue := ReconcileIssue{Type: IssueOrphanedBlob, Path: b.Name}
		if rmErr := rs.store.Remove(b.Name); rmErr != nil && !errors.Is(rmErr, filestore.ErrNotFound) {
			rs.logger.Warn("Не удалось удалить осиротевший файл",
				slog.String("path", b.Name),
				slog.String("error", rmErr.Error()),
			)
		} else {
			issue.Removed = true
			result.Removed++
			reconcileRemovedTotal.Inc()
			rs.logger.Info("Осиротевший файл удалён",
				slog.String("path", b.Name),
				slog.Int64("size", b.Size),
			)
		}
		result.Issues = append(result.Issues, issue)
	}

	// 2. Записи без файла (missing_blob)
	for p := range paths {
		if _, ok := onDisk[p]; ok {
			continue
		}
		rs.logger.Warn("Запись без файла на диске", slog.String("path", p))
		result.Issues = append(result.Issues, ReconcileIssue{Type: IssueMissingBlob, Path: p})
	}

	result.CompletedAt = time.Now().UTC()
	duration := result.CompletedAt.Sub(startedAt)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range result.Issues {
		reconcileIssuesTotal.WithLabelValues(issue.Type).Inc()
	}

	rs.logger.Info("Сверка хранилища завершена",
		slog.Int("blobs_checked", result.BlobsChecked),
		slog.Int("issues", len(result.Issues)),
		slog.Int("removed", result.Removed),
		slog.Duration("duration", duration),
	)

	return result, false, nil
}
