package batch

import (
	"context"
	"time"

	"github.com/cam3ron2/gitroster/internal/config"
	"github.com/cam3ron2/gitroster/internal/metrics"
	"github.com/cam3ron2/gitroster/internal/roster"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoRepository is the row error recorded for students without a
// repository reference.
const ErrNoRepository = "No GitHub repository"

// ErrInvalidReference is the row error recorded when a repository reference
// cannot be resolved to an identity.
const ErrInvalidReference = "Invalid repository reference"

// FetchClient fetches one identity's metrics bundle.
type FetchClient interface {
	FetchMetrics(ctx context.Context, id metrics.RepoIdentity, includeLOC bool) metrics.MetricsBundle
}

// SchedulerMetrics holds the Prometheus instruments for the batch pipeline.
type SchedulerMetrics struct {
	BatchesProcessed prometheus.Counter
	RowsProcessed    prometheus.Counter
	RowFailures      prometheus.Counter
}

// NewSchedulerMetrics creates and registers batch-pipeline instruments.
func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		BatchesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitroster_batches_processed_total",
			Help: "Roster batches completed.",
		}),
		RowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitroster_rows_processed_total",
			Help: "Roster rows processed.",
		}),
		RowFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitroster_row_failures_total",
			Help: "Roster rows that resolved with an error.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BatchesProcessed, m.RowsProcessed, m.RowFailures)
	}
	return m
}

// Config sizes batches and the pacing delay between them.
type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	IncludeLOC bool
}

// TierConfig selects batch sizing for the caller's credential tier. The two
// tiers reflect the remote API's distinct rate ceilings for authenticated and
// anonymous access; the pacing delay is the backpressure mechanism.
func TierConfig(cfg config.BatchConfig, authenticated bool) Config {
	if authenticated {
		return Config{
			BatchSize:  cfg.AuthenticatedSize,
			BatchDelay: cfg.AuthenticatedDelay,
			IncludeLOC: cfg.IncludeLOC,
		}
	}
	return Config{
		BatchSize:  cfg.AnonymousSize,
		BatchDelay: cfg.AnonymousDelay,
		IncludeLOC: cfg.IncludeLOC,
	}
}

// Scheduler processes roster rows in fixed-size batches: full fan-out within
// a batch, a pacing delay between batches, and an emission of the accumulated
// results after every batch.
type Scheduler struct {
	fetcher FetchClient
	cfg     Config
	logger  *zap.Logger
	metrics *SchedulerMetrics
	// Sleep is injected for testability.
	Sleep func(duration time.Duration)
}

// NewScheduler creates a batch scheduler. Logger and metrics are optional.
func NewScheduler(fetcher FetchClient, cfg Config, logger *zap.Logger, schedulerMetrics *SchedulerMetrics) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		metrics: schedulerMetrics,
		Sleep:   time.Sleep,
	}
}

// ProcessRoster fetches metrics for every row, emitting the accumulated
// results after each batch so callers can render incremental progress. A
// terminal emission is always issued, even when the context is canceled
// mid-run, so the caller observes a final complete merge of whatever was
// gathered. Row-level failures never abort sibling rows or later batches.
func (s *Scheduler) ProcessRoster(ctx context.Context, rows []roster.StudentRecord, emit func([]roster.StudentRecord)) {
	if len(rows) == 0 {
		return
	}
	if emit == nil {
		emit = func([]roster.StudentRecord) {}
	}

	totalBatches := (len(rows) + s.cfg.BatchSize - 1) / s.cfg.BatchSize
	accumulated := make([]roster.StudentRecord, 0, len(rows))

	for start := 0; start < len(rows); start += s.cfg.BatchSize {
		if ctx.Err() != nil {
			s.logger.Info("roster run canceled",
				zap.Int("rows_processed", len(accumulated)),
				zap.Int("rows_total", len(rows)))
			break
		}

		end := min(start+s.cfg.BatchSize, len(rows))
		batch := rows[start:end]
		batchNumber := start/s.cfg.BatchSize + 1
		s.logger.Debug("processing batch",
			zap.Int("batch", batchNumber),
			zap.Int("batches_total", totalBatches),
			zap.Int("rows", len(batch)))

		results := make([]roster.StudentRecord, len(batch))
		group, groupCtx := errgroup.WithContext(ctx)
		for i, row := range batch {
			group.Go(func() error {
				results[i] = s.processRow(groupCtx, row)
				return nil
			})
		}
		_ = group.Wait()

		accumulated = append(accumulated, results...)
		if s.metrics != nil {
			s.metrics.BatchesProcessed.Inc()
			s.metrics.RowsProcessed.Add(float64(len(results)))
		}
		emit(snapshotOf(accumulated))

		if end < len(rows) {
			s.pause(ctx, s.cfg.BatchDelay)
		}
	}

	// Terminal emission, guaranteed even if the last one was not observed.
	emit(snapshotOf(accumulated))
}

// pause waits out the pacing delay but returns early on cancellation. The
// anonymous-tier delay is two seconds; a canceled run must not sit through
// it. An abandoned sleeper goroutine runs out the remaining delay on its
// own.
func (s *Scheduler) pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		s.Sleep(delay)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Scheduler) processRow(ctx context.Context, row roster.StudentRecord) roster.StudentRecord {
	row.Loading = false
	row.TotalCommits = 0
	row.RecentCommit = nil
	row.Repository = nil
	row.TotalLines = nil
	row.Err = ""

	if !row.HasRepo() {
		row.Err = ErrNoRepository
		return row
	}

	id, ok := metrics.Resolve(row.GitHubRepo)
	if !ok {
		row.Err = ErrInvalidReference
		s.countFailure()
		return row
	}

	bundle := s.fetcher.FetchMetrics(ctx, id, s.cfg.IncludeLOC)
	row.TotalCommits = bundle.TotalCommits
	row.RecentCommit = bundle.RecentCommit
	row.Repository = bundle.Repository
	row.TotalLines = bundle.TotalLines
	row.Err = bundle.Err
	if bundle.Err != "" {
		s.countFailure()
		s.logger.Debug("row fetch degraded",
			zap.String("runtime_id", row.RuntimeID),
			zap.String("repo", row.GitHubRepo),
			zap.String("error", bundle.Err))
	}
	return row
}

func (s *Scheduler) countFailure() {
	if s.metrics != nil {
		s.metrics.RowFailures.Inc()
	}
}

func snapshotOf(records []roster.StudentRecord) []roster.StudentRecord {
	copied := make([]roster.StudentRecord, len(records))
	copy(copied, records)
	return copied
}
