package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cam3ron2/gitroster/internal/batch"
	"github.com/cam3ron2/gitroster/internal/config"
	"github.com/cam3ron2/gitroster/internal/githubapi"
	"github.com/cam3ron2/gitroster/internal/health"
	"github.com/cam3ron2/gitroster/internal/metrics"
	"github.com/cam3ron2/gitroster/internal/roster"
	"go.uber.org/zap"
)

// MetricsGateway exposes the account-level remote API operations the runtime
// surfaces over HTTP.
type MetricsGateway interface {
	GetRateLimit(ctx context.Context) (githubapi.RateLimitStatus, error)
	ValidateUsername(ctx context.Context, login string) (bool, error)
}

// CacheControl is the slice of the bundle cache the runtime drives.
type CacheControl interface {
	Invalidate(id metrics.RepoIdentity)
	Clear()
}

// Summary aggregates roster-wide counters for the snapshot payload.
type Summary struct {
	Total        int `json:"total"`
	WithRepos    int `json:"withRepos"`
	WithoutRepos int `json:"withoutRepos"`
	TotalCommits int `json:"totalCommits"`
	Active       int `json:"active"`
	ZeroCommits  int `json:"zeroCommits"`
}

// Snapshot is the full roster view returned to HTTP clients.
type Snapshot struct {
	Section           string                 `json:"section"`
	Students          []roster.StudentRecord `json:"students"`
	Summary           Summary                `json:"summary"`
	DuplicateWarnings []string               `json:"duplicateWarnings,omitempty"`
	Refreshing        bool                   `json:"refreshing"`
	LastRunStarted    *time.Time             `json:"lastRunStarted,omitempty"`
	LastRunCompleted  *time.Time             `json:"lastRunCompleted,omitempty"`
}

// Runtime owns the canonical roster state and coordinates refresh runs
// against it. All mutation funnels through the merge so that roster identity
// is stable across concurrent emissions.
type Runtime struct {
	cfg       *config.Config
	scheduler *batch.Scheduler
	fetcher   batch.FetchClient
	gateway   MetricsGateway
	cache     CacheControl
	evaluator *health.StatusEvaluator
	logger    *zap.Logger

	mu                sync.RWMutex
	baseCtx           context.Context
	authenticated     bool
	section           string
	students          []roster.StudentRecord
	duplicateWarnings []string
	generation        uint64
	running           bool
	runCancel         context.CancelFunc
	lastRunStarted    time.Time
	lastRunCompleted  time.Time

	includeLOC bool

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime around a seeded roster.
func NewRuntime(
	cfg *config.Config,
	scheduler *batch.Scheduler,
	fetcher batch.FetchClient,
	gateway MetricsGateway,
	cache CacheControl,
	logger *zap.Logger,
) *Runtime {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		cfg:        cfg,
		scheduler:  scheduler,
		fetcher:    fetcher,
		gateway:    gateway,
		cache:      cache,
		evaluator:  health.NewStatusEvaluator(),
		logger:     logger,
		includeLOC: cfg.Batch.IncludeLOC,
		Now:        time.Now,
	}
}

// LoadRoster seeds the runtime's canonical roster from a raw roster source.
// Any in-flight run keeps going but its emissions will be dropped because the
// generation advances.
func (r *Runtime) LoadRoster(source roster.Roster) {
	seeded, duplicates := roster.Seed(source.Section, source.Students)
	r.mu.Lock()
	r.section = source.Section
	r.students = seeded
	r.duplicateWarnings = duplicates
	r.generation++
	r.mu.Unlock()

	if len(duplicates) > 0 {
		r.logger.Warn("roster contains duplicate students",
			zap.Int("dropped", len(duplicates)),
			zap.Strings("examples", duplicates))
	}
	r.logger.Info("roster loaded",
		zap.String("section", source.Section),
		zap.Int("students", len(seeded)))
}

// Start records the lifecycle context for future detached runs and launches
// the initial refresh.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()
	r.StartRun(ctx)
}

// StartRun launches a background refresh run over the current roster. A run
// already in flight is canceled first; its late emissions are discarded by
// the generation check so two runs can never interleave their merges.
func (r *Runtime) StartRun(ctx context.Context) {
	r.mu.Lock()
	if r.runCancel != nil {
		r.runCancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.runCancel = cancel
	r.generation++
	generation := r.generation
	r.running = true
	r.lastRunStarted = r.Now()
	for i := range r.students {
		r.students[i].Loading = r.students[i].HasRepo()
	}
	rows := make([]roster.StudentRecord, len(r.students))
	copy(rows, r.students)
	r.mu.Unlock()

	r.logger.Info("roster refresh started",
		zap.Int("students", len(rows)),
		zap.Uint64("generation", generation))

	go func() {
		defer cancel()
		r.scheduler.ProcessRoster(runCtx, rows, func(results []roster.StudentRecord) {
			r.applyResults(generation, results)
		})
		r.finishRun(generation)
	}()
}

// RefreshAll drops all cached bundles and starts a fresh run. The run is
// detached from any request lifecycle: it is bound to the context recorded
// by Start so a closed HTTP connection cannot cancel it.
func (r *Runtime) RefreshAll() {
	r.mu.RLock()
	ctx := r.baseCtx
	r.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if r.cache != nil {
		r.cache.Clear()
	}
	r.StartRun(ctx)
}

// RefreshRow force-refreshes a single student: its cache entries are
// invalidated and the row is refetched synchronously, then merged back.
func (r *Runtime) RefreshRow(ctx context.Context, runtimeID string) (roster.StudentRecord, error) {
	r.mu.RLock()
	var target roster.StudentRecord
	found := false
	for _, student := range r.students {
		if student.RuntimeID == runtimeID {
			target = student
			found = true
			break
		}
	}
	r.mu.RUnlock()

	if !found {
		return roster.StudentRecord{}, fmt.Errorf("unknown student %q", runtimeID)
	}
	if !target.HasRepo() {
		return roster.StudentRecord{}, fmt.Errorf("student %q has no repository", runtimeID)
	}
	id, ok := metrics.Resolve(target.GitHubRepo)
	if !ok {
		return roster.StudentRecord{}, fmt.Errorf("student %q has an unresolvable repository reference", runtimeID)
	}

	if r.cache != nil {
		r.cache.Invalidate(id)
	}
	bundle := r.fetcher.FetchMetrics(ctx, id, r.includeLOC)

	target.Loading = false
	target.TotalCommits = bundle.TotalCommits
	target.RecentCommit = bundle.RecentCommit
	target.Repository = bundle.Repository
	target.TotalLines = bundle.TotalLines
	target.Err = bundle.Err

	r.mu.Lock()
	r.students = roster.Merge(r.students, []roster.StudentRecord{target})
	updated := findByRuntimeID(r.students, runtimeID)
	r.mu.Unlock()

	r.logger.Info("student refreshed",
		zap.String("runtime_id", runtimeID),
		zap.String("repo", target.GitHubRepo),
		zap.Bool("degraded", bundle.Err != ""))
	return updated, nil
}

// RateLimit reports the remote API quota for the configured credential.
func (r *Runtime) RateLimit(ctx context.Context) (githubapi.RateLimitStatus, error) {
	if r.gateway == nil {
		return githubapi.RateLimitStatus{}, fmt.Errorf("metrics gateway not configured")
	}
	return r.gateway.GetRateLimit(ctx)
}

// UsernameExists reports whether a login exists on the remote service.
func (r *Runtime) UsernameExists(ctx context.Context, login string) (bool, error) {
	if r.gateway == nil {
		return false, fmt.Errorf("metrics gateway not configured")
	}
	return r.gateway.ValidateUsername(ctx, login)
}

// CurrentSnapshot returns the roster view with aggregate counters.
func (r *Runtime) CurrentSnapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	students := make([]roster.StudentRecord, len(r.students))
	copy(students, r.students)

	summary := Summary{Total: len(students)}
	for _, student := range students {
		if !student.HasRepo() {
			summary.WithoutRepos++
			continue
		}
		summary.WithRepos++
		summary.TotalCommits += student.TotalCommits
		if student.TotalCommits > 0 {
			summary.Active++
		} else if !student.Loading && student.Err == "" {
			summary.ZeroCommits++
		}
	}

	snapshot := Snapshot{
		Section:           r.section,
		Students:          students,
		Summary:           summary,
		DuplicateWarnings: append([]string(nil), r.duplicateWarnings...),
		Refreshing:        r.running,
	}
	if !r.lastRunStarted.IsZero() {
		started := r.lastRunStarted
		snapshot.LastRunStarted = &started
	}
	if !r.lastRunCompleted.IsZero() {
		completed := r.lastRunCompleted
		snapshot.LastRunCompleted = &completed
	}
	return snapshot
}

// SetAuthenticated records which credential tier the client resolved to.
func (r *Runtime) SetAuthenticated(authenticated bool) {
	r.mu.Lock()
	r.authenticated = authenticated
	r.mu.Unlock()
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(_ context.Context) health.Status {
	r.mu.RLock()
	input := health.Input{
		RosterLoaded:  len(r.students) > 0,
		ClientUsable:  r.gateway != nil,
		Authenticated: r.authenticated,
		Refreshing:    r.running,
	}
	r.mu.RUnlock()
	return r.evaluator.Evaluate(input)
}

// Refreshing reports whether a run is in flight.
func (r *Runtime) Refreshing() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Shutdown cancels any in-flight run.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runCancel != nil {
		r.runCancel()
		r.runCancel = nil
	}
	r.running = false
}

func (r *Runtime) applyResults(generation uint64, results []roster.StudentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation {
		r.logger.Debug("dropping stale run emission",
			zap.Uint64("emission_generation", generation),
			zap.Uint64("current_generation", r.generation))
		return
	}
	r.students = roster.Merge(r.students, results)
}

func (r *Runtime) finishRun(generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation {
		return
	}
	r.running = false
	r.lastRunCompleted = r.Now()
	r.logger.Info("roster refresh completed", zap.Uint64("generation", generation))
}

func findByRuntimeID(students []roster.StudentRecord, runtimeID string) roster.StudentRecord {
	for _, student := range students {
		if student.RuntimeID == runtimeID {
			return student
		}
	}
	return roster.StudentRecord{}
}
