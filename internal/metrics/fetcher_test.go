package metrics

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cam3ron2/gitroster/internal/githubapi"
)

type fakeMetricsAPI struct {
	mu            sync.Mutex
	summaryCalls  int
	infoCalls     int
	fastCalls     int
	accurateCalls int

	summaryErr  error
	infoErr     error
	fastErr     error
	accurateErr error

	summary  githubapi.CommitSummary
	info     *githubapi.RepositoryInfo
	fast     int64
	accurate *int64
}

func (f *fakeMetricsAPI) GetCommitSummary(_ context.Context, _, _ string) (githubapi.CommitSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryCalls++
	return f.summary, f.summaryErr
}

func (f *fakeMetricsAPI) GetRepositoryInfo(_ context.Context, _, _ string) (*githubapi.RepositoryInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++
	return f.info, f.infoErr
}

func (f *fakeMetricsAPI) FastLineEstimate(_ context.Context, _, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fastCalls++
	return f.fast, f.fastErr
}

func (f *fakeMetricsAPI) AccurateLineEstimate(_ context.Context, _, _ string) (*int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accurateCalls++
	return f.accurate, f.accurateErr
}

func (f *fakeMetricsAPI) calls() (int, int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaryCalls, f.infoCalls, f.fastCalls, f.accurateCalls
}

func TestFetchMetricsServesRepeatFromCache(t *testing.T) {
	t.Parallel()

	api := &fakeMetricsAPI{
		summary: githubapi.CommitSummary{TotalCommits: 9, Recent: &githubapi.RecentCommit{SHA: "abc1234"}},
		info:    &githubapi.RepositoryInfo{Name: "demo"},
	}
	fetcher := NewFetcher(api, NewBundleCache(time.Hour), nil, false)
	id, _ := Resolve("octo/demo")

	first := fetcher.FetchMetrics(context.Background(), id, false)
	second := fetcher.FetchMetrics(context.Background(), id, false)

	if first.TotalCommits != 9 || second.TotalCommits != 9 {
		t.Fatalf("TotalCommits = %d/%d, want 9/9", first.TotalCommits, second.TotalCommits)
	}
	summaryCalls, infoCalls, _, _ := api.calls()
	if summaryCalls != 1 || infoCalls != 1 {
		t.Fatalf("calls = %d/%d, want one of each", summaryCalls, infoCalls)
	}
}

func TestFetchMetricsModeIsolation(t *testing.T) {
	t.Parallel()

	api := &fakeMetricsAPI{
		summary: githubapi.CommitSummary{TotalCommits: 4},
		fast:    200,
	}
	fetcher := NewFetcher(api, NewBundleCache(time.Hour), nil, false)
	id, _ := Resolve("octo/demo")

	noLOC := fetcher.FetchMetrics(context.Background(), id, false)
	withLOC := fetcher.FetchMetrics(context.Background(), id, true)

	if noLOC.TotalLines != nil {
		t.Fatalf("noloc TotalLines = %d, want nil", *noLOC.TotalLines)
	}
	if withLOC.TotalLines == nil || *withLOC.TotalLines != 200 {
		t.Fatalf("loc TotalLines = %v, want 200", withLOC.TotalLines)
	}
	summaryCalls, _, fastCalls, _ := api.calls()
	if summaryCalls != 2 {
		t.Fatalf("summaryCalls = %d, want 2 (one per mode)", summaryCalls)
	}
	if fastCalls != 1 {
		t.Fatalf("fastCalls = %d, want 1", fastCalls)
	}
}

func TestFetchMetricsDegradesOnAuxiliaryFailures(t *testing.T) {
	t.Parallel()

	api := &fakeMetricsAPI{
		summary: githubapi.CommitSummary{TotalCommits: 3},
		infoErr: fmt.Errorf("metadata unavailable"),
		fastErr: fmt.Errorf("languages unavailable"),
	}
	fetcher := NewFetcher(api, nil, nil, false)
	id, _ := Resolve("octo/demo")

	bundle := fetcher.FetchMetrics(context.Background(), id, true)

	if bundle.Err != "" {
		t.Fatalf("Err = %q, want empty (auxiliary failures degrade silently)", bundle.Err)
	}
	if bundle.TotalCommits != 3 {
		t.Fatalf("TotalCommits = %d, want 3", bundle.TotalCommits)
	}
	if bundle.Repository != nil {
		t.Fatalf("Repository = %+v, want nil", bundle.Repository)
	}
	if bundle.TotalLines != nil {
		t.Fatalf("TotalLines = %d, want nil", *bundle.TotalLines)
	}
}

func TestFetchMetricsCommitFailureMarksBundle(t *testing.T) {
	t.Parallel()

	api := &fakeMetricsAPI{
		summaryErr: fmt.Errorf("list commits: boom"),
		info:       &githubapi.RepositoryInfo{Name: "demo"},
	}
	cache := NewBundleCache(time.Hour)
	fetcher := NewFetcher(api, cache, nil, false)
	id, _ := Resolve("octo/demo")

	bundle := fetcher.FetchMetrics(context.Background(), id, false)
	if bundle.Err == "" {
		t.Fatalf("Err = empty, want commit failure")
	}
	if bundle.TotalCommits != 0 || bundle.RecentCommit != nil {
		t.Fatalf("bundle = %+v, want zeroed commit fields", bundle)
	}

	// Failed bundles must not be cached; the next call refetches.
	fetcher.FetchMetrics(context.Background(), id, false)
	summaryCalls, _, _, _ := api.calls()
	if summaryCalls != 2 {
		t.Fatalf("summaryCalls = %d, want 2 (failure not cached)", summaryCalls)
	}
}

func TestFetchMetricsAccurateMode(t *testing.T) {
	t.Parallel()

	lines := int64(350)
	api := &fakeMetricsAPI{
		summary:  githubapi.CommitSummary{TotalCommits: 2},
		accurate: &lines,
	}
	fetcher := NewFetcher(api, nil, nil, true)
	id, _ := Resolve("octo/demo")

	bundle := fetcher.FetchMetrics(context.Background(), id, true)

	if bundle.TotalLines == nil || *bundle.TotalLines != 350 {
		t.Fatalf("TotalLines = %v, want 350", bundle.TotalLines)
	}
	_, _, fastCalls, accurateCalls := api.calls()
	if fastCalls != 0 {
		t.Fatalf("fastCalls = %d, want 0 in accurate mode", fastCalls)
	}
	if accurateCalls != 1 {
		t.Fatalf("accurateCalls = %d, want 1", accurateCalls)
	}
}

func TestFetchMetricsAccurateModeNeverReady(t *testing.T) {
	t.Parallel()

	api := &fakeMetricsAPI{
		summary: githubapi.CommitSummary{TotalCommits: 2},
	}
	fetcher := NewFetcher(api, nil, nil, true)
	id, _ := Resolve("octo/demo")

	bundle := fetcher.FetchMetrics(context.Background(), id, true)

	// nil means "unknown", which is distinct from zero.
	if bundle.TotalLines != nil {
		t.Fatalf("TotalLines = %d, want nil", *bundle.TotalLines)
	}
	if bundle.Err != "" {
		t.Fatalf("Err = %q, want empty", bundle.Err)
	}
}
