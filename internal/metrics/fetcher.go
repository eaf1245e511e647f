package metrics

import (
	"context"
	"sync"

	"github.com/cam3ron2/gitroster/internal/githubapi"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opCommitSummary  = "commit_summary"
	opRepositoryInfo = "repository_info"
	opFastLOC        = "loc_fast"
	opAccurateLOC    = "loc_accurate"
)

// MetricsAPI is the typed GitHub surface consumed by the composite fetcher.
type MetricsAPI interface {
	GetCommitSummary(ctx context.Context, owner, repo string) (githubapi.CommitSummary, error)
	GetRepositoryInfo(ctx context.Context, owner, repo string) (*githubapi.RepositoryInfo, error)
	FastLineEstimate(ctx context.Context, owner, repo string) (int64, error)
	AccurateLineEstimate(ctx context.Context, owner, repo string) (*int64, error)
}

// FetcherMetrics holds the Prometheus instruments for the fetch path.
type FetcherMetrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	SubFetchErrors *prometheus.CounterVec
}

// NewFetcherMetrics creates and registers fetch-path instruments.
func NewFetcherMetrics(reg prometheus.Registerer) *FetcherMetrics {
	m := &FetcherMetrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gitroster_bundle_cache_hits_total",
			Help: "Bundle cache hits by fetch mode.",
		}, []string{"mode"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gitroster_bundle_cache_misses_total",
			Help: "Bundle cache misses by fetch mode.",
		}, []string{"mode"}),
		SubFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gitroster_subfetch_errors_total",
			Help: "Degraded sub-fetches by operation.",
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.CacheHits, m.CacheMisses, m.SubFetchErrors)
	}
	return m
}

// Fetcher composes the per-identity sub-fetches into one cached bundle.
type Fetcher struct {
	api         MetricsAPI
	cache       *BundleCache
	metrics     *FetcherMetrics
	accurateLOC bool
}

// NewFetcher creates a composite fetcher. The cache and metrics are optional.
// With accurateLOC set, line counts come from the polling statistics endpoint
// instead of the cheap per-language byte heuristic.
func NewFetcher(api MetricsAPI, cache *BundleCache, metrics *FetcherMetrics, accurateLOC bool) *Fetcher {
	return &Fetcher{
		api:         api,
		cache:       cache,
		metrics:     metrics,
		accurateLOC: accurateLOC,
	}
}

// FetchMetrics returns the metrics bundle for one identity, serving from
// cache when a fresh entry exists. On a miss the three sub-fetches run
// concurrently; repository metadata and LOC failures degrade to nil while a
// commit-summary failure marks the whole bundle with its error. Only clean
// bundles are stored back into the cache.
func (f *Fetcher) FetchMetrics(ctx context.Context, id RepoIdentity, includeLOC bool) MetricsBundle {
	mode := "noloc"
	if includeLOC {
		mode = "loc"
	}

	key := CacheKey(id, includeLOC)
	if f.cache != nil {
		if bundle, ok := f.cache.Get(key); ok {
			if f.metrics != nil {
				f.metrics.CacheHits.WithLabelValues(mode).Inc()
			}
			return bundle
		}
		if f.metrics != nil {
			f.metrics.CacheMisses.WithLabelValues(mode).Inc()
		}
	}

	var (
		summary    githubapi.CommitSummary
		summaryErr error
		info       *githubapi.RepositoryInfo
		lines      *int64
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		summary, summaryErr = f.api.GetCommitSummary(ctx, id.Owner, id.Repo)
		if summaryErr != nil {
			f.countSubFetchError(opCommitSummary)
		}
	}()
	go func() {
		defer wg.Done()
		fetched, err := f.api.GetRepositoryInfo(ctx, id.Owner, id.Repo)
		if err != nil {
			f.countSubFetchError(opRepositoryInfo)
			return
		}
		info = fetched
	}()
	if includeLOC {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lines = f.fetchLines(ctx, id)
		}()
	}
	wg.Wait()

	bundle := MetricsBundle{
		Repository: info,
		TotalLines: lines,
	}
	if summaryErr != nil {
		bundle.Err = summaryErr.Error()
	} else {
		bundle.TotalCommits = summary.TotalCommits
		bundle.RecentCommit = summary.Recent
	}

	if f.cache != nil && bundle.Err == "" {
		f.cache.Put(key, bundle)
	}
	return bundle
}

// fetchLines returns nil when the estimate failed or, in accurate mode, when
// the statistics never became ready.
func (f *Fetcher) fetchLines(ctx context.Context, id RepoIdentity) *int64 {
	if f.accurateLOC {
		lines, err := f.api.AccurateLineEstimate(ctx, id.Owner, id.Repo)
		if err != nil {
			f.countSubFetchError(opAccurateLOC)
			return nil
		}
		return lines
	}
	estimate, err := f.api.FastLineEstimate(ctx, id.Owner, id.Repo)
	if err != nil {
		f.countSubFetchError(opFastLOC)
		return nil
	}
	return &estimate
}

func (f *Fetcher) countSubFetchError(operation string) {
	if f.metrics != nil {
		f.metrics.SubFetchErrors.WithLabelValues(operation).Inc()
	}
}
