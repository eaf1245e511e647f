package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v75/github"
)

// RecentCommit is the most recent commit on a repository's default branch.
type RecentCommit struct {
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	SHA     string    `json:"sha"`
	URL     string    `json:"url"`
}

// CommitSummary combines total commit count and the most recent commit.
// Both come from a single per_page=1 list request: the count is derived from
// the last-page indicator in the pagination metadata.
type CommitSummary struct {
	TotalCommits int           `json:"totalCommits"`
	Recent       *RecentCommit `json:"recentCommit"`
}

// RepositoryInfo is the metadata subset tracked per repository.
type RepositoryInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Language    string    `json:"language"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	SizeKB      int       `json:"size"`
	Private     bool      `json:"isPrivate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RateLimitStatus is a point-in-time view of the core API rate budget.
type RateLimitStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// LOCOptions configures lines-of-code estimation.
type LOCOptions struct {
	// BytesPerLine is the fast-mode heuristic divisor.
	BytesPerLine int
	// PollAttempts bounds accurate-mode polling of the statistics endpoint.
	PollAttempts int
	// PollBackoff is the pause between accurate-mode poll attempts.
	PollBackoff time.Duration
}

// MetricsClient exposes the typed repository metric operations consumed by the
// composite fetcher.
type MetricsClient struct {
	rest *github.Client
	loc  LOCOptions
	// Sleep is injected for testability.
	Sleep func(duration time.Duration)
}

// NewMetricsClient creates a typed metrics client over an assembled REST client.
func NewMetricsClient(client *Client, loc LOCOptions) (*MetricsClient, error) {
	if client == nil || client.REST == nil {
		return nil, fmt.Errorf("rest client is required")
	}
	if loc.BytesPerLine <= 0 {
		loc.BytesPerLine = 40
	}
	if loc.PollAttempts <= 0 {
		loc.PollAttempts = 6
	}
	if loc.PollBackoff <= 0 {
		loc.PollBackoff = 1500 * time.Millisecond
	}

	return &MetricsClient{
		rest:  client.REST,
		loc:   loc,
		Sleep: time.Sleep,
	}, nil
}

// GetCommitSummary reads the most recent commit and derives the total commit
// count from the pagination last-page indicator. With a single page the count
// falls back to the item count; an empty repository reports zero commits.
func (c *MetricsClient) GetCommitSummary(ctx context.Context, owner, repo string) (CommitSummary, error) {
	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	}
	commits, resp, err := c.rest.Repositories.ListCommits(ctx, owner, repo, opts)
	if err != nil {
		if statusCodeOf(err) == http.StatusConflict {
			// Empty repository.
			return CommitSummary{}, nil
		}
		return CommitSummary{}, fmt.Errorf("list commits: %w", err)
	}
	if len(commits) == 0 {
		return CommitSummary{}, nil
	}

	total := 0
	if resp != nil && resp.LastPage > 0 {
		total = resp.LastPage
	}
	if total == 0 {
		total = len(commits)
	}

	commit := commits[0]
	sha := commit.GetSHA()
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return CommitSummary{
		TotalCommits: total,
		Recent: &RecentCommit{
			Message: commit.GetCommit().GetMessage(),
			Author:  commit.GetCommit().GetAuthor().GetName(),
			Date:    commit.GetCommit().GetAuthor().GetDate().Time,
			SHA:     sha,
			URL:     commit.GetHTMLURL(),
		},
	}, nil
}

// GetRepositoryInfo reads repository metadata.
func (c *MetricsClient) GetRepositoryInfo(ctx context.Context, owner, repo string) (*RepositoryInfo, error) {
	repository, _, err := c.rest.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return &RepositoryInfo{
		Name:        repository.GetName(),
		Description: repository.GetDescription(),
		Language:    repository.GetLanguage(),
		Stars:       repository.GetStargazersCount(),
		Forks:       repository.GetForksCount(),
		SizeKB:      repository.GetSize(),
		Private:     repository.GetPrivate(),
		CreatedAt:   repository.GetCreatedAt().Time,
		UpdatedAt:   repository.GetUpdatedAt().Time,
	}, nil
}

// FastLineEstimate estimates lines of code from per-language byte totals.
// One request, bytes/BytesPerLine rounded to the nearest line.
func (c *MetricsClient) FastLineEstimate(ctx context.Context, owner, repo string) (int64, error) {
	languages, _, err := c.rest.Repositories.ListLanguages(ctx, owner, repo)
	if err != nil {
		return 0, fmt.Errorf("list languages: %w", err)
	}

	var totalBytes int64
	for _, byteCount := range languages {
		totalBytes += int64(byteCount)
	}

	bytesPerLine := int64(c.loc.BytesPerLine)
	estimate := (totalBytes + bytesPerLine/2) / bytesPerLine
	if estimate < 0 {
		estimate = 0
	}
	return estimate, nil
}

// AccurateLineEstimate polls the weekly code-frequency statistics and returns
// the net line total (additions minus deletions, clamped to zero). The
// statistics are computed asynchronously server-side; while they are not ready
// the endpoint answers 202 and the client polls with a fixed backoff. When the
// series never becomes ready within the attempt budget the result is nil,
// which is distinct from a known total of zero.
func (c *MetricsClient) AccurateLineEstimate(ctx context.Context, owner, repo string) (*int64, error) {
	sleep := c.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	for attempt := 1; attempt <= c.loc.PollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		weeks, _, err := c.rest.Repositories.ListCodeFrequency(ctx, owner, repo)
		if err != nil {
			var accepted *github.AcceptedError
			if !errors.As(err, &accepted) && attempt == c.loc.PollAttempts {
				return nil, fmt.Errorf("get code frequency: %w", err)
			}
			if attempt < c.loc.PollAttempts {
				sleep(c.loc.PollBackoff)
			}
			continue
		}
		if len(weeks) == 0 {
			if attempt < c.loc.PollAttempts {
				sleep(c.loc.PollBackoff)
			}
			continue
		}

		var total int64
		for _, week := range weeks {
			// Deletions are reported as negative values.
			total += int64(week.GetAdditions() + week.GetDeletions())
		}
		if total < 0 {
			total = 0
		}
		return &total, nil
	}
	return nil, nil
}

// GetRateLimit reads the current core API rate budget for diagnostics.
func (c *MetricsClient) GetRateLimit(ctx context.Context) (RateLimitStatus, error) {
	limits, _, err := c.rest.RateLimit.Get(ctx)
	if err != nil {
		return RateLimitStatus{}, fmt.Errorf("get rate limit: %w", err)
	}
	core := limits.GetCore()
	if core == nil {
		return RateLimitStatus{}, fmt.Errorf("rate limit response missing core resource")
	}
	return RateLimitStatus{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
	}, nil
}

// ValidateUsername reports whether a GitHub login exists.
func (c *MetricsClient) ValidateUsername(ctx context.Context, login string) (bool, error) {
	_, _, err := c.rest.Users.Get(ctx, login)
	if err != nil {
		if statusCodeOf(err) == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("get user: %w", err)
	}
	return true, nil
}

func statusCodeOf(err error) int {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}
