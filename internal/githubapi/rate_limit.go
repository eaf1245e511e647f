package githubapi

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitHeaders is the rate budget a single GitHub response reports.
// Roster runs issue a burst of requests per batch, so every response is
// inspected to decide whether the next burst may proceed.
type RateLimitHeaders struct {
	// BudgetKnown reports whether the response carried the primary
	// X-RateLimit headers at all. Responses from proxies or error pages
	// may omit them; an absent budget is not an exhausted one.
	BudgetKnown      bool
	Remaining        int
	ResetUnix        int64
	Used             int
	RetryAfter       time.Duration
	SecondaryLimited bool
}

// Decision tells the transport whether the next request may go out now or
// how long to hold off first.
type Decision struct {
	Allow   bool
	WaitFor time.Duration
	Reason  string
}

// RateLimitPolicy turns reported budgets into pause decisions. The
// threshold keeps a small floor of requests in reserve for interactive
// operations (single-row refresh, rate-limit diagnostics) while a bulk
// roster run drains the budget.
type RateLimitPolicy struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	Now                   func() time.Time
}

// ParseRateLimitHeaders reads the rate budget out of a response. A 429, or
// a 403 carrying Retry-After, marks the secondary (abuse) limit.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	parsed := RateLimitHeaders{}
	if remaining := header.Get("X-RateLimit-Remaining"); remaining != "" {
		parsed.BudgetKnown = true
		parsed.Remaining = parseInt(remaining)
	}
	parsed.Used = parseInt(header.Get("X-RateLimit-Used"))
	parsed.ResetUnix = parseInt64(header.Get("X-RateLimit-Reset"))

	if seconds := parseInt(header.Get("Retry-After")); seconds > 0 {
		parsed.RetryAfter = time.Duration(seconds) * time.Second
	}

	if statusCode == http.StatusTooManyRequests {
		parsed.SecondaryLimited = true
	}
	if statusCode == http.StatusForbidden && parsed.RetryAfter > 0 {
		parsed.SecondaryLimited = true
	}

	return parsed
}

// Evaluate decides whether fetching may continue. Secondary limits always
// pause, honoring Retry-After when it exceeds the configured backoff.
// Otherwise the remaining budget is compared against the reserve threshold;
// below it, the pause lasts until the advertised reset plus a buffer for
// clock skew between this host and the API.
func (p RateLimitPolicy) Evaluate(headers RateLimitHeaders) Decision {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if headers.SecondaryLimited {
		waitFor := p.SecondaryLimitBackoff
		if headers.RetryAfter > waitFor {
			waitFor = headers.RetryAfter
		}
		return Decision{
			Allow:   false,
			WaitFor: waitFor,
			Reason:  "secondary_limit",
		}
	}

	if !headers.BudgetKnown {
		return Decision{
			Allow:  true,
			Reason: "no_rate_headers",
		}
	}

	if headers.Remaining >= p.MinRemainingThreshold {
		return Decision{
			Allow:  true,
			Reason: "budget_ok",
		}
	}

	resetAt := time.Unix(headers.ResetUnix, 0)
	if !resetAt.After(now) {
		return Decision{
			Allow:  true,
			Reason: "reset_passed",
		}
	}

	return Decision{
		Allow:   false,
		WaitFor: resetAt.Sub(now) + p.MinResetBuffer,
		Reason:  "await_reset",
	}
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
