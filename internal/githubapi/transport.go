package githubapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cam3ron2/gitroster/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryConfig configures transport retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RetryTransport wraps a base round tripper with retry and rate-limit pauses.
// Transient statuses (429 and 5xx) are retried with exponential backoff; when
// the remaining rate budget drops below the policy threshold the transport
// waits until the advertised reset before retrying.
type RetryTransport struct {
	Base   http.RoundTripper
	Retry  RetryConfig
	Policy RateLimitPolicy
	// Sleep is injected for testability.
	Sleep func(duration time.Duration)
}

// NewRetryTransport creates a retrying transport over base.
func NewRetryTransport(base http.RoundTripper, retry RetryConfig, policy RateLimitPolicy) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &RetryTransport{
		Base:   base,
		Retry:  retry,
		Policy: policy,
		Sleep:  time.Sleep,
	}
}

// RoundTrip executes a request with retry and rate-limit awareness.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}

	ctx := req.Context()
	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("gitroster/internal/githubapi").Start(
			ctx,
			"githubapi.transport.roundtrip",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.path", req.URL.EscapedPath()),
				attribute.Int("github.max_attempts", t.Retry.MaxAttempts),
			),
		)
		defer span.End()
	}

	sleep := t.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= t.Retry.MaxAttempts; attempt++ {
		resp, err := t.Base.RoundTrip(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if span != nil {
				span.RecordError(err)
				span.AddEvent("attempt_failed", trace.WithAttributes(
					attribute.Int("github.attempt", attempt),
				))
			}
			if attempt == t.Retry.MaxAttempts {
				break
			}
			sleep(backoffForAttempt(t.Retry, attempt))
			continue
		}

		headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
		decision := t.Policy.Evaluate(headers)

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", headers.Remaining),
				attribute.Bool("github.rate_limit_allow", decision.Allow),
				attribute.String("github.rate_limit_reason", decision.Reason),
			))
		}

		if !decision.Allow {
			if attempt == t.Retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, "rate-limited")
				}
				return resp, nil
			}
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			sleep(decision.WaitFor)
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			if attempt == t.Retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, fmt.Sprintf("transient status %d", resp.StatusCode))
				}
				return resp, nil
			}
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			sleep(backoffForAttempt(t.Retry, attempt))
			continue
		}

		if span != nil {
			span.SetStatus(codes.Ok, "request completed")
		}
		return resp, nil
	}

	if span != nil {
		span.SetStatus(codes.Error, "request attempts exhausted")
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("request attempts exhausted")
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
