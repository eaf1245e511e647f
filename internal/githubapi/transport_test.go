package githubapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestRetryTransportRetriesTransientStatuses(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.Header().Set("X-RateLimit-Remaining", "4000")
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var slept []time.Duration
	transport := NewRetryTransport(http.DefaultTransport, RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}, RateLimitPolicy{MinRemainingThreshold: 5})
	transport.Sleep = func(duration time.Duration) {
		slept = append(slept, duration)
	}

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(slept) != 2 {
		t.Fatalf("len(slept) = %d, want 2", len(slept))
	}
	if slept[0] != 100*time.Millisecond || slept[1] != 200*time.Millisecond {
		t.Fatalf("slept = %v, want [100ms 200ms]", slept)
	}
}

func TestRetryTransportWaitsWhenBudgetExhausted(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("X-RateLimit-Remaining", "1")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(30*time.Second).Unix(), 10))
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", "4000")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var slept []time.Duration
	transport := NewRetryTransport(http.DefaultTransport, RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
	}, RateLimitPolicy{
		MinRemainingThreshold: 5,
		MinResetBuffer:        2 * time.Second,
	})
	transport.Sleep = func(duration time.Duration) {
		slept = append(slept, duration)
	}

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if len(slept) != 1 {
		t.Fatalf("len(slept) = %d, want 1", len(slept))
	}
	// Reset is ~30s away plus the 2s buffer.
	if slept[0] < 25*time.Second || slept[0] > 35*time.Second {
		t.Fatalf("slept[0] = %s, want roughly 32s", slept[0])
	}
}

func TestRetryTransportReturnsLastResponseWhenAttemptsExhausted(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.Header().Set("X-RateLimit-Remaining", "4000")
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	transport := NewRetryTransport(http.DefaultTransport, RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	}, RateLimitPolicy{MinRemainingThreshold: 5})
	transport.Sleep = func(time.Duration) {}

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
}

type failingRoundTripper struct {
	calls int
}

func (f *failingRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls++
	return nil, fmt.Errorf("dial refused")
}

func TestRetryTransportRetriesNetworkErrors(t *testing.T) {
	t.Parallel()

	base := &failingRoundTripper{}
	transport := NewRetryTransport(base, RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}, RateLimitPolicy{})
	transport.Sleep = func(time.Duration) {}

	req, err := http.NewRequest(http.MethodGet, "http://github.invalid/", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if _, err := transport.RoundTrip(req); err == nil {
		t.Fatalf("RoundTrip() error = nil, want network error")
	}
	if base.calls != 3 {
		t.Fatalf("calls = %d, want 3", base.calls)
	}
}

func TestBackoffForAttemptCapsAtMax(t *testing.T) {
	t.Parallel()

	retry := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
	}

	testCases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 300 * time.Millisecond},
		{attempt: 6, want: 300 * time.Millisecond},
	}

	for _, tc := range testCases {
		if got := backoffForAttempt(retry, tc.attempt); got != tc.want {
			t.Fatalf("backoffForAttempt(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}
