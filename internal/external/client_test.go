package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"edgealtar/internal/types"
)

// noopSleep skips retry waits in tests.
func noopSleep(time.Duration) {}

func newTestClient(t *testing.T, policy RetryPolicy) *BaseClient {
	t.Helper()
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-breaker",
		policy,
		"EdgeAltar-Test/1.0",
		WithSleepFunc(noopSleep),
	)
}

func fastRetries(n int) RetryPolicy {
	return RetryPolicy{MaxRetries: n, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond}
}

func TestDo_SuccessInjectsHeaders(t *testing.T) {
	var gotUA, gotReqID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReqID = r.Header.Get("X-Request-Id")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := newTestClient(t, fastRetries(0))
	ctx := types.WithRequestID(context.Background(), "req-abc")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
	if gotUA != "EdgeAltar-Test/1.0" || gotReqID != "req-abc" {
		t.Errorf("headers: ua=%q req=%q", gotUA, gotReqID)
	}
}

func TestDo_RetriesOn5xxAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, fastRetries(2))
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, strings.NewReader("a=1"))

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	for i, b := range bodies {
		if b != "a=1" {
			t.Errorf("attempt %d body = %q", i, b)
		}
	}
}

func TestDo_NoRetryPolicySingleAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, NoRetryPolicy())
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, strings.NewReader("x"))

	_, err := client.Do(req)
	if !types.HasCode(err, types.ErrCodeUpstreamUnavailable) {
		t.Fatalf("expected upstream_unavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestDo_ExhaustedRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, fastRetries(1))
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)

	_, err := client.Do(req)
	if !types.HasCode(err, types.ErrCodeUpstreamRateLimited) {
		t.Errorf("expected upstream_rate_limited, got %v", err)
	}
}

func TestDo_4xxNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, fastRetries(3))
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("4xx should be returned as a response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || calls.Load() != 1 {
		t.Errorf("status=%d calls=%d", resp.StatusCode, calls.Load())
	}
}

func TestDo_NetworkErrorIsUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, fastRetries(1))
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)

	_, err := client.Do(req)
	if !types.IsInfrastructure(err) {
		t.Errorf("network failure should be infrastructure, got %v", err)
	}
}

func TestDo_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "test-open",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})
	client := NewBaseClientWithBreaker(nil, breaker, NoRetryPolicy(), "t", WithSleepFunc(noopSleep))

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		_, _ = client.Do(req)
	}
	before := calls.Load()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	_, err := client.Do(req)

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Fatalf("expected upstream_unavailable from open breaker, got %v", err)
	}
	if calls.Load() != before {
		t.Error("open breaker must not reach the server")
	}
}

func TestComputeBackoff(t *testing.T) {
	client := newTestClient(t, RetryPolicy{MaxRetries: 3, MinWait: 100 * time.Millisecond, MaxWait: time.Second})

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}
	if got := client.computeBackoff(0, resp); got != time.Second {
		t.Errorf("Retry-After should be capped at MaxWait, got %v", got)
	}

	for attempt := 0; attempt < 5; attempt++ {
		got := client.computeBackoff(attempt, nil)
		if got < 100*time.Millisecond || got > time.Second {
			t.Errorf("attempt %d: backoff %v out of range", attempt, got)
		}
	}
}
