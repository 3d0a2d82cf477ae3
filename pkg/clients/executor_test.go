package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go"
)

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_NormalizesNegativeRetries(t *testing.T) {
	policy := NewHTTPRetryPolicy(HTTPExecutorConfig{MaxRetries: -3})

	var attempts int32
	_, err := failsafe.With[*http.Response](policy).Get(func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("network partition")
	})
	if err == nil {
		t.Fatal("expected request to fail")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_RetriesUpToConfiguredLimit(t *testing.T) {
	policy := NewHTTPRetryPolicy(HTTPExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	})

	var attempts int32
	resp, err := failsafe.With[*http.Response](policy).Get(func() (*http.Response, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return &http.Response{StatusCode: http.StatusBadGateway}, nil
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_ReturnsLastResponseWhenExhausted(t *testing.T) {
	policy := NewHTTPRetryPolicy(HTTPExecutorConfig{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	})

	resp, err := failsafe.With[*http.Response](policy).Get(func() (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusServiceUnavailable}, nil
	})
	if err != nil {
		t.Fatalf("expected last response without error, got %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected the final 503 response, got %+v", resp)
	}
}

type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

func TestNewHTTPRetryPolicy_ClosesRetriedBodies(t *testing.T) {
	policy := NewHTTPRetryPolicy(HTTPExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	})

	var bodies []*trackedBody
	resp, err := failsafe.With[*http.Response](policy).Get(func() (*http.Response, error) {
		body := &trackedBody{Reader: strings.NewReader("upstream unavailable")}
		bodies = append(bodies, body)
		return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: body}, nil
	})
	if err != nil {
		t.Fatalf("expected last response without error, got %v", err)
	}
	defer resp.Body.Close()

	if len(bodies) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(bodies))
	}
	for i, b := range bodies[:2] {
		if !b.closed {
			t.Fatalf("retried response %d was not closed", i)
		}
	}
	if bodies[2].closed {
		t.Fatal("returned response must stay open for the caller")
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		err  error
		want bool
	}{
		{"network error", nil, errors.New("reset"), true},
		{"cancelled", nil, context.Canceled, false},
		{"deadline", nil, context.DeadlineExceeded, false},
		{"nil response", nil, nil, true},
		{"ok", &http.Response{StatusCode: 200}, nil, false},
		{"unauthorized", &http.Response{StatusCode: 401}, nil, false},
		{"rate limited", &http.Response{StatusCode: 429}, nil, true},
		{"bad gateway", &http.Response{StatusCode: 502}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultShouldRetry(tt.resp, tt.err); got != tt.want {
				t.Fatalf("DefaultShouldRetry = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIdempotent(t *testing.T) {
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		if !IsIdempotent(m) {
			t.Fatalf("%s should be idempotent", m)
		}
	}
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		if IsIdempotent(m) {
			t.Fatalf("%s should not be replayed", m)
		}
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPExecutor_BreakerOpensAfterFailures(t *testing.T) {
	executor := NewHTTPExecutor(HTTPExecutorConfig{
		MaxRetries:  0,
		ShouldRetry: func(*http.Response, error) bool { return false },
		Breaker: &BreakerConfig{
			Name:             "backend",
			FailureThreshold: 2,
			Window:           2,
			Delay:            time.Minute,
		},
	})

	for i := 0; i < 2; i++ {
		_, _ = ExecuteHTTP(context.Background(), executor, func() (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusInternalServerError}, nil
		})
	}

	var called bool
	_, err := ExecuteHTTP(context.Background(), executor, func() (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if called {
		t.Fatal("breaker should short-circuit the call")
	}
}

func TestNewCookieClientHasJar(t *testing.T) {
	c := NewCookieClient(5 * time.Second)
	if c.Jar == nil {
		t.Fatal("expected cookie jar")
	}
	if c.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v", c.Timeout)
	}
}
