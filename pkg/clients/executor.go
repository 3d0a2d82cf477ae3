package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
)

// ErrCircuitOpen is returned when the backend breaker rejects a call.
var ErrCircuitOpen = circuitbreaker.ErrOpen

// DefaultShouldRetry retries on network errors, 5xx responses and 429.
// 401 is never retried here; it belongs to the re-authentication path.
func DefaultShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// IsIdempotent reports whether an HTTP method may be replayed safely.
func IsIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// BreakerConfig configures the backend circuit breaker.
type BreakerConfig struct {
	Name string
	// FailureThreshold failures out of Window executions open the breaker.
	FailureThreshold uint
	Window           uint
	// Delay is how long the breaker stays open before half-opening.
	Delay            time.Duration
	SuccessThreshold uint
	Logger           logging.Logger
}

// HTTPExecutorConfig configures the HTTP executor
type HTTPExecutorConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Breaker is optional; nil disables circuit breaking.
	Breaker *BreakerConfig

	ShouldRetry func(resp *http.Response, err error) bool
}

// DefaultHTTPExecutorConfig returns the settings used for backend session calls.
func DefaultHTTPExecutorConfig() HTTPExecutorConfig {
	return HTTPExecutorConfig{
		MaxRetries:  2,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		ShouldRetry: DefaultShouldRetry,
	}
}

func normalizeHTTPExecutorConfig(cfg HTTPExecutorConfig) HTTPExecutorConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = DefaultShouldRetry
	}
	return cfg
}

// NewHTTPRetryPolicy creates a retry policy that hands back the last response
// instead of wrapping it once retries are exhausted.
//
//nolint:bodyclose // [*http.Response] is a type parameter here
func NewHTTPRetryPolicy(cfg HTTPExecutorConfig) retrypolicy.RetryPolicy[*http.Response] {
	cfg = normalizeHTTPExecutorConfig(cfg)
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(cfg.ShouldRetry).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			discardBody(e.LastResult())
		}).
		Build()
}

// discardBody releases a response that is being retried so its connection
// can return to the pool.
func discardBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// NewHTTPBreaker builds a breaker counting transport errors and 5xx as failures.
//
//nolint:bodyclose // [*http.Response] is a type parameter here
func NewHTTPBreaker(cfg BreakerConfig) circuitbreaker.CircuitBreaker[*http.Response] {
	if cfg.Window == 0 {
		cfg.Window = 10
	}
	if cfg.FailureThreshold == 0 || cfg.FailureThreshold > cfg.Window {
		cfg.FailureThreshold = cfg.Window / 2
		if cfg.FailureThreshold == 0 {
			cfg.FailureThreshold = 1
		}
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 15 * time.Second
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}

	builder := circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.Window).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(cfg.SuccessThreshold).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500
		})

	if cfg.Logger != nil {
		name := cfg.Name
		logger := cfg.Logger
		builder = builder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.WithFields(logging.Fields{
				"circuit_breaker": name,
				"from_state":      stateName(event.OldState),
				"to_state":        stateName(event.NewState),
			}).Warn("circuit breaker state change")
		})
	}
	return builder.Build()
}

// NewHTTPExecutor creates a failsafe executor combining retries and the optional breaker.
//
//nolint:bodyclose // [*http.Response] is a type parameter here
func NewHTTPExecutor(cfg HTTPExecutorConfig) failsafe.Executor[*http.Response] {
	retry := NewHTTPRetryPolicy(cfg)
	if cfg.Breaker != nil {
		return failsafe.With[*http.Response](retry, NewHTTPBreaker(*cfg.Breaker))
	}
	return failsafe.With[*http.Response](retry)
}

// ExecuteHTTP runs an HTTP request through the executor
func ExecuteHTTP(ctx context.Context, executor failsafe.Executor[*http.Response], fn func() (*http.Response, error)) (*http.Response, error) {
	return executor.WithContext(ctx).Get(fn)
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
