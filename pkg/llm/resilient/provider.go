package resilient

import (
	"context"
	"errors"
	"log"
	"time"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

// Config holds retry and circuit breaker settings
type Config struct {
	// CallTimeout bounds calls whose context carries no deadline
	CallTimeout time.Duration
	// MaxRetries is the number of extra attempts for transient failures
	MaxRetries     uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	BreakerName      string
	MinRequests      uint32
	FailureThreshold float64
	OpenTimeout      time.Duration
}

// DefaultConfig retries once and trips after most of a window fails.
func DefaultConfig() Config {
	return Config{
		CallTimeout:      120 * time.Second,
		MaxRetries:       1,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
		BreakerName:      "completion-provider",
		MinRequests:      5,
		FailureThreshold: 0.8,
		OpenTimeout:      30 * time.Second,
	}
}

// Provider decorates a completion provider with bounded waits, one retry with
// exponential backoff for transient failures, and a circuit breaker. Every
// failure it returns is an apperror UPSTREAM_ERROR or UPSTREAM_TIMEOUT.
type Provider struct {
	inner llm.Provider
	cb    *gobreaker.CircuitBreaker
	cfg   Config
}

var _ llm.Provider = &Provider{}

func New(inner llm.Provider, cfg Config) *Provider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("[WARN] Circuit breaker '%s' state changed from %v to %v", name, from, to)
		},
		// Client mistakes and cancellations say nothing about provider health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || !(llm.IsTransient(err) || errors.Is(err, context.DeadlineExceeded))
		},
	})

	return &Provider{inner: inner, cb: cb, cfg: cfg}
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	return retry(ctx, p, func() (string, error) {
		return p.inner.Chat(ctx, history, options...)
	})
}

func (p *Provider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}

// ChatStream retries only the opening of the stream; once tokens flow a
// failure is delivered in-band.
func (p *Provider) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.StreamChunk, error) {
	return retry(ctx, p, func() (<-chan llm.StreamChunk, error) {
		return p.inner.ChatStream(ctx, history, options...)
	})
}

// State exposes the breaker state for diagnostics.
func (p *Provider) State() gobreaker.State {
	return p.cb.State()
}

func (p *Provider) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || p.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.CallTimeout)
}

func retry[T any](ctx context.Context, p *Provider, call func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff

	operation := func() (T, error) {
		res, err := p.cb.Execute(func() (interface{}, error) {
			v, err := call()
			return v, err
		})
		if err != nil {
			var zero T
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || !llm.IsTransient(err) {
				return zero, backoff.Permanent(err)
			}
			return zero, err
		}
		return res.(T), nil
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.cfg.MaxRetries+1),
	)
	if err != nil {
		var zero T
		return zero, classify(ctx, err)
	}
	return res, nil
}

func classify(ctx context.Context, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperror.Timeout(err, "completion provider timed out")
	}
	if errors.Is(err, gobreaker.ErrOpenState) {
		return apperror.Upstream(err, "completion provider unavailable (circuit open)")
	}
	return apperror.Upstream(err, "completion provider call failed")
}
