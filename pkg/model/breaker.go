package model

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

// BreakerConfig configures the circuit breaker placed in front of a Provider.
type BreakerConfig struct {
	// FailureThreshold failures out of the last FailureExecutions calls open the circuit.
	FailureThreshold  uint
	FailureExecutions uint
	// Delay is how long the circuit stays open before allowing a trial call.
	Delay time.Duration
	// SuccessThreshold trial successes close the circuit again.
	SuccessThreshold uint
}

// DefaultBreakerConfig returns the breaker settings used by the server.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  5,
		FailureExecutions: 10,
		Delay:             30 * time.Second,
		SuccessThreshold:  1,
	}
}

// breakerProvider fails fast with circuitbreaker.ErrOpen while the wrapped
// provider is unhealthy. It never retries.
type breakerProvider struct {
	Provider
	cb circuitbreaker.CircuitBreaker[*Response]
}

var _ Provider = (*breakerProvider)(nil)

// WithCircuitBreaker wraps p so that Complete calls pass through a circuit breaker.
// Cancelled or expired contexts do not count as upstream failures.
func WithCircuitBreaker(p Provider, cfg BreakerConfig) Provider {
	cb := circuitbreaker.NewBuilder[*Response]().
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.FailureExecutions).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(cfg.SuccessThreshold).
		HandleIf(func(_ *Response, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			slog.Warn("Model circuit breaker state change",
				"provider", p.Name(), "from", event.OldState, "to", event.NewState)
		}).
		Build()
	return &breakerProvider{Provider: p, cb: cb}
}

func (b *breakerProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return failsafe.With(b.cb).WithContext(ctx).Get(func() (*Response, error) {
		return b.Provider.Complete(ctx, req)
	})
}
