package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/maheshrc27/clipcast/internal/models"
)

type BreakerConfig struct {
	FailureThreshold uint
	Window           uint
	Delay            time.Duration
	Timeout          time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           10,
		Delay:            time.Minute,
		Timeout:          5 * time.Minute,
	}
}

// ResilientPublisher guards a platform publisher with a circuit breaker and
// a per-call timeout. Only retryable failures count against the breaker.
type ResilientPublisher struct {
	platform models.Platform
	next     Publisher
	cb       circuitbreaker.CircuitBreaker[*PublishReceipt]
	timeout  time.Duration
	delay    time.Duration
	now      func() time.Time

	mu       sync.Mutex
	openedAt time.Time
	open     bool
}

func NewResilientPublisher(platform models.Platform, next Publisher, cfg BreakerConfig) *ResilientPublisher {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Window < cfg.FailureThreshold {
		cfg.Window = cfg.FailureThreshold
	}
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}

	rp := &ResilientPublisher{
		platform: platform,
		next:     next,
		timeout:  cfg.Timeout,
		delay:    cfg.Delay,
		now:      time.Now,
	}

	rp.cb = circuitbreaker.NewBuilder[*PublishReceipt]().
		HandleIf(func(_ *PublishReceipt, err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return false
			}
			return IsRetryable(err)
		}).
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.Window).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			rp.mu.Lock()
			rp.open = e.NewState == circuitbreaker.OpenState
			if rp.open {
				rp.openedAt = rp.now()
			}
			rp.mu.Unlock()
			slog.Warn("publisher circuit breaker state change",
				"platform", platform,
				"from_state", stateName(e.OldState),
				"to_state", stateName(e.NewState))
		}).
		Build()

	return rp
}

// Available reports whether a publish would be let through. An open breaker
// becomes available again once its delay has passed so the half-open probe
// can run.
func (rp *ResilientPublisher) Available() bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if !rp.open {
		return true
	}
	return !rp.now().Before(rp.openedAt.Add(rp.delay))
}

func (rp *ResilientPublisher) Publish(ctx context.Context, contentItemID string) (*PublishReceipt, error) {
	if rp.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rp.timeout)
		defer cancel()
	}

	receipt, err := failsafe.With(rp.cb).WithContext(ctx).Get(func() (*PublishReceipt, error) {
		return rp.next.Publish(ctx, contentItemID)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, Retryable("circuit open for "+string(rp.platform), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, Retryable("publish timed out", err)
	}
	return receipt, err
}

// availability is implemented by publishers that can refuse work up front.
type availability interface {
	Available() bool
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}
