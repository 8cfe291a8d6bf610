package responder

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentchat/types"
)

// WithRateLimit 每次调用前等待限流器。ctx 取消时直接返回。
func WithRateLimit(limiter *rate.Limiter) Middleware {
	return func(next Responder) Responder {
		return wrap(next, func(ctx context.Context, in types.Message, conv Context) ([]types.Message, error) {
			if err := limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, Transient(types.NewError(types.ErrRateLimited, "rate limit wait failed").
					WithCause(err).WithRetryable(true))
			}
			return next.Respond(ctx, in, conv)
		})
	}
}

// WithTimeout 为每次调用设置截止时间，超时视为可恢复错误。
func WithTimeout(d time.Duration) Middleware {
	return func(next Responder) Responder {
		if d <= 0 {
			return next
		}
		return wrap(next, func(ctx context.Context, in types.Message, conv Context) ([]types.Message, error) {
			callCtx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			out, err := next.Respond(callCtx, in, conv)
			if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return nil, Transient(types.NewError(types.ErrTimeout, "responder timed out").
					WithCause(err).WithRetryable(true))
			}
			return out, err
		})
	}
}

// RetryPolicy 定义可恢复错误的重试行为。
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	InitialBackoff    time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        time.Duration `json:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	Jitter            bool          `json:"jitter" yaml:"jitter"`
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// CalculateBackoff calculates the backoff duration for a given retry attempt
func (p RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	if p.Jitter && backoff > 0 {
		// ±20%
		delta := float64(backoff) * 0.2
		backoff = time.Duration(float64(backoff) - delta + rand.Float64()*2*delta)
	}
	return backoff
}

// WithRetry 重试可恢复错误；致命错误和取消从不重试。
func WithRetry(policy RetryPolicy, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Responder) Responder {
		return wrap(next, func(ctx context.Context, in types.Message, conv Context) ([]types.Message, error) {
			var lastErr error
			for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
				out, err := next.Respond(ctx, in, conv)
				if err == nil {
					return out, nil
				}
				if Classify(err) != ClassTransient || ctx.Err() != nil {
					return nil, err
				}
				lastErr = err
				if attempt == policy.MaxRetries {
					break
				}

				backoff := policy.CalculateBackoff(attempt)
				logger.Debug("retrying responder",
					zap.String("agent", conv.Name),
					zap.Int("attempt", attempt+1),
					zap.Duration("backoff", backoff),
					zap.Error(err))

				timer := time.NewTimer(backoff)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
			}
			return nil, lastErr
		})
	}
}
