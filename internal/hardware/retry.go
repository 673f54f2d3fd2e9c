package hardware

import (
	"context"
	"time"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
	"go.uber.org/zap"
)

// RetryConfig is the resilience policy applied to every driver call.
type RetryConfig struct {
	MaxAttempts int
	Backoff     []time.Duration
}

// DefaultRetryConfig matches the fixed schedule used across the node.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     []time.Duration{250 * time.Millisecond, time.Second, 3 * time.Second},
	}
}

func (c RetryConfig) backoffFor(attempt int) time.Duration {
	if len(c.Backoff) == 0 {
		return time.Second
	}
	if attempt >= len(c.Backoff) {
		return c.Backoff[len(c.Backoff)-1]
	}
	return c.Backoff[attempt]
}

// WithRetry invokes fn up to cfg.MaxAttempts times, sleeping the
// configured backoff between attempts. On exhaustion it returns a
// HardwareError carrying the device identity, the logical operation and
// the given code; callers never see a bare driver error. Every attempt
// is logged, success or failure.
func WithRetry(ctx context.Context, cfg RetryConfig, device, op string, code errors.ErrorCode, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCanceled).WithDevice(device).WithOp(op)
		}

		err := fn(ctx)
		logger.LogDeviceAttempt(device, op, attempt+1, err)
		if err == nil {
			return nil
		}
		lastErr = err

		// domain outcomes and typed non-retryable failures stop early
		if hwErr, ok := err.(*errors.HardwareError); ok && !errors.IsRetryable(hwErr) {
			return hwErr.WithDevice(device).WithOp(op)
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		backoff := cfg.backoffFor(attempt)
		logger.WithModule("hardware").Debug("retry backoff",
			zap.String("device", device),
			zap.String("op", op),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrCanceled).WithDevice(device).WithOp(op)
		case <-time.After(backoff):
		}
	}

	return errors.Wrap(lastErr, code).WithDevice(device).WithOp(op)
}
