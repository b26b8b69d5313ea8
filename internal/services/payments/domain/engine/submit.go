package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	apperrors "github.com/louisbranch/paysaga/internal/platform/errors"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
)

const (
	defaultMaxAttempts     = 5
	defaultInitialInterval = 5 * time.Millisecond
	defaultMaxInterval     = 250 * time.Millisecond
)

// RetryPolicy bounds conflict retries in Submit.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Submit handles cmd, reloading and re-deciding on concurrency conflicts.
// Validation problems become a rejected Result; only system faults, exhausted
// conflict retries, and cancellation return an error.
func (h Handler) Submit(ctx context.Context, cmd command.Command) (Result, error) {
	attempt := 0
	operation := func() (Result, error) {
		attempt++
		result, err := h.Handle(ctx, cmd)
		if err == nil {
			return result, nil
		}
		if apperrors.IsRetryable(err) {
			return Result{}, err
		}
		return Result{}, backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		h.logger().Debug("retrying command after conflict",
			zap.String("command_type", string(cmd.Type)),
			zap.String("aggregate_id", cmd.AggregateID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(h.Retry.backOff()),
		backoff.WithMaxTries(h.Retry.maxAttempts()),
		backoff.WithNotify(notify),
	)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeValidationFailed {
			return Result{RejectedReason: rejectedReason(err)}, nil
		}
		return Result{}, err
	}
	return result, nil
}

func rejectedReason(err error) string {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) && domainErr.Cause != nil && domainErr.Message != "" {
		return domainErr.Message + ": " + domainErr.Cause.Error()
	}
	return err.Error()
}

func (p RetryPolicy) maxAttempts() uint {
	if p.MaxAttempts == 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialInterval
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	b.MaxInterval = defaultMaxInterval
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}
