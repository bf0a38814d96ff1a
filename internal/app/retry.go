package app

import (
	"context"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"depmend/internal/ports"
	"depmend/internal/types"
)

// RetryPolicy makes retry behavior explicit at the call site. Only
// timeout-kind execution errors are retried; validation failures and
// content failures (conflicts, failing tests) are deterministic and
// never retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	Audit           ports.AuditTrailPort
}

func NewRetryPolicy(maxAttempts int, audit ports.AuditTrailPort) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2.0,
		Audit:           audit,
	}
}

// Execute runs the operation with exponential backoff between timeout
// retries. The stage name only feeds the audit payload.
func (p RetryPolicy) Execute(ctx context.Context, correlationID string, stage string, operation func() (ports.CommandResult, error)) (ports.CommandResult, error) {
	var result ports.CommandResult
	attempt := 0

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.InitialInterval
	policy.Multiplier = p.Multiplier
	policy.MaxElapsedTime = 0

	wrapped := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.MaxAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		attempt++
		var opErr error
		result, opErr = operation()
		if opErr == nil {
			return nil
		}
		if errbuilder.CodeOf(opErr) != errbuilder.CodeDeadlineExceeded {
			return backoff.Permanent(opErr)
		}
		if attempt < p.MaxAttempts {
			p.auditRetry(correlationID, stage, attempt, opErr)
		}
		return opErr
	}, wrapped)

	return result, err
}

func (p RetryPolicy) auditRetry(correlationID string, stage string, attempt int, cause error) {
	log.Warn().Str("stage", stage).Int("attempt", attempt).Err(cause).Msg("retrying after timeout")
	if p.Audit == nil {
		return
	}
	payload := map[string]string{
		"stage":   stage,
		"attempt": strconv.Itoa(attempt),
		"reason":  cause.Error(),
	}
	if _, err := p.Audit.Append(types.EventRetryScheduled, correlationID, "orchestrator", payload); err != nil {
		log.Error().Err(err).Msg("failed to audit retry")
	}
}
