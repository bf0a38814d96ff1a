package app

import (
	"context"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depmend/internal/ports"
	"depmend/internal/types"
)

func fastRetryPolicy(maxAttempts int, trail *memTrail) RetryPolicy {
	policy := NewRetryPolicy(maxAttempts, trail)
	policy.InitialInterval = time.Millisecond
	return policy
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	trail := &memTrail{}
	policy := fastRetryPolicy(3, trail)

	calls := 0
	result, err := policy.Execute(context.Background(), "corr-1", "upgrade", func() (ports.CommandResult, error) {
		calls++
		return ports.CommandResult{ExitCode: 0}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, 1, calls)
	assert.Empty(t, trail.ofType(types.EventRetryScheduled))
}

func TestRetryOnTimeoutThenSuccess(t *testing.T) {
	trail := &memTrail{}
	policy := fastRetryPolicy(3, trail)

	timeout := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg("command timed out")

	calls := 0
	_, err := policy.Execute(context.Background(), "corr-1", "upgrade", func() (ports.CommandResult, error) {
		calls++
		if calls < 3 {
			return ports.CommandResult{}, timeout
		}
		return ports.CommandResult{ExitCode: 0}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, trail.ofType(types.EventRetryScheduled), 2)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	trail := &memTrail{}
	policy := fastRetryPolicy(3, trail)

	timeout := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg("command timed out")

	calls := 0
	_, err := policy.Execute(context.Background(), "corr-1", "upgrade", func() (ports.CommandResult, error) {
		calls++
		return ports.CommandResult{}, timeout
	})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeDeadlineExceeded, errbuilder.CodeOf(err))
	assert.Equal(t, 3, calls)
}

func TestRetryNeverRetriesDeterministicFailures(t *testing.T) {
	trail := &memTrail{}
	policy := fastRetryPolicy(3, trail)

	rejected := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("bad argument")

	calls := 0
	_, err := policy.Execute(context.Background(), "corr-1", "upgrade", func() (ports.CommandResult, error) {
		calls++
		return ports.CommandResult{}, rejected
	})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, trail.ofType(types.EventRetryScheduled))
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	policy := fastRetryPolicy(5, &memTrail{})
	policy.InitialInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	timeout := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg("command timed out")

	calls := 0
	_, err := policy.Execute(ctx, "corr-1", "upgrade", func() (ports.CommandResult, error) {
		calls++
		cancel()
		return ports.CommandResult{}, timeout
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
