package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttempt_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Attempt(context.Background(), 3, 0, func(try int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestAttempt_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := Attempt(context.Background(), 3, 0, func(try int) error {
		calls++
		if try < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestAttempt_ExhaustsTries(t *testing.T) {
	sentinel := errors.New("broken")
	calls := 0
	err := Attempt(context.Background(), 2, 0, func(try int) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, calls)
}

func TestAttempt_StopShortCircuits(t *testing.T) {
	sentinel := errors.New("fatal")
	calls := 0
	err := Attempt(context.Background(), 5, 0, func(try int) error {
		calls++
		return Stop(sentinel)
	})
	require.Error(t, err)
	// Stop unwraps: callers see the original error, not the Permanent wrapper.
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestAttempt_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Attempt(ctx, 3, time.Millisecond, func(try int) error {
		return errors.New("never succeeds")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAttempt_PassesTryNumber(t *testing.T) {
	var tries []int
	_ = Attempt(context.Background(), 3, 0, func(try int) error {
		tries = append(tries, try)
		return errors.New("again")
	})
	assert.Equal(t, []int{1, 2, 3}, tries)
}

func TestAttempt_InvalidMaxTries(t *testing.T) {
	err := Attempt(context.Background(), 0, 0, func(try int) error { return nil })
	require.Error(t, err)
}
