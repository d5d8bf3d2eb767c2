package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll_SucceedsImmediately(t *testing.T) {
	err := Poll(context.Background(), time.Millisecond, 0, func() (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
}

func TestPoll_SucceedsAfterAttempts(t *testing.T) {
	attempts := 0
	err := Poll(context.Background(), time.Millisecond, 0, func() (bool, error) {
		attempts++
		return attempts >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPoll_PropagatesCheckError(t *testing.T) {
	boom := errors.New("boom")
	err := Poll(context.Background(), time.Millisecond, 0, func() (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestPoll_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, time.Millisecond, 0, func() (bool, error) {
		return false, nil
	})
	require.Error(t, err)
}

func TestPoll_RespectsCeiling(t *testing.T) {
	err := Poll(context.Background(), time.Millisecond, 5*time.Millisecond, func() (bool, error) {
		return false, nil
	})
	require.Error(t, err)
}
