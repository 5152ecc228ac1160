package amflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_FirstSettlementWins(t *testing.T) {
	f := newFuture[int]()
	assert.False(t, f.Settled())

	assert.True(t, f.settle(1, nil))
	assert.False(t, f.settle(2, errors.New("late")))

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, f.Settled())
}

// TestFuture_CallbackRejectZeroesValue drops any value passed with an error.
func TestFuture_CallbackRejectZeroesValue(t *testing.T) {
	f := newFuture[string]()
	boom := errors.New("boom")
	f.callback()("ignored", boom)

	v, err := f.Await(context.Background())
	assert.Same(t, boom, err)
	assert.Empty(t, v)
}

func TestFuture_SettleFromOtherGoroutine(t *testing.T) {
	f := newFuture[int]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.callback()(7, nil)
	}()

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("future never settled")
	}
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestFuture_AwaitCancelled(t *testing.T) {
	f := newFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// The future can still settle afterwards.
	assert.True(t, f.settle(3, nil))
}
