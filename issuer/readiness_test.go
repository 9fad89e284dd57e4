package issuer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateFireReleasesAllWaiters(t *testing.T) {
	gate := NewGate()
	require.False(t, gate.Fired())

	const waiters = 8
	var wg sync.WaitGroup
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = gate.Wait(context.Background())
		}()
	}

	gate.Fire()
	wg.Wait()

	require.True(t, gate.Fired())
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestGateWaitAfterFireReturnsImmediately(t *testing.T) {
	gate := NewGate()
	gate.Fire()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, gate.Wait(ctx))
}

func TestGateFireIsIdempotent(t *testing.T) {
	gate := NewGate()
	gate.Fire()
	gate.Fire()
	require.True(t, gate.Fired())
}

func TestGateWaitHonorsCancellation(t *testing.T) {
	gate := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gate.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, gate.Fired())
}
