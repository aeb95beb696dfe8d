package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "cradle/pkg/domain-errors"
)

func TestShardedSerializesSameKey(t *testing.T) {
	l := NewSharded()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), "dep-1/sleep")
			if !assert.NoError(t, err) {
				return
			}
			defer release()
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxInside.Load())
}

func TestShardedOverlappingBatchesDoNotDeadlock(t *testing.T) {
	l := NewSharded()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := []string{"a", "b", "c"}
			if i%2 == 0 {
				keys = []string{"c", "b", "a", "a"}
			}
			release, err := l.Lock(ctx, keys...)
			if err == nil {
				release()
			}
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("overlapping lock batches deadlocked")
	}
}

func TestShardedReleaseIsIdempotent(t *testing.T) {
	l := NewSharded()
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	release, err = l.Lock(context.Background(), "k")
	require.NoError(t, err)
	release()
}

func TestShardedCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSharded().Lock(ctx, "k")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, hashKey("dep-1/sleep"), hashKey("dep-1/sleep"))
	assert.NotEqual(t, hashKey("dep-1/sleep"), hashKey("dep-1/feeding"))
}
