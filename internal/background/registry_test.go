package background

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerIsIdempotentPerID(t *testing.T) {
	r := NewRegistry("test", 2)
	var runs atomic.Int32
	release := make(chan struct{})

	started := r.Trigger("doc1", func(context.Context) {
		runs.Add(1)
		<-release
	})
	require.True(t, started)

	// Give the goroutine time to start so the second trigger observes it.
	for !r.InFlight("doc1") {
		time.Sleep(time.Millisecond)
	}
	assert.False(t, r.Trigger("doc1", func(context.Context) { runs.Add(1) }))

	close(release)
	r.WaitForAll()
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, r.InFlight("doc1"))
}

func TestRetriggerAfterCompletion(t *testing.T) {
	r := NewRegistry("test", 1)
	var runs atomic.Int32

	require.True(t, r.Trigger("doc1", func(context.Context) { runs.Add(1) }))
	r.WaitForAll()
	require.True(t, r.Trigger("doc1", func(context.Context) { runs.Add(1) }))
	r.WaitForAll()

	assert.Equal(t, int32(2), runs.Load())
}

func TestWaitForAllSwallowsPanics(t *testing.T) {
	r := NewRegistry("test", 4)
	r.Trigger("boom", func(context.Context) { panic("worker exploded") })
	r.Trigger("fine", func(context.Context) {})

	assert.NotPanics(t, r.WaitForAll)
	assert.False(t, r.InFlight("boom"))
}

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	r := NewRegistry("test", 2)
	var current, peak atomic.Int32
	var mu sync.Mutex

	for i := 0; i < 8; i++ {
		id := string(rune('a' + i))
		r.Trigger(id, func(context.Context) {
			n := current.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
		})
	}
	r.WaitForAll()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestWaitForAllOnEmptyRegistryReturnsImmediately(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewRegistry("idle", 1).WaitForAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForAll blocked on empty registry")
	}
}
