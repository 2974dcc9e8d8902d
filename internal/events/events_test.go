package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwave/agentwave/types"
)

func TestEmitPreservesCallOrderWithinOneGoroutine(t *testing.T) {
	e := New()
	require.NoError(t, e.Emit(types.Event{Kind: types.EventWorkflowStart}))
	require.NoError(t, e.Emit(types.Event{Kind: types.EventTaskReady}))
	require.NoError(t, e.Emit(types.Event{Kind: types.EventWorkflowComplete}))
	e.Close()

	var got []types.EventKind
	for ev := range e.Stream() {
		got = append(got, ev.Kind)
	}
	assert.Equal(t, []types.EventKind{
		types.EventWorkflowStart,
		types.EventTaskReady,
		types.EventWorkflowComplete,
	}, got)
}

func TestEmitAfterCloseReturnsEmitterClosed(t *testing.T) {
	e := New()
	e.Close()
	err := e.Emit(types.Event{Kind: types.EventTaskReady})
	assert.ErrorIs(t, err, types.ErrEmitterClosed)
}

func TestConcurrentProducersAllDeliverEveryEvent(t *testing.T) {
	e := New()
	const producers = 20

	var wg sync.WaitGroup
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func(n int) {
			defer wg.Done()
			_ = e.Emit(types.Event{Kind: types.EventTaskStart, TaskStart: &types.TaskStartPayload{TaskID: "irrelevant"}})
			_ = n
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var count int
	collectDone := make(chan struct{})
	go func() {
		for range e.Stream() {
			count++
		}
		close(collectDone)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producers did not finish")
	}
	e.Close()

	select {
	case <-collectDone:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain")
	}
	assert.Equal(t, producers, count)
}
