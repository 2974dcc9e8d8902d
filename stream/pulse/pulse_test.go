package pulse

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwave/agentwave/types"
)

type fakeStream struct {
	added []string
}

func (f *fakeStream) Add(_ context.Context, event string, _ []byte) (string, error) {
	f.added = append(f.added, event)
	return "1-0", nil
}

func newTestSink(t *testing.T) (*Sink, *fakeStream) {
	t.Helper()
	fs := &fakeStream{}
	s, err := New(&redis.Client{}, 0)
	require.NoError(t, err)
	s.open = func(string, *redis.Client, int) (streamOpener, error) { return fs, nil }
	return s, fs
}

func TestSendOpensStreamOncePerRun(t *testing.T) {
	s, fs := newTestSink(t)

	require.NoError(t, s.Send(context.Background(), "run-1", types.Event{Kind: types.EventWorkflowStart}))
	require.NoError(t, s.Send(context.Background(), "run-1", types.Event{Kind: types.EventWorkflowComplete}))

	assert.Len(t, s.streams, 1)
	assert.Equal(t, []string{string(types.EventWorkflowStart), string(types.EventWorkflowComplete)}, fs.added)
}

func TestSendRejectsEmptyRunID(t *testing.T) {
	s, _ := newTestSink(t)
	err := s.Send(context.Background(), "", types.Event{Kind: types.EventWorkflowStart})
	assert.Error(t, err)
}

func TestCloseIsNoOp(t *testing.T) {
	s, _ := newTestSink(t)
	assert.NoError(t, s.Close(context.Background()))
}
