package agentwave

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwave/agentwave/types"
)

// fakeBackend is a deterministic in-process AgentBackend for end-to-end
// tests. sleep, when set for a given task's user prompt marker, delays
// the response to exercise timeout/cancellation behavior.
type fakeBackend struct {
	failMarkers map[string]bool // substrings of the user prompt that should fail permanently
	sleepFor    time.Duration
	sleepMarker string
}

func (f *fakeBackend) Complete(ctx context.Context, req types.CompleteRequest) (types.CompleteResult, error) {
	if f.sleepFor > 0 && strings.Contains(req.User, f.sleepMarker) {
		select {
		case <-time.After(f.sleepFor):
		case <-ctx.Done():
			return types.CompleteResult{}, &types.CompleteError{Transient: false, Message: "cancelled"}
		}
	}
	for marker := range f.failMarkers {
		if strings.Contains(req.User, marker) {
			return types.CompleteResult{}, &types.CompleteError{Transient: false, Message: "boom"}
		}
	}
	return types.CompleteResult{Text: "output for " + req.User, InputTokens: 5, OutputTokens: 5, StopReason: "stop"}, nil
}

type fakeRegistry struct{}

func (fakeRegistry) Resolve(ctx context.Context, name string) (types.AgentDefinition, error) {
	return types.AgentDefinition{SystemPromptTemplate: "you are " + name, DefaultModel: "m"}, nil
}

func drainAll(stream <-chan types.Event) []types.Event {
	var out []types.Event
	for ev := range stream {
		out = append(out, ev)
	}
	return out
}

func kinds(events []types.Event) []types.EventKind {
	out := make([]types.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// scenario 1: fan-out-fan-in.
func TestScenarioFanOutFanIn(t *testing.T) {
	tasks := []types.Task{
		{ID: "A", AgentName: "a"},
		{ID: "B", AgentName: "a", Dependencies: []string{"A"}},
		{ID: "C", AgentName: "a", Dependencies: []string{"A"}},
		{ID: "D", AgentName: "a", Dependencies: []string{"B", "C"}},
	}
	o := New(&fakeBackend{}, fakeRegistry{})
	cfg := DefaultConfig()
	cfg.MaxParallelAgents = 2

	_, stream, err := o.Submit(context.Background(), tasks, cfg)
	require.NoError(t, err)
	events := drainAll(stream)

	ks := kinds(events)
	assert.Equal(t, types.EventWorkflowStart, ks[0])
	assert.Equal(t, types.EventWorkflowComplete, ks[len(ks)-1])

	var complete types.Event
	for _, e := range events {
		if e.Kind == types.EventWorkflowComplete {
			complete = e
		}
	}
	require.NotNil(t, complete.WorkflowComplete)
	assert.Equal(t, 4, complete.WorkflowComplete.Summary.Total)
	assert.Equal(t, 4, complete.WorkflowComplete.Summary.Success)
}

// scenario 2: upstream failure skip.
func TestScenarioUpstreamFailureSkip(t *testing.T) {
	tasks := []types.Task{
		{ID: "A", AgentName: "a"},
		{ID: "B", AgentName: "a", Dependencies: []string{"A"}, Prompt: "please-fail"},
		{ID: "C", AgentName: "a", Dependencies: []string{"A"}},
		{ID: "D", AgentName: "a", Dependencies: []string{"B", "C"}},
	}
	o := New(&fakeBackend{failMarkers: map[string]bool{"please-fail": true}}, fakeRegistry{})

	_, stream, err := o.Submit(context.Background(), tasks, DefaultConfig())
	require.NoError(t, err)
	events := drainAll(stream)

	var dErr *types.TaskErrorPayload
	for _, e := range events {
		if e.Kind == types.EventTaskError && e.TaskError.TaskID == "D" {
			dErr = e.TaskError
		}
	}
	require.NotNil(t, dErr)
	assert.Contains(t, dErr.Error, "upstream B failed")

	last := events[len(events)-1]
	require.Equal(t, types.EventWorkflowComplete, last.Kind)
	assert.Equal(t, 2, last.WorkflowComplete.Summary.Success)
	assert.Equal(t, 2, last.WorkflowComplete.Summary.Failure)
}

// scenario 3: cycle rejection.
func TestScenarioCycleRejection(t *testing.T) {
	tasks := []types.Task{
		{ID: "A", AgentName: "a", Dependencies: []string{"B"}},
		{ID: "B", AgentName: "a", Dependencies: []string{"A"}},
	}
	o := New(&fakeBackend{}, fakeRegistry{})

	_, stream, err := o.Submit(context.Background(), tasks, DefaultConfig())
	require.Error(t, err)
	events := drainAll(stream)

	require.Len(t, events, 1)
	assert.Equal(t, types.EventWorkflowError, events[0].Kind)
	assert.Contains(t, events[0].WorkflowError.Error, "cycle")
}

// scenario 4: global timeout.
func TestScenarioGlobalTimeout(t *testing.T) {
	tasks := []types.Task{{ID: "A", AgentName: "a", Prompt: "slow-one"}}
	backend := &fakeBackend{sleepFor: 60 * time.Second, sleepMarker: "slow-one"}
	o := New(backend, fakeRegistry{})
	cfg := DefaultConfig()
	cfg.GlobalTimeout = 50 * time.Millisecond
	cfg.CancellationGrace = 50 * time.Millisecond

	_, stream, err := o.Submit(context.Background(), tasks, cfg)
	require.NoError(t, err)
	events := drainAll(stream)

	last := events[len(events)-1]
	assert.Equal(t, types.EventWorkflowError, last.Kind)
	assert.Equal(t, "timeout", last.WorkflowError.Error)
}

// scenario 5: priority tie-break.
func TestScenarioPriorityTieBreak(t *testing.T) {
	tasks := []types.Task{
		{ID: "X", AgentName: "a", Priority: 9},
		{ID: "Y", AgentName: "a", Priority: 9},
		{ID: "Z", AgentName: "a", Priority: 1},
	}
	o := New(&fakeBackend{}, fakeRegistry{})
	cfg := DefaultConfig()
	cfg.MaxParallelAgents = 2

	_, stream, err := o.Submit(context.Background(), tasks, cfg)
	require.NoError(t, err)
	events := drainAll(stream)

	var waveStart *types.WaveStartPayload
	for _, e := range events {
		if e.Kind == types.EventWaveStart && e.WaveStart.WaveIndex == 0 {
			waveStart = e.WaveStart
		}
	}
	require.NotNil(t, waveStart)
	assert.Equal(t, []string{"X", "Y", "Z"}, waveStart.TaskIDs)
}

// scenario 6: context isolation.
func TestScenarioContextIsolation(t *testing.T) {
	tasks := []types.Task{
		{ID: "A", AgentName: "a", Prompt: "produce unique-marker-output"},
		{ID: "B", AgentName: "a", Dependencies: []string{"A"}, Prompt: "do b"},
	}

	var capturedUserPrompt string
	backend := &capturingBackend{capture: &capturedUserPrompt, forTask: "do b"}
	o := New(backend, fakeRegistry{})
	cfg := DefaultConfig()
	cfg.ContextStrategy = ContextIsolated

	_, stream, err := o.Submit(context.Background(), tasks, cfg)
	require.NoError(t, err)
	drainAll(stream)

	assert.NotContains(t, capturedUserPrompt, "unique-marker-output")
}

func TestScenarioContextSharedIncludesPriorOutput(t *testing.T) {
	tasks := []types.Task{
		{ID: "A", AgentName: "a", Prompt: "produce unique-marker-output"},
		{ID: "B", AgentName: "a", Dependencies: []string{"A"}, Prompt: "do b"},
	}

	var capturedUserPrompt string
	backend := &capturingBackend{capture: &capturedUserPrompt, forTask: "do b"}
	o := New(backend, fakeRegistry{})
	cfg := DefaultConfig()
	cfg.ContextStrategy = ContextShared

	_, stream, err := o.Submit(context.Background(), tasks, cfg)
	require.NoError(t, err)
	drainAll(stream)

	assert.Contains(t, capturedUserPrompt, "output for")
}

// capturingBackend records the user prompt of the call whose prompt
// contains forTask, for assertions on prompt assembly.
type capturingBackend struct {
	capture *string
	forTask string
}

func (c *capturingBackend) Complete(ctx context.Context, req types.CompleteRequest) (types.CompleteResult, error) {
	if strings.Contains(req.User, c.forTask) {
		*c.capture = req.User
	}
	return types.CompleteResult{Text: "output for " + req.User}, nil
}

func TestEmptyTaskListCompletesImmediately(t *testing.T) {
	o := New(&fakeBackend{}, fakeRegistry{})
	_, stream, err := o.Submit(context.Background(), nil, DefaultConfig())
	require.NoError(t, err)
	events := drainAll(stream)

	require.Len(t, events, 2)
	assert.Equal(t, types.EventWorkflowStart, events[0].Kind)
	assert.Equal(t, 0, events[0].WorkflowStart.TaskCount)
	assert.Equal(t, types.EventWorkflowComplete, events[1].Kind)
	assert.Equal(t, 0, events[1].WorkflowComplete.Summary.Total)
}

// scenario 7: bus message relay across waves. A publishes its output on
// completion; B (depending on A) reads it off the bus as a peer message
// when its own prompt is assembled, one wave later.
func TestScenarioBusRelaysCompletionToDependent(t *testing.T) {
	tasks := []types.Task{
		{ID: "A", AgentName: "a", Prompt: "produce peer-marker-output"},
		{ID: "B", AgentName: "a", Dependencies: []string{"A"}, Prompt: "do b"},
	}

	var capturedUserPrompt string
	backend := &capturingBackend{capture: &capturedUserPrompt, forTask: "do b"}
	o := New(backend, fakeRegistry{})

	_, stream, err := o.Submit(context.Background(), tasks, DefaultConfig())
	require.NoError(t, err)
	drainAll(stream)

	assert.Contains(t, capturedUserPrompt, "--- peer messages ---")
	assert.Contains(t, capturedUserPrompt, "peer-marker-output")
}

func TestCancellationAfterCompletionIsNoOp(t *testing.T) {
	o := New(&fakeBackend{}, fakeRegistry{})
	handle, stream, err := o.Submit(context.Background(), []types.Task{{ID: "A", AgentName: "a"}}, DefaultConfig())
	require.NoError(t, err)
	events := drainAll(stream)

	handle.Cancel() // issued after the stream already drained; must be a no-op

	last := events[len(events)-1]
	assert.Equal(t, types.EventWorkflowComplete, last.Kind)
}
