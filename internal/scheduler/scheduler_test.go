package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwave/agentwave/internal/contextstore"
	"github.com/meshwave/agentwave/internal/events"
	"github.com/meshwave/agentwave/internal/graph"
	"github.com/meshwave/agentwave/internal/taskrunner"
	"github.com/meshwave/agentwave/types"
)

type stubBackend struct {
	fail map[string]bool // keyed by system+user prompt substring, unused; kept simple below
}

func (s *stubBackend) Complete(ctx context.Context, req types.CompleteRequest) (types.CompleteResult, error) {
	return types.CompleteResult{Text: "ok", InputTokens: 1, OutputTokens: 1, StopReason: "stop"}, nil
}

type failingBackend struct{ failIDs map[string]bool }

func (f *failingBackend) Complete(ctx context.Context, req types.CompleteRequest) (types.CompleteResult, error) {
	if strContains(req.User, "fail-task") {
		return types.CompleteResult{}, &types.CompleteError{Transient: false, Message: "boom"}
	}
	return types.CompleteResult{Text: "ok"}, nil
}

func strContains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

type stubRegistry struct{}

func (stubRegistry) Resolve(ctx context.Context, name string) (types.AgentDefinition, error) {
	return types.AgentDefinition{SystemPromptTemplate: "sys", DefaultModel: "m"}, nil
}

func newScheduler(g *graph.Graph, backend types.AgentBackend) (*Scheduler, *events.Emitter) {
	emitter := events.New()
	runner := &taskrunner.Runner{
		Backend:      backend,
		Registry:     stubRegistry{},
		ContextStore: contextstore.New(0),
		Emitter:      emitter,
		Strategy:     contextstore.Shared,
		TaskBudget:   1000,
		TaskRetries:  0,
		Sleep:        func(context.Context, time.Duration) {},
	}
	sched := &Scheduler{
		Graph:   g,
		Runner:  runner,
		Emitter: emitter,
		Config:  Config{MaxParallelAgents: 3, CancellationGrace: 50 * time.Millisecond},
	}
	return sched, emitter
}

func collectEvents(e *events.Emitter) *[]types.Event {
	got := make([]types.Event, 0)
	go func() {
		for ev := range e.Stream() {
			got = append(got, ev)
		}
	}()
	return &got
}

func TestSchedulerRunsSimpleDAGToCompletion(t *testing.T) {
	g := graph.New([]types.Task{
		{ID: "a", AgentName: "x", Prompt: "do a"},
		{ID: "b", AgentName: "x", Prompt: "do b", Dependencies: []string{"a"}},
	})
	require.NoError(t, g.Validate())

	sched, emitter := newScheduler(g, &stubBackend{})
	go func() {
		for range emitter.Stream() {
		}
	}()

	results := sched.Run(context.Background())
	emitter.Close()

	require.Len(t, results, 2)
	assert.True(t, results["a"].Success)
	assert.True(t, results["b"].Success)
}

func TestSchedulerSkipsDownstreamOfFailedTask(t *testing.T) {
	g := graph.New([]types.Task{
		{ID: "fail-task", AgentName: "x", Prompt: "fail-task marker"},
		{ID: "downstream", AgentName: "x", Prompt: "do downstream", Dependencies: []string{"fail-task"}},
	})
	require.NoError(t, g.Validate())

	sched, emitter := newScheduler(g, &failingBackend{})
	go func() {
		for range emitter.Stream() {
		}
	}()

	results := sched.Run(context.Background())
	emitter.Close()

	require.Len(t, results, 2)
	assert.False(t, results["fail-task"].Success)
	assert.False(t, results["downstream"].Success)
	assert.Contains(t, results["downstream"].Error, "upstream fail-task failed")
}

func TestSchedulerCompletesWaveWiderThanMaxParallelAgents(t *testing.T) {
	tasks := make([]types.Task, 5)
	for i := range tasks {
		tasks[i] = types.Task{ID: string(rune('a' + i)), AgentName: "x", Prompt: "do it"}
	}
	g := graph.New(tasks)
	require.NoError(t, g.Validate())

	sched, emitter := newScheduler(g, &stubBackend{})
	sched.Config.MaxParallelAgents = 2
	go func() {
		for range emitter.Stream() {
		}
	}()

	results := sched.Run(context.Background())
	emitter.Close()
	assert.Len(t, results, 5)
}

func TestSchedulerCancellationMarksRemainingCancelled(t *testing.T) {
	g := graph.New([]types.Task{
		{ID: "a", AgentName: "x", Prompt: "do a"},
	})
	require.NoError(t, g.Validate())

	sched, emitter := newScheduler(g, &stubBackend{})
	go func() {
		for range emitter.Stream() {
		}
	}()
	sched.Cancel()

	results := sched.Run(context.Background())
	emitter.Close()

	require.Len(t, results, 1)
	assert.False(t, results["a"].Success)
	assert.Equal(t, "cancelled", results["a"].Error)
}

func TestSchedulerGlobalTimeout(t *testing.T) {
	g := graph.New([]types.Task{{ID: "a", AgentName: "x", Prompt: "do a"}})
	require.NoError(t, g.Validate())

	sched, emitter := newScheduler(g, &stubBackend{})
	sched.Config.GlobalTimeout = time.Nanosecond
	go func() {
		for range emitter.Stream() {
		}
	}()

	time.Sleep(time.Millisecond) // ensure the deadline has already elapsed
	results := sched.Run(context.Background())
	emitter.Close()

	require.Len(t, results, 1)
	assert.False(t, results["a"].Success)
}
