// Package agentwave orchestrates a population of LLM agents over a task
// DAG: wave scheduling under bounded concurrency, token-budgeted context
// fan-in, a peer message bus, and a lossless progress event stream.
package agentwave

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/meshwave/agentwave/internal/bus"
	"github.com/meshwave/agentwave/internal/contextstore"
	"github.com/meshwave/agentwave/internal/events"
	"github.com/meshwave/agentwave/internal/graph"
	"github.com/meshwave/agentwave/internal/scheduler"
	"github.com/meshwave/agentwave/internal/taskrunner"
	"github.com/meshwave/agentwave/types"
)

// Orchestrator is the public entry point: it validates submissions,
// wires the internal components together, and returns a lazy, ordered
// EventStream per run.
type Orchestrator struct {
	Backend  types.AgentBackend
	Registry types.AgentRegistry

	mu   sync.Mutex
	runs map[string]*Handle
}

// New builds an Orchestrator backed by backend and registry.
func New(backend types.AgentBackend, registry types.AgentRegistry) *Orchestrator {
	return &Orchestrator{
		Backend:  backend,
		Registry: registry,
		runs:     make(map[string]*Handle),
	}
}

// Handle identifies one submitted run and lets a caller cancel it.
type Handle struct {
	ID string

	emitter *events.Emitter
	sched   *scheduler.Scheduler
	bus     *bus.Bus
}

// Cancel requests cooperative cancellation of the run. Idempotent, and a
// no-op once the run has already finished.
func (h *Handle) Cancel() {
	h.sched.Cancel()
}

// Subscribe lets a caller observe peer-to-peer bus traffic for this run,
// addressed to who. Returns an already-closed channel if the run's
// EnableCommunication config was false.
func (h *Handle) Subscribe(who string) <-chan types.AgentMessage {
	return h.bus.Subscribe(who)
}

// Publish sends msg on this run's bus, for external callers that want to
// inject a message a task can observe via its own subscription.
func (h *Handle) Publish(msg types.AgentMessage) {
	h.bus.Publish(msg)
}

// Submit validates tasks, launches the run in the background, and
// returns a Handle plus the run's event stream. If validation fails, the
// returned stream carries exactly one workflow_error event and no
// workflow_start.
func (o *Orchestrator) Submit(ctx context.Context, tasks []types.Task, cfg Config) (*Handle, <-chan types.Event, error) {
	g := graph.New(tasks)
	emitter := events.New()

	if err := g.Validate(); err != nil {
		go func() {
			_ = emitter.Emit(types.Event{Kind: types.EventWorkflowError, WorkflowError: &types.WorkflowErrorPayload{Error: err.Error()}})
			emitter.Close()
		}()
		return nil, emitter.Stream(), err
	}

	store := contextstore.New(cfg.PruningThreshold)
	msgBus := bus.New(cfg.EnableCommunication)

	// Pre-register every task's bus subscription before any task runs, so
	// a message a task publishes (on completion) addressed to a dependent
	// that hasn't started its own wave yet is queued rather than dropped;
	// Subscribe is idempotent, so the dependent's own Runner.Run later
	// reclaims this same channel instead of losing what's queued on it.
	for _, t := range g.Tasks() {
		msgBus.Subscribe(t.ID)
	}

	runner := &taskrunner.Runner{
		Backend:       o.Backend,
		Registry:      o.Registry,
		ContextStore:  store,
		Emitter:       emitter,
		Bus:           msgBus,
		Strategy:      contextstore.Strategy(cfg.ContextStrategy),
		TaskBudget:    cfg.PerTaskContextBudget,
		TaskRetries:   cfg.TaskRetries,
		Communication: cfg.EnableCommunication,
		Logger:        cfg.Logger,
	}

	sched := &scheduler.Scheduler{
		Graph:   g,
		Runner:  runner,
		Emitter: emitter,
		Config: scheduler.Config{
			MaxParallelAgents: cfg.MaxParallelAgents,
			GlobalTimeout:     cfg.GlobalTimeout,
			CancellationGrace: cfg.CancellationGrace,
		},
		Logger: cfg.Logger,
	}

	handle := &Handle{ID: uuid.NewString(), emitter: emitter, sched: sched, bus: msgBus}

	o.mu.Lock()
	o.runs[handle.ID] = handle
	o.mu.Unlock()

	go func() {
		defer emitter.Close()
		defer msgBus.Stop()
		defer func() {
			o.mu.Lock()
			delete(o.runs, handle.ID)
			o.mu.Unlock()
		}()
		_ = emitter.Emit(types.Event{Kind: types.EventWorkflowStart, WorkflowStart: &types.WorkflowStartPayload{TaskCount: g.TaskCount()}})
		sched.Run(ctx)
	}()

	return handle, emitter.Stream(), nil
}

// Cancel requests cancellation of the run identified by handle. Safe to
// call concurrently with Submit's returned stream being drained.
func (o *Orchestrator) Cancel(handle *Handle) {
	if handle == nil {
		return
	}
	handle.Cancel()
}
