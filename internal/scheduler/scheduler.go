// Package scheduler drives a validated Graph to completion: it computes
// ready waves, dispatches TaskRunners under a bounded concurrency pool,
// and honors cancellation and a global timeout.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshwave/agentwave/internal/events"
	"github.com/meshwave/agentwave/internal/graph"
	"github.com/meshwave/agentwave/internal/taskrunner"
	"github.com/meshwave/agentwave/telemetry"
	"github.com/meshwave/agentwave/types"
)

// Config bounds one run's scheduling behavior (SPEC_FULL.md / spec §4.7).
type Config struct {
	MaxParallelAgents   int
	GlobalTimeout       time.Duration
	CancellationGrace   time.Duration
}

// Scheduler runs one workflow's wave loop to completion.
type Scheduler struct {
	Graph    *graph.Graph
	Runner   *taskrunner.Runner
	Emitter  *events.Emitter
	Config   Config
	// Logger defaults to telemetry.NoopLogger when unset.
	Logger telemetry.Logger

	cancelled  atomic.Bool
	cancelFunc atomic.Pointer[context.CancelFunc]
}

func (s *Scheduler) logger() telemetry.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return telemetry.NoopLogger{}
}

// Cancel requests cooperative cancellation: it flips the flag observed by
// the wave loop and, if a run is in flight, cancels its context so
// in-flight backend calls see ctx.Done() at their suspension points.
// Idempotent.
func (s *Scheduler) Cancel() {
	s.cancelled.Store(true)
	if cf := s.cancelFunc.Load(); cf != nil {
		(*cf)()
	}
}

// Run drives the graph to completion, returning the final per-task
// results keyed by task id. It emits the full progress stream via
// Emitter but does not close it; the caller (Orchestrator) owns the
// emitter's lifecycle.
func (s *Scheduler) Run(ctx context.Context) map[string]types.TaskResult {
	tasksByID := make(map[string]types.Task, s.Graph.TaskCount())
	for _, t := range s.Graph.Tasks() {
		tasksByID[t.ID] = t
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.Config.GlobalTimeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, s.Config.GlobalTimeout)
		defer timeoutCancel()
	}
	s.cancelFunc.Store(&cancel)
	if s.cancelled.Load() {
		cancel()
	}

	results := make(map[string]types.TaskResult, s.Graph.TaskCount())
	completed := make(map[string]struct{}, s.Graph.TaskCount())

	var abortReason string
	waveIndex := 0

	for {
		if reason := s.abortReason(runCtx); reason != "" {
			abortReason = reason
			s.failRemaining(tasksByID, completed, results, reason)
			break
		}

		ready := s.Graph.ReadyIDs(completed)
		if len(ready) == 0 {
			if s.Graph.IsEmpty(completed) {
				break // success path
			}
			abortReason = "deadlock"
			s.emit(types.Event{Kind: types.EventWorkflowError, WorkflowError: &types.WorkflowErrorPayload{Error: abortReason}})
			s.failRemaining(tasksByID, completed, results, abortReason)
			break
		}

		for _, id := range ready {
			s.emit(types.Event{Kind: types.EventTaskReady, TaskReady: &types.TaskReadyPayload{TaskID: id}})
		}
		s.logger().Info(ctx, "wave starting", "wave_index", waveIndex, "task_count", len(ready))
		s.emit(types.Event{Kind: types.EventWaveStart, WaveStart: &types.WaveStartPayload{WaveIndex: waveIndex, TaskIDs: ready}})

		waveResults := s.dispatch(runCtx, ready, tasksByID, completed, results)
		for id, res := range waveResults {
			results[id] = res
			completed[id] = struct{}{}
		}

		successes, failures := 0, 0
		for _, id := range ready {
			if res, ok := results[id]; ok && res.Success {
				successes++
			} else {
				failures++
			}
		}
		s.emit(types.Event{Kind: types.EventWaveComplete, WaveComplete: &types.WaveCompletePayload{
			WaveIndex: waveIndex, SuccessCount: successes, FailureCount: failures,
		}})
		waveIndex++
	}

	if abortReason != "" {
		if abortReason != "deadlock" { // deadlock already emitted workflow_error above
			s.emit(types.Event{Kind: types.EventWorkflowError, WorkflowError: &types.WorkflowErrorPayload{Error: abortReason}})
		}
		return results
	}

	summary := summarize(results)
	s.emit(types.Event{Kind: types.EventWorkflowComplete, WorkflowComplete: &types.WorkflowCompletePayload{Summary: summary}})
	return results
}

// abortReason reports why the run should stop early: "cancelled" if
// Cancel was called or the caller's context was cancelled, "timeout" if
// the global deadline elapsed, or "" if neither applies.
func (s *Scheduler) abortReason(ctx context.Context) string {
	if s.cancelled.Load() {
		return "cancelled"
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "timeout"
		}
		return "cancelled"
	}
	return ""
}

// dispatch runs every task in ready concurrently, bounded by
// MaxParallelAgents permits acquired in ready's priority order, and
// returns each task's result keyed by id once the whole wave finishes.
func (s *Scheduler) dispatch(ctx context.Context, ready []string, tasksByID map[string]types.Task, completed map[string]struct{}, prior map[string]types.TaskResult) map[string]types.TaskResult {
	limit := s.Config.MaxParallelAgents
	if limit <= 0 {
		limit = 1
	}
	permits := make(chan struct{}, limit)

	var mu sync.Mutex
	out := make(map[string]types.TaskResult, len(ready))
	var wg sync.WaitGroup

	for _, id := range ready {
		task := tasksByID[id]
		if skipReason, skip := s.firstFailedDependency(task, prior); skip {
			res := s.Runner.Skip(task, skipReason)
			mu.Lock()
			out[id] = res
			mu.Unlock()
			continue
		}

		wg.Add(1)
		permits <- struct{}{}
		go func(task types.Task) {
			defer wg.Done()
			defer func() { <-permits }()
			res := s.Runner.Run(ctx, task, tasksByID)
			mu.Lock()
			out[task.ID] = res
			mu.Unlock()
		}(task)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	grace := s.Config.CancellationGrace
	if grace <= 0 {
		grace = defaultCancellationGrace
	}
	select {
	case <-done:
	case <-ctx.Done():
		// In-flight tasks observed cancellation at their own suspension
		// points; give them grace to unwind before giving up on stragglers.
		select {
		case <-done:
		case <-time.After(grace):
		}
	}

	// Copy out under the lock: if the grace period elapsed with stragglers
	// still running, they may keep writing to out after we return, and the
	// caller must not share that map.
	mu.Lock()
	final := make(map[string]types.TaskResult, len(ready))
	for _, id := range ready {
		if res, ok := out[id]; ok {
			final[id] = res
		} else {
			final[id] = types.TaskResult{TaskID: id, AgentName: tasksByID[id].AgentName, Success: false, Error: "cancelled"}
		}
	}
	mu.Unlock()
	return final
}

// defaultCancellationGrace applies when Config.CancellationGrace is unset.
const defaultCancellationGrace = 2 * time.Second

// firstFailedDependency reports the id of the first dependency of task
// that is present in prior with Success=false, if any.
func (s *Scheduler) firstFailedDependency(task types.Task, prior map[string]types.TaskResult) (string, bool) {
	for _, dep := range task.Dependencies {
		if res, ok := prior[dep]; ok && !res.Success {
			return dep, true
		}
	}
	return "", false
}

// failRemaining marks every task not yet in completed as errored with
// reason, used on cancellation, timeout, and deadlock.
func (s *Scheduler) failRemaining(tasksByID map[string]types.Task, completed map[string]struct{}, results map[string]types.TaskResult, reason string) {
	for id, task := range tasksByID {
		if _, done := completed[id]; done {
			continue
		}
		results[id] = types.TaskResult{TaskID: id, AgentName: task.AgentName, Success: false, Error: reason}
		completed[id] = struct{}{}
	}
}

func summarize(results map[string]types.TaskResult) types.RunSummary {
	var s types.RunSummary
	for _, r := range results {
		s.Total++
		if r.Success {
			s.Success++
		} else {
			s.Failure++
		}
		s.TotalTokens += r.TokensUsed
		s.TotalDurationMS += r.DurationMS
	}
	return s
}

func (s *Scheduler) emit(e types.Event) {
	if s.Emitter == nil {
		return
	}
	_ = s.Emitter.Emit(e)
}
