// Package taskrunner executes a single Task: it assembles the system and
// user prompts, invokes the configured AgentBackend, retries transient
// failures with backoff, and records the outcome.
package taskrunner

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/meshwave/agentwave/internal/bus"
	"github.com/meshwave/agentwave/internal/contextstore"
	"github.com/meshwave/agentwave/internal/events"
	"github.com/meshwave/agentwave/telemetry"
	"github.com/meshwave/agentwave/types"
)

// peerCommunicationPreamble is appended to the system prompt when peer
// communication is enabled, advertising the bus to the agent.
const peerCommunicationPreamble = "\n\nYou may exchange messages with peer tasks via the message bus using your task id as your address."

// backoff parameters for transient backend failures (SPEC_FULL.md §4.5).
const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 8 * time.Second
)

// Runner executes one task at a time; it holds no per-task state and is
// safe to share across goroutines.
type Runner struct {
	Backend       types.AgentBackend
	Registry      types.AgentRegistry
	ContextStore  *contextstore.Store
	Emitter       *events.Emitter
	Bus           *bus.Bus
	Strategy      contextstore.Strategy
	TaskBudget    int
	TaskRetries   int
	Communication bool

	// Logger defaults to telemetry.NoopLogger when unset.
	Logger telemetry.Logger

	// Now, when set, overrides time.Now (for deterministic tests). Sleep,
	// when set, overrides the backoff sleep (to skip real waits in tests).
	Now   func() time.Time
	Sleep func(context.Context, time.Duration)
}

func (r *Runner) logger() telemetry.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return telemetry.NoopLogger{}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	if r.Sleep != nil {
		r.Sleep(ctx, d)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Run executes task, honoring cancellation via ctx and consulting
// tasksByID for hierarchical context resolution. It never returns an
// error: every failure is captured in the returned TaskResult, per
// the contract that a run's state is mutated only by the scheduler.
func (r *Runner) Run(ctx context.Context, task types.Task, tasksByID map[string]types.Task) types.TaskResult {
	start := r.now()
	r.emit(types.Event{Kind: types.EventTaskStart, TaskStart: &types.TaskStartPayload{
		TaskID: task.ID, AgentName: task.AgentName,
	}})

	def, err := r.Registry.Resolve(ctx, task.AgentName)
	if err != nil {
		return r.fail(task, start, err.Error())
	}

	system := r.assembleSystem(def)
	user := r.assembleUser(task, tasksByID, r.pendingMessages(task))
	model := task.ModelOverride
	if model == "" {
		model = def.DefaultModel
	}

	r.emit(types.Event{Kind: types.EventAgentInvoke, AgentInvoke: &types.AgentInvokePayload{
		TaskID: task.ID, AgentName: task.AgentName, Model: model, MaxTokens: task.MaxTokens,
	}})

	result, err := r.completeWithRetries(ctx, task, types.CompleteRequest{
		System: system, User: user, MaxTokens: task.MaxTokens, Model: model,
	})
	if err != nil {
		if ctx.Err() != nil {
			return r.fail(task, start, "cancelled")
		}
		return r.fail(task, start, err.Error())
	}

	r.ContextStore.Record(task.ID, task.AgentName, result.result.Text, result.result.InputTokens+result.result.OutputTokens, task.ParentID)
	r.publishCompletion(task, result.result.Text)

	tr := types.TaskResult{
		TaskID:     task.ID,
		AgentName:  task.AgentName,
		Success:    true,
		Output:     result.result.Text,
		TokensUsed: result.result.InputTokens + result.result.OutputTokens,
		DurationMS: time.Since(start).Milliseconds(),
		Retries:    result.retries,
		Metadata: map[string]string{
			"model":       model,
			"stop_reason": result.result.StopReason,
		},
	}
	r.emit(types.Event{Kind: types.EventTaskComplete, TaskComplete: &types.TaskCompletePayload{
		TaskID:        task.ID,
		Success:       true,
		DurationMS:    tr.DurationMS,
		TokensUsed:    tr.TokensUsed,
		OutputPreview: types.Preview(tr.Output),
	}})
	return tr
}

// Skip builds the TaskResult for a task whose dependency failed, without
// invoking the backend (SPEC_FULL.md / spec §4.5 dependency policy).
func (r *Runner) Skip(task types.Task, upstreamID string) types.TaskResult {
	r.emit(types.Event{Kind: types.EventTaskStart, TaskStart: &types.TaskStartPayload{
		TaskID: task.ID, AgentName: task.AgentName,
	}})
	msg := fmt.Sprintf("upstream %s failed", upstreamID)
	r.emit(types.Event{Kind: types.EventTaskError, TaskError: &types.TaskErrorPayload{TaskID: task.ID, Error: msg}})
	return types.TaskResult{TaskID: task.ID, AgentName: task.AgentName, Success: false, Error: msg}
}

func (r *Runner) fail(task types.Task, start time.Time, reason string) types.TaskResult {
	r.emit(types.Event{Kind: types.EventTaskError, TaskError: &types.TaskErrorPayload{TaskID: task.ID, Error: reason}})
	return types.TaskResult{
		TaskID:     task.ID,
		AgentName:  task.AgentName,
		Success:    false,
		Error:      reason,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

type completeOutcome struct {
	result  types.CompleteResult
	retries int
}

// completeWithRetries calls the backend, retrying up to TaskRetries times
// when the backend reports a transient failure, with exponential backoff
// starting at backoffBase, capped at backoffCap, jittered by ±20%.
func (r *Runner) completeWithRetries(ctx context.Context, task types.Task, req types.CompleteRequest) (completeOutcome, error) {
	var lastErr error
	delay := backoffBase
	for attempt := 0; attempt <= r.TaskRetries; attempt++ {
		if ctx.Err() != nil {
			return completeOutcome{}, ctx.Err()
		}
		res, err := r.Backend.Complete(ctx, req)
		if err == nil {
			return completeOutcome{result: res, retries: attempt}, nil
		}
		lastErr = err
		var ce *types.CompleteError
		transient := false
		if castErr, ok := err.(*types.CompleteError); ok {
			ce = castErr
			transient = ce.Transient
		}
		if !transient || attempt == r.TaskRetries {
			break
		}
		jittered := jitter(delay)
		r.logger().Warn(ctx, "retrying after transient backend failure", "task_id", task.ID, "attempt", attempt, "delay_ms", jittered.Milliseconds())
		r.sleep(ctx, jittered)
		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}
	return completeOutcome{}, lastErr
}

// jitter returns d adjusted by up to ±20%, capped at backoffCap.
func jitter(d time.Duration) time.Duration {
	if d > backoffCap {
		d = backoffCap
	}
	spread := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * spread
	out := time.Duration(float64(d) + offset)
	if out < 0 {
		out = 0
	}
	return out
}

func (r *Runner) assembleSystem(def types.AgentDefinition) string {
	system := def.SystemPromptTemplate
	if r.Communication {
		system += peerCommunicationPreamble
	}
	return system
}

// pendingMessages drains, without blocking, every message already queued
// for task.ID on the bus (pre-registered by the orchestrator before the
// run started, or delivered by a peer task that finished in an earlier
// wave). Returns nil if no bus is wired.
func (r *Runner) pendingMessages(task types.Task) []types.AgentMessage {
	if r.Bus == nil {
		return nil
	}
	ch := r.Bus.Subscribe(task.ID)
	var msgs []types.AgentMessage
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// publishCompletion broadcasts a task's output on the bus under its own
// task id, so dependent tasks (and any peer subscribed ahead of time) can
// pick it up the next time they consult the bus. A no-op if no bus is
// wired, peer communication is disabled, or the context strategy is
// Isolated (which admits no cross-task output into a prompt).
func (r *Runner) publishCompletion(task types.Task, output string) {
	if r.Bus == nil || r.Strategy == contextstore.Isolated {
		return
	}
	r.Bus.Publish(types.AgentMessage{
		From:    task.ID,
		Kind:    types.MessageBroadcast,
		Content: output,
	})
}

func (r *Runner) assembleUser(task types.Task, tasksByID map[string]types.Task, peerMessages []types.AgentMessage) string {
	var b strings.Builder
	b.WriteString(task.Prompt)

	if snapshot := r.ContextStore.Snapshot(task, r.Strategy, r.TaskBudget, tasksByID); snapshot != "" {
		b.WriteString("\n\n--- prior work ---\n")
		b.WriteString(snapshot)
	}

	if len(peerMessages) > 0 {
		b.WriteString("\n\n--- peer messages ---\n")
		for _, m := range peerMessages {
			fmt.Fprintf(&b, "[%s] %v\n", m.From, m.Content)
		}
	}

	if len(task.Context) > 0 {
		b.WriteString("\n\n--- context ---\n")
		keys := sortedKeys(task.Context)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, task.Context[k])
		}
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Runner) emit(e types.Event) {
	if r.Emitter == nil {
		return
	}
	_ = r.Emitter.Emit(e)
}
