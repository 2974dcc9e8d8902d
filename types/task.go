// Package types defines the wire-level domain model shared by every
// agentwave package: tasks, results, context entries, bus messages and
// progress events. Nothing in this package depends on any other agentwave
// package, so it is safe to import from internal and public packages alike.
package types

import "time"

// Task is a unit of work supplied by the caller as part of a workflow
// submission. IDs must be unique within a workflow and dependencies must
// refer only to other tasks in the same workflow.
type Task struct {
	// ID uniquely identifies the task within its workflow. Non-empty.
	ID string

	// AgentName must be resolvable by the configured AgentRegistry.
	AgentName string

	// Description is a human-readable summary shown in progress UIs.
	Description string

	// Prompt is the task instruction sent to the agent.
	Prompt string

	// Dependencies lists task IDs that must complete (successfully or not)
	// before this task becomes ready.
	Dependencies []string

	// Priority breaks ties within a ready set; higher runs first. Defaults
	// to DefaultPriority when zero.
	Priority int

	// MaxTokens bounds the model's output length. Defaults to
	// DefaultMaxTokens when zero.
	MaxTokens int

	// ModelOverride, when set, overrides the agent's default model tier.
	ModelOverride string

	// Context is an opaque key/value bag appended verbatim to the prompt.
	Context map[string]string

	// ParentID is consulted only by the hierarchical context strategy.
	ParentID string

	// order is the zero-based position of this task in the submitted list.
	// It is assigned by Graph.New and used as the deterministic tie-break
	// key for ready-set ordering, since submission order is otherwise lost
	// once tasks are held in maps. Unexported: callers cannot set it.
	order int
}

// Order returns the task's position in the workflow's submitted task list.
func (t Task) Order() int { return t.order }

// WithOrder returns a copy of t with its insertion order set. Used by Graph
// when it ingests a task list; not meant for caller use.
func (t Task) WithOrder(n int) Task {
	t.order = n
	return t
}

const (
	// DefaultPriority is applied to a Task whose Priority is zero.
	DefaultPriority = 5
	// DefaultMaxTokens is applied to a Task whose MaxTokens is zero.
	DefaultMaxTokens = 8000
)

// Normalized returns a copy of t with zero-valued optional fields replaced
// by their documented defaults.
func (t Task) Normalized() Task {
	if t.Priority == 0 {
		t.Priority = DefaultPriority
	}
	if t.MaxTokens == 0 {
		t.MaxTokens = DefaultMaxTokens
	}
	return t
}

// TaskResult is the immutable record produced by executing one Task.
type TaskResult struct {
	TaskID    string
	AgentName string

	// Success is false when the task failed, was skipped because an
	// upstream dependency failed, or was cancelled.
	Success bool

	// Output holds the agent's response text; empty when Success is false.
	Output string

	// Error holds a human-readable failure reason; empty when Success is true.
	Error string

	// TokensUsed is input+output tokens as reported by the backend.
	TokensUsed int

	// DurationMS is the wall-clock time spent in TaskRunner.Run.
	DurationMS int64

	// Retries counts transient-failure retries consumed before the final
	// outcome.
	Retries int

	// Metadata carries at least "model" and "stop_reason" on success.
	Metadata map[string]string
}

// ContextEntry is what ContextStore remembers about one completed task.
type ContextEntry struct {
	TaskID        string
	AgentName     string
	Output        string
	Timestamp     time.Time
	TokenEstimate int
}

// MessageKind enumerates the AgentMessage.Kind tag.
type MessageKind string

// Bus message kinds.
const (
	MessageData      MessageKind = "data"
	MessageRequest   MessageKind = "request"
	MessageResponse  MessageKind = "response"
	MessageBroadcast MessageKind = "broadcast"
)

// AgentMessage is a MessageBus payload exchanged between running tasks.
type AgentMessage struct {
	From      string
	To        string // empty means broadcast
	Kind      MessageKind
	Content   any
	Timestamp time.Time
}
