package types

// EventKind tags the variant carried by an Event. Go has no native tagged
// union, so Event carries one populated payload field selected by Kind —
// the closed-set-of-variants pattern the rest of agentwave uses for
// context strategies and message kinds too (see §9 of SPEC_FULL.md).
type EventKind string

// Event kinds, in the order they can first appear during a run.
const (
	EventWorkflowStart    EventKind = "workflow_start"
	EventTaskReady        EventKind = "task_ready"
	EventWaveStart        EventKind = "wave_start"
	EventTaskStart        EventKind = "task_start"
	EventAgentInvoke      EventKind = "agent_invoke"
	EventTaskComplete     EventKind = "task_complete"
	EventTaskError        EventKind = "task_error"
	EventWaveComplete     EventKind = "wave_complete"
	EventWorkflowComplete EventKind = "workflow_complete"
	EventWorkflowError    EventKind = "workflow_error"
)

// PreviewLimit bounds TaskCompletePayload.OutputPreview's length, in runes.
const PreviewLimit = 280

// Event is one record in the ordered, lossless progress stream a run
// produces. Exactly one of the typed payload fields is populated,
// selected by Kind.
type Event struct {
	Kind EventKind

	WorkflowStart  *WorkflowStartPayload  `json:",omitempty"`
	TaskReady      *TaskReadyPayload      `json:",omitempty"`
	WaveStart      *WaveStartPayload      `json:",omitempty"`
	TaskStart      *TaskStartPayload      `json:",omitempty"`
	AgentInvoke    *AgentInvokePayload    `json:",omitempty"`
	TaskComplete   *TaskCompletePayload   `json:",omitempty"`
	TaskError      *TaskErrorPayload      `json:",omitempty"`
	WaveComplete   *WaveCompletePayload   `json:",omitempty"`
	WorkflowComplete *WorkflowCompletePayload `json:",omitempty"`
	WorkflowError  *WorkflowErrorPayload  `json:",omitempty"`
}

type (
	// WorkflowStartPayload accompanies EventWorkflowStart.
	WorkflowStartPayload struct{ TaskCount int }

	// TaskReadyPayload accompanies EventTaskReady.
	TaskReadyPayload struct{ TaskID string }

	// WaveStartPayload accompanies EventWaveStart.
	WaveStartPayload struct {
		WaveIndex int
		TaskIDs   []string
	}

	// TaskStartPayload accompanies EventTaskStart.
	TaskStartPayload struct {
		TaskID    string
		AgentName string
	}

	// AgentInvokePayload accompanies EventAgentInvoke.
	AgentInvokePayload struct {
		TaskID    string
		AgentName string
		Model     string
		MaxTokens int
	}

	// TaskCompletePayload accompanies EventTaskComplete. OutputPreview is
	// truncated to PreviewLimit characters.
	TaskCompletePayload struct {
		TaskID        string
		Success       bool
		DurationMS    int64
		TokensUsed    int
		OutputPreview string
	}

	// TaskErrorPayload accompanies EventTaskError.
	TaskErrorPayload struct {
		TaskID string
		Error  string
	}

	// WaveCompletePayload accompanies EventWaveComplete.
	WaveCompletePayload struct {
		WaveIndex     int
		SuccessCount  int
		FailureCount  int
	}

	// RunSummary aggregates the outcome of a finished run.
	RunSummary struct {
		Total           int
		Success         int
		Failure         int
		TotalTokens     int
		TotalDurationMS int64
	}

	// WorkflowCompletePayload accompanies EventWorkflowComplete.
	WorkflowCompletePayload struct{ Summary RunSummary }

	// WorkflowErrorPayload accompanies EventWorkflowError.
	WorkflowErrorPayload struct{ Error string }
)

// Preview truncates s to PreviewLimit characters, the rule applied to
// TaskCompletePayload.OutputPreview.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= PreviewLimit {
		return s
	}
	return string(r[:PreviewLimit])
}
