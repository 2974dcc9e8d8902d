package agentwave

import (
	"time"

	"github.com/meshwave/agentwave/telemetry"
)

// Config bounds the behavior of one Submit call. The zero value is not
// directly usable; call DefaultConfig and override individual fields.
type Config struct {
	// MaxParallelAgents caps concurrently running tasks per wave.
	MaxParallelAgents int
	// GlobalTimeout is the hard deadline for the whole run.
	GlobalTimeout time.Duration
	// EnableCommunication turns the MessageBus on or off.
	EnableCommunication bool
	// ContextStrategy selects how prior work is packed into a prompt.
	ContextStrategy ContextStrategy
	// PruningThreshold is the global token cap governing the pack rule.
	PruningThreshold int
	// PerTaskContextBudget bounds tokens of prior-work included per prompt.
	PerTaskContextBudget int
	// TaskRetries is the transient-failure retry count.
	TaskRetries int
	// CancellationGrace bounds how long the scheduler awaits a graceful
	// cancel before marking stragglers cancelled.
	CancellationGrace time.Duration
	// Logger receives structured diagnostics from the scheduler and task
	// runner. Defaults to telemetry.NoopLogger when nil.
	Logger telemetry.Logger
}

// ContextStrategy selects how ContextStore assembles prior-work context.
type ContextStrategy string

const (
	ContextShared       ContextStrategy = "shared"
	ContextIsolated     ContextStrategy = "isolated"
	ContextHierarchical ContextStrategy = "hierarchical"
)

// DefaultConfig returns the documented defaults (SPEC_FULL.md §4.7 table).
func DefaultConfig() Config {
	return Config{
		MaxParallelAgents:    3,
		GlobalTimeout:        300 * time.Second,
		EnableCommunication:  true,
		ContextStrategy:      ContextShared,
		PruningThreshold:     150_000,
		PerTaskContextBudget: 5_000,
		TaskRetries:          2,
		CancellationGrace:    2 * time.Second,
	}
}
