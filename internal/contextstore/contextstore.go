// Package contextstore tracks per-task outputs and packs them into a
// token-budgeted "prior work" snippet for injection into a dependent
// task's prompt. A Store is safe for concurrent use by many TaskRunners.
package contextstore

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meshwave/agentwave/types"
)

// Strategy selects how Snapshot assembles prior-work context. It is a
// closed set of three variants, not an interface, since callers never
// need to add their own.
type Strategy string

const (
	// Shared includes recent completed outputs across the whole run,
	// newest first, packed until the budget is reached.
	Shared Strategy = "shared"
	// Isolated always yields the empty string.
	Isolated Strategy = "isolated"
	// Hierarchical walks a task's parent_id chain, root to self.
	Hierarchical Strategy = "hierarchical"
)

// Store is the concurrent-safe ContextStore. The zero value is not usable;
// construct with New.
type Store struct {
	mu               sync.RWMutex
	entries          []types.ContextEntry // append-only, in record order
	byTaskID         map[string]int       // index into entries, for parent-chain walks
	pruningThreshold int
}

// New builds a Store. pruningThreshold is the configured global cap on the
// sum of per-entry token estimates considered for one snapshot; pass 0 to
// disable the global cap.
func New(pruningThreshold int) *Store {
	return &Store{
		byTaskID:         make(map[string]int),
		pruningThreshold: pruningThreshold,
	}
}

// EstimateTokens approximates a token count from character length, the
// rule applied whenever a backend does not report its own count.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 1
	}
	return int(math.Ceil(float64(len(s)) / 4))
}

// Record stores a completed task's output. tokenEstimate, when positive,
// replaces the character-based estimate (a backend-reported count);
// passing 0 falls back to EstimateTokens(output).
func (s *Store) Record(taskID, agentName, output string, tokenEstimate int, parentID string) {
	if tokenEstimate <= 0 {
		tokenEstimate = EstimateTokens(output)
	}
	entry := types.ContextEntry{
		TaskID:        taskID,
		AgentName:     agentName,
		Output:        output,
		Timestamp:     time.Now(),
		TokenEstimate: tokenEstimate,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	s.byTaskID[taskID] = len(s.entries) - 1
	_ = parentID // parent linkage is resolved via the task list at snapshot time, not stored here
}

// Pack implements the deterministic pack rule: text under cap passes
// through unchanged; text over cap is truncated to its head and tail,
// preserving the two most informative regions.
func Pack(text string, cap int) string {
	if cap <= 0 {
		return ""
	}
	if len(text) <= cap {
		return text
	}
	half := cap/2 - 25
	if half < 0 {
		half = 0
	}
	if 2*half >= len(text) {
		return text
	}
	head := text[:half]
	tail := text[len(text)-half:]
	return head + "\n\n... [content pruned] ...\n\n" + tail
}

// Snapshot assembles the prior-work string for task under strategy,
// bounded by tokenBudget. tasksByID supplies the full task set so the
// hierarchical strategy can walk parent_id chains; it may be nil for
// Shared and Isolated.
func (s *Store) Snapshot(task types.Task, strategy Strategy, tokenBudget int, tasksByID map[string]types.Task) string {
	switch strategy {
	case Isolated:
		return ""
	case Hierarchical:
		return s.snapshotHierarchical(task, tokenBudget, tasksByID)
	default:
		return s.snapshotShared(tokenBudget)
	}
}

func (s *Store) snapshotShared(tokenBudget int) string {
	s.mu.RLock()
	ordered := make([]types.ContextEntry, len(s.entries))
	copy(ordered, s.entries)
	s.mu.RUnlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.After(ordered[j].Timestamp)
	})
	return s.pack(ordered, tokenBudget)
}

func (s *Store) snapshotHierarchical(task types.Task, tokenBudget int, tasksByID map[string]types.Task) string {
	var chain []types.ContextEntry
	s.mu.RLock()
	seen := make(map[string]struct{})
	id := task.ParentID
	for id != "" {
		if _, loop := seen[id]; loop {
			break // guard against a malformed chain; Graph already rejects cycles among tasks
		}
		seen[id] = struct{}{}
		if idx, ok := s.byTaskID[id]; ok {
			chain = append(chain, s.entries[idx])
		}
		parent, ok := tasksByID[id]
		if !ok {
			break
		}
		id = parent.ParentID
	}
	s.mu.RUnlock()

	// chain was built leaf-to-root; reverse to root→self order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return s.pack(chain, tokenBudget)
}

// pack applies the per-entry cap and global pruning threshold, then
// concatenates selected entries until tokenBudget is reached.
func (s *Store) pack(ordered []types.ContextEntry, tokenBudget int) string {
	if tokenBudget <= 0 || len(ordered) == 0 {
		return ""
	}
	perEntryCap := tokenBudget / 10
	if perEntryCap < 1 {
		perEntryCap = 1
	}

	var selected []types.ContextEntry
	used := 0
	for _, e := range ordered {
		if used+e.TokenEstimate > tokenBudget && len(selected) > 0 {
			break
		}
		selected = append(selected, e)
		used += e.TokenEstimate
		if used >= tokenBudget {
			break
		}
	}

	if s.pruningThreshold > 0 && used > s.pruningThreshold && len(selected) > 0 {
		capPerEntry := s.pruningThreshold / len(selected)
		if capPerEntry < perEntryCap {
			perEntryCap = capPerEntry
		}
	}

	var b strings.Builder
	for i, e := range selected {
		if i > 0 {
			b.WriteString("\n\n")
		}
		capChars := perEntryCap * 4
		fmt.Fprintf(&b, "[%s]\n%s", e.AgentName, Pack(e.Output, capChars))
	}
	return b.String()
}
