package contextstore

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/meshwave/agentwave/types"
)

func TestPackPassesShortTextThrough(t *testing.T) {
	assert.Equal(t, "hello", Pack("hello", 100))
}

func TestPackTruncatesLongTextKeepingHeadAndTail(t *testing.T) {
	text := strings.Repeat("a", 40) + strings.Repeat("b", 40)
	out := Pack(text, 60)
	assert.Contains(t, out, "[content pruned]")
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 5)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 5)))
}

func TestIsolatedStrategyAlwaysEmpty(t *testing.T) {
	s := New(0)
	s.Record("t1", "agent", "some output", 0, "")
	got := s.Snapshot(types.Task{ID: "t2"}, Isolated, 1000, nil)
	assert.Empty(t, got)
}

func TestSharedStrategyOrdersNewestFirst(t *testing.T) {
	s := New(0)
	s.Record("t1", "a1", "first", 10, "")
	s.Record("t2", "a2", "second", 10, "")

	got := s.Snapshot(types.Task{ID: "t3"}, Shared, 1000, nil)
	idxFirst := strings.Index(got, "first")
	idxSecond := strings.Index(got, "second")
	assert.Greater(t, idxFirst, idxSecond, "newest entry (second) should appear before older entry (first)")
}

func TestHierarchicalStrategyWalksRootToSelf(t *testing.T) {
	s := New(0)
	s.Record("root", "a", "root output", 10, "")
	s.Record("mid", "a", "mid output", 10, "")

	tasksByID := map[string]types.Task{
		"root": {ID: "root"},
		"mid":  {ID: "mid", ParentID: "root"},
	}
	self := types.Task{ID: "leaf", ParentID: "mid"}

	got := s.Snapshot(self, Hierarchical, 1000, tasksByID)
	assert.Less(t, strings.Index(got, "root output"), strings.Index(got, "mid output"))
}

func TestHierarchicalStrategyExcludesSiblings(t *testing.T) {
	s := New(0)
	s.Record("root", "a", "root output", 10, "")
	s.Record("sibling", "a", "sibling output", 10, "")

	tasksByID := map[string]types.Task{
		"root":    {ID: "root"},
		"sibling": {ID: "sibling", ParentID: "root"},
	}
	self := types.Task{ID: "self", ParentID: "root"}

	got := s.Snapshot(self, Hierarchical, 1000, tasksByID)
	assert.Contains(t, got, "root output")
	assert.NotContains(t, got, "sibling output")
}

func TestEstimateTokensApproximatesFromLength(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func TestGlobalPruningThresholdShrinksPerEntryCap(t *testing.T) {
	s := New(20) // tiny global threshold forces aggressive per-entry capping
	s.Record("t1", "a1", strings.Repeat("x", 500), 200, "")
	s.Record("t2", "a2", strings.Repeat("y", 500), 200, "")

	got := s.Snapshot(types.Task{ID: "t3"}, Shared, 1000, nil)
	assert.Less(t, len(got), 500, "global threshold should shrink output well below one full entry")
}

// TestPackRuleProperties checks the pack rule's documented laws hold for
// arbitrary inputs: idempotent on short text, and output never exceeds a
// small constant above the requested cap.
func TestPackRuleProperties(t *testing.T) {
	props := gopter.NewProperties(nil)

	props.Property("text at or under cap is returned unchanged", prop.ForAll(
		func(s string) bool {
			return Pack(s, len(s)+1) == s
		},
		gen.AlphaString(),
	))

	props.Property("packed output length never exceeds the cap plus marker", prop.ForAll(
		func(s string, capChars int) bool {
			const marker = "\n\n... [content pruned] ...\n\n"
			if capChars <= 0 {
				capChars = 1
			}
			out := Pack(s, capChars)
			return len(out) <= capChars+len(marker)
		},
		gen.AlphaString(),
		gen.IntRange(1, 200),
	))

	props.TestingRun(t)
}
