package loop

import (
	"github.com/kestrel-ai/researchd/internal/models"
	"github.com/kestrel-ai/researchd/internal/sources"
	"github.com/kestrel-ai/researchd/internal/trace"
)

// runState is the per-run mutable loop state. Each run constructs and
// exclusively owns one instance for its lifetime; nothing here is shared
// between runs.
type runState struct {
	runID    string
	task     string
	userTask string // task with the agent prompt prefix applied

	registry *sources.Registry
	trace    *trace.RunTrace

	pending         []models.PlanQuery
	executedQueries []string
	failedQueries   []string

	consecutiveFailures int
	totalQueries        int
	failedCount         int

	degraded        bool
	compactedOnce   bool
	fallbackUsed    bool
	iterations      int
	firedHeuristics map[string]bool
}

func newRunState(runID, task, userTask string, registry *sources.Registry) *runState {
	return &runState{
		runID:           runID,
		task:            task,
		userTask:        userTask,
		registry:        registry,
		trace:           trace.New(runID, task),
		firedHeuristics: make(map[string]bool),
	}
}
