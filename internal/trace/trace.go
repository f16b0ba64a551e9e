// Package trace records the full history of one research run for offline
// debugging. A trace is owned exclusively by its run and persisted once per
// run id.
package trace

import (
	"time"

	"github.com/kestrel-ai/researchd/internal/models"
	"github.com/kestrel-ai/researchd/internal/retry"
)

// StageSpan is one timed execution of a loop stage.
type StageSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RunTrace is the append-only record of a run: stage timings, queries,
// sources, reflections, the final synthesis, and cache bookkeeping. It is
// not consumed by the loop itself.
type RunTrace struct {
	RunID       string                 `json:"run_id"`
	Task        string                 `json:"task"`
	Stages      map[string][]StageSpan `json:"stages"`
	Queries     []string               `json:"queries"`
	Sources     []models.Source        `json:"sources"`
	Reflections []models.Reflection    `json:"reflections"`
	Synthesis   *models.Synthesis      `json:"synthesis"`
	CacheHits   models.CacheHits       `json:"cache_hits"`
	Errors      []retry.ErrorRecord    `json:"errors,omitempty"`
}

// New initializes an empty trace for the given run.
func New(runID, task string) *RunTrace {
	return &RunTrace{
		RunID:  runID,
		Task:   task,
		Stages: make(map[string][]StageSpan),
		CacheHits: models.CacheHits{
			LLM:    []string{},
			Search: []string{},
		},
	}
}

// StartStage opens a new span for the named stage and returns a closer that
// stamps its end time.
func (t *RunTrace) StartStage(name string) func() {
	span := StageSpan{Start: time.Now()}
	t.Stages[name] = append(t.Stages[name], span)
	idx := len(t.Stages[name]) - 1
	return func() {
		t.Stages[name][idx].End = time.Now()
	}
}

// RecordLLMCacheHit notes that the named stage's model call was served from
// cache.
func (t *RunTrace) RecordLLMCacheHit(stage string) {
	t.CacheHits.LLM = append(t.CacheHits.LLM, stage)
}

// RecordSearchCacheHit notes that a search query was served from cache.
func (t *RunTrace) RecordSearchCacheHit(query string) {
	t.CacheHits.Search = append(t.CacheHits.Search, query)
}
