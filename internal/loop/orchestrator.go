// Package loop implements the plan→search→reflect→synthesize state machine
// that drives a research run to a cited answer.
package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ai/researchd/internal/cache"
	"github.com/kestrel-ai/researchd/internal/citations"
	"github.com/kestrel-ai/researchd/internal/config"
	"github.com/kestrel-ai/researchd/internal/heuristics"
	"github.com/kestrel-ai/researchd/internal/llm"
	"github.com/kestrel-ai/researchd/internal/metrics"
	"github.com/kestrel-ai/researchd/internal/models"
	"github.com/kestrel-ai/researchd/internal/prompts"
	"github.com/kestrel-ai/researchd/internal/retry"
	"github.com/kestrel-ai/researchd/internal/search"
	"github.com/kestrel-ai/researchd/internal/sources"
	"github.com/kestrel-ai/researchd/internal/trace"
	"github.com/kestrel-ai/researchd/internal/tracing"
)

// Stage names used in trace records and cache-hit bookkeeping.
const (
	stagePlan       = "plan"
	stageSearch     = "search"
	stageReflect    = "reflect"
	stageSynthesize = "synthesize"
)

// Degraded-mode thresholds: three consecutive outright failures, or a 50%
// cumulative failure ratio once at least four queries have run.
const (
	degradedConsecutiveFailures = 3
	degradedMinQueries          = 4
	degradedFailureRatio        = 0.5
)

var (
	errInvalidReflection = errors.New("reflection phase returned invalid JSON")
	errInvalidSynthesis  = errors.New("synthesis phase returned invalid JSON")
)

// AgentResolver looks up the prompt prefix for an agent selector.
type AgentResolver interface {
	Resolve(name, id string) (string, bool)
}

// TraceWriter persists one trace record per run id.
type TraceWriter interface {
	Save(ctx context.Context, t *trace.RunTrace) error
}

// Orchestrator composes the cache, retry policy, source registry, domain
// heuristics, and citation validator into the research loop. One instance
// serves many concurrent runs; all per-run state lives in runState.
type Orchestrator struct {
	cfg        *config.Config
	llm        llm.Client
	search     search.Client
	cache      cache.Store
	agents     AgentResolver
	prompts    *prompts.Library
	traces     TraceWriter
	retry      *retry.Policy
	heuristics []heuristics.Heuristic
	logger     *zap.Logger
}

// New wires an orchestrator. traces may be nil, in which case no trace
// records are persisted.
func New(
	cfg *config.Config,
	llmClient llm.Client,
	searchClient search.Client,
	cacheStore cache.Store,
	agentResolver AgentResolver,
	promptLib *prompts.Library,
	traceWriter TraceWriter,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		llm:        llmClient,
		search:     searchClient,
		cache:      cacheStore,
		agents:     agentResolver,
		prompts:    promptLib,
		traces:     traceWriter,
		retry:      retry.NewPolicy(cfg.Loop.MaxRetries, logger),
		heuristics: heuristics.Defaults(),
		logger:     logger,
	}
}

// SetRetryPolicy replaces the search retry policy; used by tests to avoid
// real backoff sleeps.
func (o *Orchestrator) SetRetryPolicy(p *retry.Policy) {
	o.retry = p
}

// Run executes one research task to completion and returns the structured
// answer. Run never returns an error: every failure mode is expressed as an
// "ERROR:" response with the reason in the risk list.
func (o *Orchestrator) Run(ctx context.Context, req models.RunRequest) models.AgentResponse {
	if req.Task == "" {
		return models.ErrorResponse("task is required", nil)
	}

	metrics.RunsStarted.Inc()
	start := time.Now()
	defer func() {
		metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	limits := o.limitsFor(req)

	userTask := req.Task
	if o.agents != nil {
		if prefix, ok := o.agents.Resolve(req.AgentName, req.AgentID); ok && prefix != "" {
			userTask = prefix + "\n\n" + req.Task
		}
	}

	registry := sources.NewRegistry(o.cfg.LowQualityDomains, o.cfg.AuthoritativeDomains)
	st := newRunState(runID(req.Task), req.Task, userTask, registry)

	o.logger.Info("Research run started",
		zap.String("run_id", st.runID),
		zap.Int("max_iters", limits.MaxIters),
		zap.Int("max_queries", limits.MaxQueries),
	)

	for iter := 0; iter < limits.MaxIters; iter++ {
		st.iterations++

		var queries []models.PlanQuery
		if len(st.pending) > 0 {
			queries = dedupeSortQueries(st.pending)
			st.pending = nil
		} else {
			planned, raw, err := o.plan(ctx, st, limits)
			if err != nil {
				return o.fail(ctx, st, fmt.Sprintf("planning phase failed: %v", err), raw)
			}
			queries = planned
		}

		o.searchRound(ctx, st, queries, limits)
		st.registry.Apply()

		if st.degraded {
			// Degraded search short-circuits the loop: no further reflection,
			// straight to synthesis with whatever sources exist.
			break
		}

		reflection, raw, err := o.reflect(ctx, st, limits)
		if err != nil {
			return o.fail(ctx, st, reflectionFailure(err), raw)
		}
		st.trace.Reflections = append(st.trace.Reflections, reflection)

		if reflection.Sufficient {
			if h := o.fireHeuristic(st); h != nil {
				st.pending = capQueries(h.FallbackQueries(st.userTask), limits.MaxQueries)
				continue
			}
			break
		}

		if len(reflection.NewQueries) == 0 {
			// The model sees gaps but has no directions left to explore.
			break
		}
		st.pending = capQueries(reflection.NewQueries, limits.MaxQueries)
	}

	synthesis, raw, presented, err := o.synthesize(ctx, st, limits)
	if err != nil {
		return o.fail(ctx, st, synthesisFailure(err), raw)
	}

	idMap := sources.IDMap(presented)
	accepted, invalidIDs := citations.Validate(synthesis.Citations, idMap)
	metrics.InvalidCitations.Add(float64(len(invalidIDs)))

	st.trace.Queries = st.executedQueries
	st.trace.Sources = st.registry.All()
	st.trace.Synthesis = &synthesis
	o.persistTrace(ctx, st)

	risks := o.assembleRisks(st, invalidIDs)

	metadata := &models.RunMetadata{
		Iterations:   st.iterations,
		Model:        o.llm.Model(),
		MaxTokens:    limits.LLMMaxTokens,
		QueriesCount: len(st.executedQueries),
		SourcesCount: st.registry.Len(),
		ForcedFlags: models.ForcedFlags{
			FallbackQueryUsed: st.fallbackUsed,
			CacheHit:          st.trace.CacheHits,
		},
	}

	metrics.RunsCompleted.WithLabelValues("ok").Inc()
	metrics.IterationsPerRun.Observe(float64(st.iterations))

	o.logger.Info("Research run completed",
		zap.String("run_id", st.runID),
		zap.Int("iterations", st.iterations),
		zap.Int("sources", st.registry.Len()),
		zap.Bool("degraded", st.degraded),
	)

	return models.AgentResponse{
		Summary:         synthesis.Answer,
		KeyFindings:     []string{},
		Recommendations: []string{},
		Risks:           risks,
		OpenQuestions:   []string{},
		Sources:         accepted,
		Raw:             raw,
		Metadata:        metadata,
	}
}

// limitsFor merges request overrides onto the configured loop limits.
func (o *Orchestrator) limitsFor(req models.RunRequest) config.Loop {
	limits := o.cfg.Loop
	if req.MaxIters > 0 {
		limits.MaxIters = req.MaxIters
	}
	if req.MaxQueries > 0 {
		limits.MaxQueries = req.MaxQueries
	}
	if req.MaxSources > 0 {
		limits.MaxSources = req.MaxSources
	}
	return limits
}

// fail persists the trace (forensic evidence of partial progress) and
// returns the terminal error response.
func (o *Orchestrator) fail(ctx context.Context, st *runState, reason string, raw map[string]any) models.AgentResponse {
	st.trace.Queries = st.executedQueries
	st.trace.Sources = st.registry.All()
	o.persistTrace(ctx, st)
	metrics.RunsCompleted.WithLabelValues("error").Inc()
	o.logger.Error("Research run failed",
		zap.String("run_id", st.runID),
		zap.String("reason", reason),
	)
	return models.ErrorResponse(reason, raw)
}

func reflectionFailure(err error) string {
	if errors.Is(err, errInvalidReflection) {
		return errInvalidReflection.Error()
	}
	return fmt.Sprintf("reflection phase failed: %v", err)
}

func synthesisFailure(err error) string {
	if errors.Is(err, errInvalidSynthesis) {
		return errInvalidSynthesis.Error()
	}
	return fmt.Sprintf("synthesis phase failed: %v", err)
}

// plan renders the planning prompt and parses the model's query list. A
// parse failure or empty list substitutes the fixed fallback queries; only a
// failed model call is fatal.
func (o *Orchestrator) plan(ctx context.Context, st *runState, limits config.Loop) ([]models.PlanQuery, map[string]any, error) {
	done := st.trace.StartStage(stagePlan)
	defer done()
	ctx, span := tracing.StartSpan(ctx, "loop.plan")
	defer span.End()
	timer := stageTimer(stagePlan)
	defer timer()

	prompt := o.prompts.Plan(prompts.Vars{Task: st.userTask})
	result, err := o.callLLM(ctx, st, stagePlan, prompt, limits)
	if err != nil {
		return nil, nil, err
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(result.Content), &plan); err != nil || len(plan.Queries) == 0 {
		plan = models.Plan{Queries: fallbackQueries(st.userTask)}
		st.fallbackUsed = true
		metrics.FallbackPlans.Inc()
		o.logger.Warn("Plan output unusable, substituting fallback queries",
			zap.String("run_id", st.runID),
		)
	}

	return capQueries(dedupeSortQueries(plan.Queries), limits.MaxQueries), result.Raw, nil
}

// searchCacheEntry is the cached shape of one search call. Failures are
// cached too, so a query known to fail is not retried at full backoff cost
// on every run; recovering from a remembered failure requires clearing the
// cache.
type searchCacheEntry struct {
	Results []models.Source `json:"results"`
	Failed  bool            `json:"failed"`
}

// searchRound executes one iteration's queries sequentially, accumulating
// sources and failure counters, and flips degraded mode when the thresholds
// are breached.
func (o *Orchestrator) searchRound(ctx context.Context, st *runState, queries []models.PlanQuery, limits config.Loop) {
	done := st.trace.StartStage(stageSearch)
	defer done()
	ctx, span := tracing.StartSpan(ctx, "loop.search")
	defer span.End()
	timer := stageTimer(stageSearch)
	defer timer()

	for _, q := range queries {
		if st.degraded {
			break
		}
		st.executedQueries = append(st.executedQueries, q.Query)
		st.totalQueries++

		results, failed := o.searchOne(ctx, st, q.Query, limits.MaxSources)

		if failed || len(results) == 0 {
			st.consecutiveFailures++
			st.failedCount++
		} else {
			st.consecutiveFailures = 0
		}

		if len(results) > 0 {
			st.registry.Add(results)
			metrics.SourcesCollected.Add(float64(len(results)))
			if len(results) < limits.MinResultsPerQuery {
				// Partial results are kept but the query still counts as
				// underperforming for reflection context.
				st.failedQueries = append(st.failedQueries, q.Query)
			}
		} else {
			st.failedQueries = append(st.failedQueries, q.Query)
		}

		ratioBreached := st.totalQueries >= degradedMinQueries &&
			float64(st.failedCount)/float64(st.totalQueries) >= degradedFailureRatio
		if st.consecutiveFailures >= degradedConsecutiveFailures || ratioBreached {
			st.degraded = true
			metrics.DegradedRuns.Inc()
			o.logger.Warn("Entering degraded search mode",
				zap.String("run_id", st.runID),
				zap.Int("consecutive_failures", st.consecutiveFailures),
				zap.Int("failed", st.failedCount),
				zap.Int("total", st.totalQueries),
			)
		}
	}
}

// searchOne serves a single query from cache or through the retry policy,
// writing the outcome back to the cache unconditionally.
func (o *Orchestrator) searchOne(ctx context.Context, st *runState, query string, limit int) ([]models.Source, bool) {
	key := cache.SearchKey(query, limit)

	if data, ok, err := o.cache.Get(ctx, cache.NamespaceSearch, key); err != nil {
		o.logger.Warn("Search cache read failed", zap.Error(err))
	} else if ok {
		var entry searchCacheEntry
		if err := json.Unmarshal(data, &entry); err == nil {
			st.trace.RecordSearchCacheHit(query)
			metrics.CacheHits.WithLabelValues(cache.NamespaceSearch).Inc()
			return entry.Results, entry.Failed
		}
		o.logger.Warn("Discarding undecodable search cache entry", zap.String("query", query))
	}
	metrics.CacheMisses.WithLabelValues(cache.NamespaceSearch).Inc()
	metrics.SearchQueries.Inc()

	results, failed, errRecords := o.retry.Search(ctx, o.search, query, limit)
	st.trace.Errors = append(st.trace.Errors, errRecords...)

	if data, err := json.Marshal(searchCacheEntry{Results: results, Failed: failed}); err == nil {
		if err := o.cache.Put(ctx, cache.NamespaceSearch, key, data); err != nil {
			o.logger.Warn("Search cache write failed", zap.Error(err))
		}
	}
	return results, failed
}

// reflect asks the model whether the gathered evidence suffices. Unlike
// planning there is no fallback: unparseable output is fatal because no safe
// substitute exists for reasoning over the evidence.
func (o *Orchestrator) reflect(ctx context.Context, st *runState, limits config.Loop) (models.Reflection, map[string]any, error) {
	done := st.trace.StartStage(stageReflect)
	defer done()
	ctx, span := tracing.StartSpan(ctx, "loop.reflect")
	defer span.End()
	timer := stageTimer(stageReflect)
	defer timer()

	view := st.registry.ReflectionView(limits.TokenBudget, limits.CompactKeepRecent)
	if view.Compacted && view.Omitted > 0 {
		st.compactedOnce = true
		metrics.SourcesCompacted.Inc()
	}

	failedBlock := "(none)"
	if len(st.failedQueries) > 0 {
		lines := make([]string, 0, len(st.failedQueries))
		for _, q := range st.failedQueries {
			lines = append(lines, "- "+q)
		}
		failedBlock = strings.Join(lines, "\n")
	}

	prompt := o.prompts.Reflect(prompts.Vars{
		Task:          st.userTask,
		Sources:       view.Text,
		FailedQueries: failedBlock,
	})
	result, err := o.callLLM(ctx, st, stageReflect, prompt, limits)
	if err != nil {
		return models.Reflection{}, nil, err
	}

	var reflection models.Reflection
	if err := json.Unmarshal([]byte(result.Content), &reflection); err != nil {
		return models.Reflection{}, result.Raw, errInvalidReflection
	}
	return reflection, result.Raw, nil
}

// synthesize produces the final answer from the (possibly compacted) source
// presentation and returns the exact source list that was shown, which is
// the only list citation ids are meaningful against.
func (o *Orchestrator) synthesize(ctx context.Context, st *runState, limits config.Loop) (models.Synthesis, map[string]any, []models.Source, error) {
	done := st.trace.StartStage(stageSynthesize)
	defer done()
	ctx, span := tracing.StartSpan(ctx, "loop.synthesize")
	defer span.End()
	timer := stageTimer(stageSynthesize)
	defer timer()

	view := st.registry.SynthesisView(limits.TokenBudget, limits.CompactKeepRecent, limits.CompactBeforeSynthesis)
	if view.Compacted && view.Omitted > 0 {
		st.compactedOnce = true
		metrics.SourcesCompacted.Inc()
	}

	prompt := o.prompts.Synthesize(prompts.Vars{
		Task:    st.userTask,
		Sources: view.Text,
	})
	result, err := o.callLLM(ctx, st, stageSynthesize, prompt, limits)
	if err != nil {
		return models.Synthesis{}, nil, nil, err
	}

	var synthesis models.Synthesis
	if err := json.Unmarshal([]byte(result.Content), &synthesis); err != nil {
		return models.Synthesis{}, result.Raw, nil, errInvalidSynthesis
	}
	return synthesis, result.Raw, view.Shown, nil
}

// callLLM serves a model call from cache when possible; on a miss it calls
// the backend and caches the successful result. Model calls are never
// retried here.
func (o *Orchestrator) callLLM(ctx context.Context, st *runState, stage, prompt string, limits config.Loop) (llm.ChatResult, error) {
	key := cache.LLMKey(prompts.SystemPrompt, prompt, o.llm.Model(), o.cfg.LLM.Temperature, limits.LLMMaxTokens)

	if data, ok, err := o.cache.Get(ctx, cache.NamespaceLLM, key); err != nil {
		o.logger.Warn("LLM cache read failed", zap.Error(err))
	} else if ok {
		var cached llm.ChatResult
		if err := json.Unmarshal(data, &cached); err == nil {
			st.trace.RecordLLMCacheHit(stage)
			metrics.CacheHits.WithLabelValues(cache.NamespaceLLM).Inc()
			return cached, nil
		}
		o.logger.Warn("Discarding undecodable LLM cache entry", zap.String("stage", stage))
	}
	metrics.CacheMisses.WithLabelValues(cache.NamespaceLLM).Inc()

	result, err := o.llm.Chat(ctx, llm.ChatRequest{
		System:      prompts.SystemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: o.cfg.LLM.Temperature,
		MaxTokens:   limits.LLMMaxTokens,
		ForceJSON:   true,
	})
	if err != nil {
		return llm.ChatResult{}, err
	}

	if data, err := json.Marshal(result); err == nil {
		if err := o.cache.Put(ctx, cache.NamespaceLLM, key, data); err != nil {
			o.logger.Warn("LLM cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// fireHeuristic returns the first applicable heuristic that has not fired
// this run, marking it fired. Heuristics only ever append queries; they
// never remove evidence.
func (o *Orchestrator) fireHeuristic(st *runState) heuristics.Heuristic {
	for _, h := range o.heuristics {
		if st.firedHeuristics[h.Name()] {
			continue
		}
		if !h.Triggered(st.userTask) {
			continue
		}
		if h.Covered(st.registry.All()) {
			continue
		}
		st.firedHeuristics[h.Name()] = true
		metrics.HeuristicFired.WithLabelValues(h.Name()).Inc()
		o.logger.Info("Heuristic overriding sufficiency verdict",
			zap.String("run_id", st.runID),
			zap.String("heuristic", h.Name()),
		)
		return h
	}
	return nil
}

func (o *Orchestrator) assembleRisks(st *runState, invalidIDs []string) []string {
	risks := []string{}
	if st.degraded {
		risks = append(risks, "Search degraded; answer may be based on partial information.")
	}
	if st.compactedOnce {
		risks = append(risks, "Some sources were omitted due to context budget limits.")
	}
	if len(invalidIDs) > 0 {
		risks = append(risks, "Some citations were invalid and were omitted.")
	}
	if !st.registry.HasAuthoritative() {
		risks = append(risks, "No top-tier analyst or major tech news sources found.")
	}
	return risks
}

func (o *Orchestrator) persistTrace(ctx context.Context, st *runState) {
	if o.traces == nil {
		return
	}
	if err := o.traces.Save(ctx, st.trace); err != nil {
		o.logger.Error("Failed to persist run trace",
			zap.String("run_id", st.runID),
			zap.Error(err),
		)
	}
}

func stageTimer(stage string) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
