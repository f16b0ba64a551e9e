package models

// Source is a single piece of discovered evidence. Location is the identity
// key: two sources sharing a location are the same source.
type Source struct {
	Title    string `json:"title"`
	Type     string `json:"type"`
	Location string `json:"location"`
}

// PlanQuery is one search query proposed by the planning stage (or a
// fallback/heuristic generator) together with its stated intent.
type PlanQuery struct {
	Query  string `json:"query"`
	Intent string `json:"intent"`
}

// Plan is the model's answer to the planning prompt.
type Plan struct {
	Queries []PlanQuery `json:"queries"`
}

// Reflection is the model's judgment of evidence sufficiency after a search
// round, plus optional follow-up queries for another iteration.
type Reflection struct {
	Sufficient bool        `json:"sufficient"`
	Confidence float64     `json:"confidence"`
	Gaps       []string    `json:"gaps"`
	NewQueries []PlanQuery `json:"new_queries"`
}

// Citation is a model-declared citation. ID refers to the positional tag
// ("[1]", "[2]", ...) assigned to the source list shown to the model at
// synthesis time; it has no meaning outside that presentation.
type Citation struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Location string `json:"location"`
}

// Synthesis is the model's final cited answer.
type Synthesis struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// RunRequest carries one research task. Task is required; the agent selector
// and limit overrides are optional.
type RunRequest struct {
	Task       string `json:"task"`
	AgentName  string `json:"agent_name,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
	MaxIters   int    `json:"max_iters,omitempty"`
	MaxQueries int    `json:"max_queries,omitempty"`
	MaxSources int    `json:"max_sources,omitempty"`
}

// CacheHits records which calls were served from cache during a run.
type CacheHits struct {
	LLM    []string `json:"llm"`
	Search []string `json:"search"`
}

// ForcedFlags captures degraded or substituted behavior during a run.
type ForcedFlags struct {
	FallbackQueryUsed bool      `json:"fallback_query_used"`
	CacheHit          CacheHits `json:"cache_hit"`
}

// RunMetadata is diagnostic bookkeeping attached to a successful response.
type RunMetadata struct {
	Iterations   int         `json:"iterations"`
	Model        string      `json:"model"`
	MaxTokens    int         `json:"max_tokens"`
	QueriesCount int         `json:"queries_count"`
	SourcesCount int         `json:"sources_count"`
	ForcedFlags  ForcedFlags `json:"forced_flags"`
}

// AgentResponse is the structured answer returned to the caller.
type AgentResponse struct {
	Summary         string         `json:"summary"`
	KeyFindings     []string       `json:"key_findings"`
	Recommendations []string       `json:"recommendations"`
	Risks           []string       `json:"risks"`
	OpenQuestions   []string       `json:"open_questions"`
	Sources         []Source       `json:"sources"`
	Raw             map[string]any `json:"raw,omitempty"`
	Metadata        *RunMetadata   `json:"metadata,omitempty"`
}

// ErrorResponse builds the terminal error shape: an "ERROR:" summary with the
// reason mirrored into the risk list and no evidence attached.
func ErrorResponse(reason string, raw map[string]any) AgentResponse {
	return AgentResponse{
		Summary:         "ERROR: " + reason,
		KeyFindings:     []string{},
		Recommendations: []string{},
		Risks:           []string{reason},
		OpenQuestions:   []string{},
		Sources:         []Source{},
		Raw:             raw,
	}
}
