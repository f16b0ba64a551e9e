// Package retry wraps a single search call with bounded, jittered
// exponential-backoff retries. Search failure is never fatal to a run; it
// only escalates toward degraded mode through the failure accounting kept by
// the orchestrator.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ai/researchd/internal/metrics"
	"github.com/kestrel-ai/researchd/internal/models"
	"github.com/kestrel-ai/researchd/internal/search"
)

// ErrorRecord is one entry in the run's error ledger.
type ErrorRecord struct {
	Phase string `json:"phase"`
	Query string `json:"query"`
	Error string `json:"error"`
}

// Policy retries a search call up to MaxAttempts times, sleeping
// min(2^attempt + jitter[0,1), SleepCap) between attempts.
type Policy struct {
	MaxAttempts int
	SleepCap    time.Duration

	// Sleep and Jitter are replaceable in tests.
	Sleep  func(time.Duration)
	Jitter func() float64

	logger *zap.Logger
}

// NewPolicy builds a policy with the given attempt cap. A non-positive cap
// falls back to 3 attempts.
func NewPolicy(maxAttempts int, logger *zap.Logger) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		SleepCap:    10 * time.Second,
		Sleep:       time.Sleep,
		Jitter:      rand.Float64,
		logger:      logger,
	}
}

// Search executes one query through the client, retrying on error or empty
// results. It returns the results, whether all attempts were exhausted
// without any results, and the error ledger entries accumulated along the
// way. Errors are recorded but never returned.
func (p *Policy) Search(ctx context.Context, client search.Client, query string, limit int) ([]models.Source, bool, []ErrorRecord) {
	var errs []ErrorRecord
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		results, err := client.Search(ctx, query, limit)
		if err != nil {
			errs = append(errs, ErrorRecord{Phase: "search", Query: query, Error: err.Error()})
			p.logger.Warn("Search attempt failed",
				zap.String("query", query),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		} else if len(results) > 0 {
			return results, false, errs
		}

		if attempt < p.MaxAttempts-1 {
			metrics.SearchRetries.Inc()
			backoff := time.Duration(math.Min(
				math.Pow(2, float64(attempt))+p.Jitter(),
				p.SleepCap.Seconds(),
			) * float64(time.Second))
			p.Sleep(backoff)
		}
	}
	metrics.SearchFailures.Inc()
	return nil, true, errs
}
