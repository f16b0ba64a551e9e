package loop

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/kestrel-ai/researchd/internal/models"
)

// runID derives a stable run identifier from the normalized task text, so
// re-running the same task overwrites the same trace record.
func runID(task string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(task)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

func normalizeQuery(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// dedupeSortQueries collapses whitespace, drops empty and case-insensitive
// duplicate queries, and orders the rest by lowercased query text so a query
// set is deterministic regardless of how the model ordered it.
func dedupeSortQueries(queries []models.PlanQuery) []models.PlanQuery {
	seen := make(map[string]struct{}, len(queries))
	unique := make([]models.PlanQuery, 0, len(queries))
	for _, q := range queries {
		normalized := normalizeQuery(q.Query)
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, models.PlanQuery{Query: normalized, Intent: q.Intent})
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return strings.ToLower(unique[i].Query) < strings.ToLower(unique[j].Query)
	})
	return unique
}

func capQueries(queries []models.PlanQuery, max int) []models.PlanQuery {
	if max > 0 && len(queries) > max {
		return queries[:max]
	}
	return queries
}

// fallbackQueries is the fixed substitute plan used when the planning call
// returns unparseable output or no queries at all.
func fallbackQueries(task string) []models.PlanQuery {
	return []models.PlanQuery{
		{Query: task + " market share 2024 2025", Intent: "core market share query"},
		{Query: task + " year-over-year growth 2024 2025", Intent: "growth query"},
		{Query: task + " statistics 2024 2025 site:statista.com", Intent: "authoritative source query"},
	}
}
