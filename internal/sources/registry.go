// Package sources manages the evidence accumulated across loop iterations:
// location-keyed deduplication, domain-quality filtering, positional ID
// assignment, and budget-aware compaction of the formatted source list.
package sources

import (
	"fmt"
	"strings"

	"github.com/kestrel-ai/researchd/internal/models"
)

const noSourcesPlaceholder = "(no sources)"

// Registry owns the ordered source list for one run. Sources accumulate in
// discovery order; filtering and deduplication preserve that order so
// "most recently added" keeps its meaning for compaction.
type Registry struct {
	blockedDomains       []string
	authoritativeDomains []string
	list                 []models.Source
}

// NewRegistry builds an empty registry with the given domain lists.
func NewRegistry(blockedDomains, authoritativeDomains []string) *Registry {
	return &Registry{
		blockedDomains:       blockedDomains,
		authoritativeDomains: authoritativeDomains,
	}
}

// Add appends raw search results in discovery order.
func (r *Registry) Add(results []models.Source) {
	r.list = append(r.list, results...)
}

// Apply runs quality filtering then deduplication over the accumulated list,
// in place. Called after every search round.
func (r *Registry) Apply() {
	r.list = Dedupe(r.Filter(r.list))
}

// All returns the current source list.
func (r *Registry) All() []models.Source {
	return r.list
}

// Len returns the current source count.
func (r *Registry) Len() int {
	return len(r.list)
}

// Dedupe keeps the first occurrence of each distinct location, preserving
// order, and drops sources with an empty location. Applying it twice yields
// the same result as applying it once.
func Dedupe(list []models.Source) []models.Source {
	seen := make(map[string]struct{}, len(list))
	deduped := make([]models.Source, 0, len(list))
	for _, src := range list {
		if src.Location == "" {
			continue
		}
		if _, ok := seen[src.Location]; ok {
			continue
		}
		seen[src.Location] = struct{}{}
		deduped = append(deduped, src)
	}
	return deduped
}

// Filter drops sources whose location contains a blocked-domain substring.
func (r *Registry) Filter(list []models.Source) []models.Source {
	filtered := make([]models.Source, 0, len(list))
	for _, src := range list {
		location := strings.ToLower(src.Location)
		blocked := false
		for _, domain := range r.blockedDomains {
			if strings.Contains(location, domain) {
				blocked = true
				break
			}
		}
		if !blocked {
			filtered = append(filtered, src)
		}
	}
	return filtered
}

// HasAuthoritative reports whether any source location matches a configured
// authoritative domain.
func (r *Registry) HasAuthoritative() bool {
	for _, src := range r.list {
		location := strings.ToLower(src.Location)
		for _, domain := range r.authoritativeDomains {
			if strings.Contains(location, domain) {
				return true
			}
		}
	}
	return false
}

// EstimateTokens is the fixed cost heuristic: roughly four characters per
// token, never below one.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// compact keeps only the keepRecent most-recently-added sources and reports
// how many older ones were dropped.
func compact(list []models.Source, keepRecent int) ([]models.Source, int) {
	if len(list) <= keepRecent {
		return list, 0
	}
	omitted := len(list) - keepRecent
	return list[len(list)-keepRecent:], omitted
}

// formatForReflection renders one line per source for the reflection prompt.
func formatForReflection(list []models.Source) string {
	if len(list) == 0 {
		return noSourcesPlaceholder
	}
	lines := make([]string, 0, len(list))
	for _, src := range list {
		lines = append(lines, fmt.Sprintf("- %s (%s)", src.Title, src.Location))
	}
	return strings.Join(lines, "\n")
}

// IdentifiedSource pairs a source with its positional citation tag. Tags are
// only valid for the presentation that produced them.
type IdentifiedSource struct {
	ID     string
	Source models.Source
}

// AssignIDs tags each source positionally: "[1]", "[2]", ...
func AssignIDs(list []models.Source) []IdentifiedSource {
	assigned := make([]IdentifiedSource, 0, len(list))
	for i, src := range list {
		assigned = append(assigned, IdentifiedSource{
			ID:     fmt.Sprintf("[%d]", i+1),
			Source: src,
		})
	}
	return assigned
}

// IDMap builds the citation-validation map for a presentation.
func IDMap(list []models.Source) map[string]models.Source {
	idMap := make(map[string]models.Source, len(list))
	for _, entry := range AssignIDs(list) {
		idMap[entry.ID] = entry.Source
	}
	return idMap
}

// formatForSynthesis renders the ID-tagged source blocks for the synthesis
// prompt.
func formatForSynthesis(list []models.Source) string {
	if len(list) == 0 {
		return noSourcesPlaceholder
	}
	blocks := make([]string, 0, len(list))
	for _, entry := range AssignIDs(list) {
		blocks = append(blocks, fmt.Sprintf("%s %s\n%s\n%s\n",
			entry.ID, entry.Source.Title, entry.Source.Type, entry.Source.Location))
	}
	return strings.Join(blocks, "\n")
}

func omittedHeader(omitted int) string {
	return fmt.Sprintf("(omitted %d older sources due to context budget)\n", omitted)
}

// Presentation is a formatted source list ready for a prompt, together with
// the exact sources it shows and the compaction bookkeeping.
type Presentation struct {
	Shown     []models.Source
	Text      string
	Compacted bool
	Omitted   int
}

// ReflectionView builds the source text for the reflection prompt, compacting
// when the token estimate exceeds the budget. Compaction never fails: with
// zero sources remaining the placeholder is emitted under the header.
func (r *Registry) ReflectionView(tokenBudget, keepRecent int) Presentation {
	fullText := formatForReflection(r.list)
	if EstimateTokens(fullText) <= tokenBudget {
		return Presentation{Shown: r.list, Text: fullText}
	}

	compacted, omitted := compact(r.list, keepRecent)
	text := formatForReflection(compacted)
	return Presentation{
		Shown:     compacted,
		Text:      omittedHeader(omitted) + text,
		Compacted: true,
		Omitted:   omitted,
	}
}

// SynthesisView builds the ID-tagged source text for the synthesis prompt.
// Compaction applies when forced or when the estimate exceeds the budget; it
// is computed independently of any reflection-time compaction because the
// formatted representations differ.
func (r *Registry) SynthesisView(tokenBudget, keepRecent int, force bool) Presentation {
	fullText := formatForSynthesis(r.list)
	if !force && EstimateTokens(fullText) <= tokenBudget {
		return Presentation{Shown: r.list, Text: fullText}
	}

	compacted, omitted := compact(r.list, keepRecent)
	text := formatForSynthesis(compacted)
	return Presentation{
		Shown:     compacted,
		Text:      omittedHeader(omitted) + text,
		Compacted: true,
		Omitted:   omitted,
	}
}
