// Package citations cross-checks model-declared citations against the source
// presentation that was actually shown at synthesis time.
package citations

import (
	"github.com/kestrel-ai/researchd/internal/models"
)

// Validate resolves each citation against the id→source map of the synthesis
// presentation. Citations with unknown ids are dropped and reported; among
// the valid ones, later citations that resolve to an already-accepted
// location are dropped silently. Accepted citations carry the canonical
// title/type/location from the map, not whatever the model echoed.
func Validate(declared []models.Citation, idMap map[string]models.Source) (valid []models.Source, invalidIDs []string) {
	valid = []models.Source{}
	seenLocations := make(map[string]struct{})
	for _, citation := range declared {
		if citation.ID == "" {
			continue
		}
		entry, ok := idMap[citation.ID]
		if !ok {
			invalidIDs = append(invalidIDs, citation.ID)
			continue
		}
		if entry.Location != "" {
			if _, dup := seenLocations[entry.Location]; dup {
				continue
			}
			seenLocations[entry.Location] = struct{}{}
		}
		valid = append(valid, entry)
	}
	return valid, invalidIDs
}
