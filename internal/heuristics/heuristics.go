// Package heuristics holds task-classification rules that can override a
// premature sufficiency verdict from the reflection stage. Each heuristic
// fires at most once per run and only ever appends queries for a further
// iteration; existing evidence is never removed.
package heuristics

import (
	"fmt"
	"strings"

	"github.com/kestrel-ai/researchd/internal/models"
)

// Heuristic is the three-function contract every rule follows.
type Heuristic interface {
	// Name identifies the heuristic in fire-once bookkeeping and metrics.
	Name() string
	// Triggered reports whether the task falls under this rule.
	Triggered(task string) bool
	// Covered reports whether the gathered sources already satisfy the rule.
	Covered(sources []models.Source) bool
	// FallbackQueries returns the supplementary queries to inject.
	FallbackQueries(task string) []models.PlanQuery
}

// Defaults returns the built-in heuristics in evaluation order.
func Defaults() []Heuristic {
	return []Heuristic{
		StorageFocus{},
		GrowthRate{},
	}
}

// GrowthRate fires when the task asks for growth or year-over-year figures
// and no source mentions those terms.
type GrowthRate struct{}

func (GrowthRate) Name() string { return "growth_rate" }

func (GrowthRate) Triggered(task string) bool {
	lowered := strings.ToLower(task)
	return strings.Contains(lowered, "growth") ||
		strings.Contains(lowered, "year-over-year") ||
		strings.Contains(lowered, "yoy")
}

func (GrowthRate) Covered(sources []models.Source) bool {
	keywords := []string{"growth", "year-over-year", "yoy"}
	for _, src := range sources {
		title := strings.ToLower(src.Title)
		location := strings.ToLower(src.Location)
		for _, k := range keywords {
			if strings.Contains(title, k) || strings.Contains(location, k) {
				return true
			}
		}
	}
	return false
}

func (GrowthRate) FallbackQueries(task string) []models.PlanQuery {
	return []models.PlanQuery{
		{
			Query:  fmt.Sprintf("%s year-over-year growth rate 2024 2025 site:statista.com OR site:gartner.com OR site:idc.com", task),
			Intent: "find YoY growth rate data",
		},
		{
			Query:  "Dropbox Google Drive OneDrive growth rate 2024 YoY site:investors.dropbox.com OR site:microsoft.com OR site:alphabet.com",
			Intent: "find provider-specific growth figures",
		},
		{
			Query:  "cloud storage market growth rate by provider 2024 2025 site:statista.com OR site:gartner.com OR site:idc.com",
			Intent: "find market growth data by vendor",
		},
		{
			Query:  "file sharing software market share by vendor 2024 site:statista.com",
			Intent: "find vendor share data when storage share data is sparse",
		},
		{
			Query:  "Dropbox revenue growth 2024 year-over-year investor relations",
			Intent: "use IR data as a proxy if market-share YoY is unavailable",
		},
	}
}

// StorageFocus fires on cloud-storage phrasing and is uncovered when every
// current source is a generic infrastructure market-share source lacking the
// storage sub-segment markers.
type StorageFocus struct{}

func (StorageFocus) Name() string { return "storage_focus" }

func (StorageFocus) Triggered(task string) bool {
	lowered := strings.ToLower(task)
	return strings.Contains(lowered, "cloud storage") ||
		strings.Contains(lowered, "file sharing") ||
		strings.Contains(lowered, "storage providers")
}

func (StorageFocus) Covered(sources []models.Source) bool {
	if len(sources) == 0 {
		return false
	}
	for _, src := range sources {
		if !infraMarketSource(src) {
			return true
		}
	}
	return false
}

func infraMarketSource(src models.Source) bool {
	text := strings.ToLower(src.Title + " " + src.Location)
	if !strings.Contains(text, "market share") {
		return false
	}
	markers := []string{
		"cloud infrastructure",
		"iaas",
		"aws",
		"azure",
		"google cloud",
		"cloud platform",
	}
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func (StorageFocus) FallbackQueries(string) []models.PlanQuery {
	return []models.PlanQuery{
		{
			Query:  "cloud storage market share consumer personal 2024 2025",
			Intent: "focus on consumer/personal cloud storage market share",
		},
		{
			Query:  "file sharing software market share by vendor 2024 site:statista.com",
			Intent: "use file-sharing vendor shares as proxy",
		},
		{
			Query:  "Dropbox Google Drive OneDrive market share personal cloud storage",
			Intent: "target provider-specific storage market share",
		},
	}
}
