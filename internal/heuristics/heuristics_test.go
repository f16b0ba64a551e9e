package heuristics

import (
	"strings"
	"testing"

	"github.com/kestrel-ai/researchd/internal/models"
)

func TestDefaultsOrder(t *testing.T) {
	defaults := Defaults()
	if len(defaults) != 2 {
		t.Fatalf("expected 2 built-in heuristics, got %d", len(defaults))
	}
	if defaults[0].Name() != "storage_focus" || defaults[1].Name() != "growth_rate" {
		t.Fatalf("unexpected evaluation order: %s, %s", defaults[0].Name(), defaults[1].Name())
	}
}

func TestGrowthRateTriggered(t *testing.T) {
	h := GrowthRate{}
	for _, task := range []string{
		"cloud storage YoY growth",
		"What is the year-over-year change?",
		"market GROWTH by provider",
	} {
		if !h.Triggered(task) {
			t.Fatalf("expected trigger for %q", task)
		}
	}
	if h.Triggered("cloud storage market share 2024") {
		t.Fatalf("share-only task must not trigger growth heuristic")
	}
}

func TestGrowthRateCovered(t *testing.T) {
	h := GrowthRate{}
	uncovered := []models.Source{
		{Title: "Cloud storage market share 2024", Location: "https://statista.com/a"},
	}
	if h.Covered(uncovered) {
		t.Fatalf("share-only sources must not count as growth coverage")
	}
	covered := append(uncovered, models.Source{
		Title:    "Dropbox YoY revenue",
		Location: "https://investors.dropbox.com",
	})
	if !h.Covered(covered) {
		t.Fatalf("a source mentioning yoy should cover the heuristic")
	}
}

func TestGrowthRateFallbackQueriesEmbedTask(t *testing.T) {
	h := GrowthRate{}
	queries := h.FallbackQueries("cloud storage market")
	if len(queries) != 5 {
		t.Fatalf("expected 5 fallback queries, got %d", len(queries))
	}
	if !strings.Contains(queries[0].Query, "cloud storage market") {
		t.Fatalf("first fallback query should embed the task: %q", queries[0].Query)
	}
}

func TestStorageFocusTriggered(t *testing.T) {
	h := StorageFocus{}
	for _, task := range []string{
		"cloud storage providers market share",
		"file sharing vendors",
		"top Storage Providers 2025",
	} {
		if !h.Triggered(task) {
			t.Fatalf("expected trigger for %q", task)
		}
	}
	if h.Triggered("kubernetes adoption statistics") {
		t.Fatalf("unrelated task must not trigger storage heuristic")
	}
}

func TestStorageFocusCovered(t *testing.T) {
	h := StorageFocus{}

	if h.Covered(nil) {
		t.Fatalf("no sources means no coverage")
	}

	// Every source is a generic infrastructure market-share source: uncovered.
	infraOnly := []models.Source{
		{Title: "Cloud infrastructure market share Q4", Location: "https://example.com/iaas"},
		{Title: "AWS vs Azure market share", Location: "https://example.com/cloud"},
	}
	if h.Covered(infraOnly) {
		t.Fatalf("infrastructure-only sources must not count as storage coverage")
	}

	// One non-infrastructure source flips coverage.
	mixed := append(infraOnly, models.Source{
		Title:    "Personal cloud storage usage report",
		Location: "https://example.com/storage",
	})
	if !h.Covered(mixed) {
		t.Fatalf("a storage-specific source should cover the heuristic")
	}
}

func TestStorageFocusFallbackQueries(t *testing.T) {
	queries := StorageFocus{}.FallbackQueries("ignored")
	if len(queries) != 3 {
		t.Fatalf("expected 3 fallback queries, got %d", len(queries))
	}
	for _, q := range queries {
		if q.Query == "" || q.Intent == "" {
			t.Fatalf("fallback query missing text or intent: %+v", q)
		}
	}
}
