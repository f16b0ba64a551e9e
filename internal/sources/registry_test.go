package sources

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/kestrel-ai/researchd/internal/models"
)

func src(title, location string) models.Source {
	return models.Source{Title: title, Type: "web", Location: location}
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	list := []models.Source{
		src("First", "https://a.example/x"),
		src("Second", "https://b.example/y"),
		src("Duplicate of first", "https://a.example/x"),
		src("No location", ""),
	}
	got := Dedupe(list)
	want := []models.Source{
		src("First", "https://a.example/x"),
		src("Second", "https://b.example/y"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected dedupe result: %+v", got)
	}
}

func TestDedupeIdempotent(t *testing.T) {
	list := []models.Source{
		src("A", "https://a.example"),
		src("B", "https://b.example"),
		src("A again", "https://a.example"),
	}
	once := Dedupe(list)
	twice := Dedupe(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("dedupe not idempotent: %+v vs %+v", once, twice)
	}
	seen := make(map[string]bool)
	for _, s := range once {
		if seen[s.Location] {
			t.Fatalf("duplicate location survived dedupe: %s", s.Location)
		}
		seen[s.Location] = true
	}
}

func TestFilterDropsBlockedDomains(t *testing.T) {
	r := NewRegistry([]string{"piechartmaker.com", "sqmagazine.co.uk"}, nil)
	list := []models.Source{
		src("Good", "https://statista.com/report"),
		src("Blocked", "https://piechartmaker.com/chart"),
		src("Blocked, mixed case", "https://SQMagazine.co.uk/post"),
	}
	got := r.Filter(list)
	if len(got) != 1 || got[0].Location != "https://statista.com/report" {
		t.Fatalf("unexpected filter result: %+v", got)
	}
}

func TestApplyPreservesDiscoveryOrder(t *testing.T) {
	r := NewRegistry([]string{"aag-it.com"}, nil)
	r.Add([]models.Source{
		src("1", "https://one.example"),
		src("blocked", "https://aag-it.com/page"),
		src("2", "https://two.example"),
		src("dup", "https://one.example"),
		src("3", "https://three.example"),
	})
	r.Apply()

	var locations []string
	for _, s := range r.All() {
		locations = append(locations, s.Location)
	}
	want := []string{"https://one.example", "https://two.example", "https://three.example"}
	if !reflect.DeepEqual(locations, want) {
		t.Fatalf("order not preserved through filter+dedupe: %v", locations)
	}
}

func TestHasAuthoritative(t *testing.T) {
	r := NewRegistry(nil, []string{"statista.com", "gartner.com"})
	r.Add([]models.Source{src("Blog", "https://random.blog/post")})
	if r.HasAuthoritative() {
		t.Fatalf("no authoritative source expected")
	}
	r.Add([]models.Source{src("Report", "https://www.statista.com/report")})
	if !r.HasAuthoritative() {
		t.Fatalf("statista.com should count as authoritative")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 1 {
		t.Fatalf("empty text should cost 1 token, got %d", got)
	}
	if got := EstimateTokens(strings.Repeat("a", 400)); got != 100 {
		t.Fatalf("expected 100 tokens for 400 chars, got %d", got)
	}
}

func TestReflectionViewWithinBudgetIsUntouched(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Add([]models.Source{src("A", "https://a.example"), src("B", "https://b.example")})

	view := r.ReflectionView(120000, 20)
	if view.Compacted || view.Omitted != 0 {
		t.Fatalf("no compaction expected within budget: %+v", view)
	}
	if len(view.Shown) != 2 {
		t.Fatalf("expected all sources shown, got %d", len(view.Shown))
	}
	if strings.Contains(view.Text, "omitted") {
		t.Fatalf("unexpected omission header: %q", view.Text)
	}
}

func TestReflectionViewCompactsOverBudget(t *testing.T) {
	r := NewRegistry(nil, nil)
	var added []models.Source
	for i := 1; i <= 10; i++ {
		added = append(added, src(fmt.Sprintf("Source %d", i), fmt.Sprintf("https://example.com/%d", i)))
	}
	r.Add(added)

	// Budget of 1 token forces compaction; keep the 4 most recent.
	view := r.ReflectionView(1, 4)
	if !view.Compacted || view.Omitted != 6 {
		t.Fatalf("expected 6 omitted, got %+v", view)
	}
	if len(view.Shown) != 4 {
		t.Fatalf("expected 4 shown, got %d", len(view.Shown))
	}
	if view.Shown[0].Title != "Source 7" || view.Shown[3].Title != "Source 10" {
		t.Fatalf("compaction should keep the most recent sources: %+v", view.Shown)
	}
	if !strings.HasPrefix(view.Text, "(omitted 6 older sources due to context budget)\n") {
		t.Fatalf("missing omission header: %q", view.Text)
	}
}

func TestReflectionViewEmptyRegistry(t *testing.T) {
	r := NewRegistry(nil, nil)
	view := r.ReflectionView(120000, 20)
	if view.Text != "(no sources)" {
		t.Fatalf("expected placeholder, got %q", view.Text)
	}
}

func TestSynthesisViewAssignsPositionalIDs(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Add([]models.Source{src("First", "https://a.example"), src("Second", "https://b.example")})

	view := r.SynthesisView(120000, 20, false)
	if !strings.Contains(view.Text, "[1] First") || !strings.Contains(view.Text, "[2] Second") {
		t.Fatalf("positional ids missing from synthesis text: %q", view.Text)
	}
}

func TestSynthesisViewForcedCompaction(t *testing.T) {
	r := NewRegistry(nil, nil)
	for i := 1; i <= 6; i++ {
		r.Add([]models.Source{src(fmt.Sprintf("S%d", i), fmt.Sprintf("https://example.com/%d", i))})
	}

	view := r.SynthesisView(120000, 4, true)
	if !view.Compacted || view.Omitted != 2 {
		t.Fatalf("forced compaction expected, got %+v", view)
	}
	// IDs are re-assigned against the compacted list, starting at [1].
	if !strings.Contains(view.Text, "[1] S3") {
		t.Fatalf("ids must be positional within the shown list: %q", view.Text)
	}
}

func TestIDMapMatchesAssignment(t *testing.T) {
	list := []models.Source{src("A", "https://a.example"), src("B", "https://b.example")}
	m := IDMap(list)
	if len(m) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m))
	}
	if m["[1]"].Title != "A" || m["[2]"].Title != "B" {
		t.Fatalf("unexpected id map: %+v", m)
	}
}
