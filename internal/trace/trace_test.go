package trace

import (
	"testing"
)

func TestStartStageRecordsSpans(t *testing.T) {
	tr := New("abc123", "some task")

	done := tr.StartStage("plan")
	done()
	done = tr.StartStage("plan")
	done()

	spans := tr.Stages["plan"]
	if len(spans) != 2 {
		t.Fatalf("expected 2 plan spans, got %d", len(spans))
	}
	for i, span := range spans {
		if span.End.Before(span.Start) {
			t.Fatalf("span %d ends before it starts", i)
		}
	}
}

func TestCacheHitBookkeeping(t *testing.T) {
	tr := New("abc123", "some task")
	if tr.CacheHits.LLM == nil || tr.CacheHits.Search == nil {
		t.Fatalf("cache hit lists must be initialized empty, not nil")
	}

	tr.RecordLLMCacheHit("plan")
	tr.RecordLLMCacheHit("reflect")
	tr.RecordSearchCacheHit("cloud storage market share")

	if len(tr.CacheHits.LLM) != 2 || tr.CacheHits.LLM[1] != "reflect" {
		t.Fatalf("unexpected llm hits: %v", tr.CacheHits.LLM)
	}
	if len(tr.CacheHits.Search) != 1 {
		t.Fatalf("unexpected search hits: %v", tr.CacheHits.Search)
	}
}
