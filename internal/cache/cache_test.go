package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestKeyOrderIndependent(t *testing.T) {
	a := Key(map[string]any{"query": "cloud storage", "limit": 5})
	b := Key(map[string]any{"limit": 5, "query": "cloud storage"})
	if a != b {
		t.Fatalf("expected identical keys, got %s vs %s", a, b)
	}
}

func TestKeyDistinguishesInputs(t *testing.T) {
	a := SearchKey("cloud storage", 5)
	b := SearchKey("cloud storage", 6)
	if a == b {
		t.Fatalf("different limits must produce different keys")
	}
	c := SearchKey("cloud storage market", 5)
	if a == c {
		t.Fatalf("different queries must produce different keys")
	}
}

func TestLLMKeyDeterministic(t *testing.T) {
	a := LLMKey("sys", "prompt text", "llama3.1:latest", 0, 800)
	b := LLMKey("sys", "prompt text", "llama3.1:latest", 0, 800)
	if a != b {
		t.Fatalf("identical parameters must hash identically")
	}
	if a == LLMKey("sys", "prompt text", "llama3.1:latest", 0.2, 800) {
		t.Fatalf("temperature must be part of the key")
	}
}

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, zap.NewNop())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, NamespaceLLM, "k1"); err != nil || ok {
		t.Fatalf("expected miss on empty store, ok=%v err=%v", ok, err)
	}

	if err := store.Put(ctx, NamespaceLLM, "k1", []byte(`{"content":"hi"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	val, ok, err := store.Get(ctx, NamespaceLLM, "k1")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(val) != `{"content":"hi"}` {
		t.Fatalf("unexpected value: %s", val)
	}
}

func TestRedisStoreNamespacesIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, NamespaceLLM, "shared", []byte("llm")); err != nil {
		t.Fatalf("put llm: %v", err)
	}
	if _, ok, _ := store.Get(ctx, NamespaceSearch, "shared"); ok {
		t.Fatalf("namespaces must not share keys")
	}
}

func TestRedisStoreLastWriterWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, NamespaceSearch, "k", []byte("first")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, NamespaceSearch, "k", []byte("second")); err != nil {
		t.Fatalf("put: %v", err)
	}
	val, ok, err := store.Get(ctx, NamespaceSearch, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(val) != "second" {
		t.Fatalf("expected last write to win, got %s", val)
	}
}
