package agents

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

const profilesYAML = `- id: market-analyst
  name: Market Analyst
  prompt: Analyst prefix.
- id: tech-journalist
  name: Tech Journalist
  prompt: Journalist prefix.
`

func writeProfiles(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "agents.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profiles: %v", err)
	}
	return path
}

func TestResolveByIDAndName(t *testing.T) {
	path := writeProfiles(t, t.TempDir(), profilesYAML)
	store, err := NewStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	if prompt, ok := store.Resolve("", "market-analyst"); !ok || prompt != "Analyst prefix." {
		t.Fatalf("resolve by id failed: %q %v", prompt, ok)
	}
	if prompt, ok := store.Resolve("Tech Journalist", ""); !ok || prompt != "Journalist prefix." {
		t.Fatalf("resolve by name failed: %q %v", prompt, ok)
	}
	if _, ok := store.Resolve("nobody", "missing"); ok {
		t.Fatalf("unknown selector must not resolve")
	}
	if _, ok := store.Resolve("", ""); ok {
		t.Fatalf("empty selector must not resolve")
	}
}

func TestResolveIDTakesPrecedence(t *testing.T) {
	path := writeProfiles(t, t.TempDir(), profilesYAML)
	store, err := NewStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	prompt, ok := store.Resolve("Market Analyst", "tech-journalist")
	if !ok || prompt != "Journalist prefix." {
		t.Fatalf("id must win over name: %q %v", prompt, ok)
	}
}

func TestMissingFileYieldsEmptyStore(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	if err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}
	defer store.Close()
	if len(store.List()) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestHotReload(t *testing.T) {
	dir := t.TempDir()
	path := writeProfiles(t, dir, profilesYAML)
	store, err := NewStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	updated := profilesYAML + `- id: sec-researcher
  name: Security Researcher
  prompt: Security prefix.
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite profiles: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Resolve("", "sec-researcher"); ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("profile change was not picked up")
}

func TestListReturnsCopy(t *testing.T) {
	path := writeProfiles(t, t.TempDir(), profilesYAML)
	store, err := NewStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(list))
	}
	list[0].Prompt = "mutated"
	if prompt, _ := store.Resolve("", "market-analyst"); prompt != "Analyst prefix." {
		t.Fatalf("List must not expose internal state")
	}
}
