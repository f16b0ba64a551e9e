// Package cache provides the content-addressed response cache shared by all
// runs. Keys hash the meaning-relevant call parameters so identical requests
// replay without touching the network, within a run and across runs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Namespaces separate LLM responses from search results.
const (
	NamespaceLLM    = "llm"
	NamespaceSearch = "search"
)

// Store is the cache capability used by the orchestrator. Implementations
// must tolerate concurrent reads and last-writer-wins concurrent writes.
type Store interface {
	// Get returns the cached entry and true, or false when absent.
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	// Put writes the entry unconditionally, overwriting any previous value.
	Put(ctx context.Context, namespace, key string, value []byte) error
}

// Key hashes a canonical serialization of the given parameters. Map keys are
// serialized in sorted order, so the result is independent of insertion order.
func Key(params map[string]any) string {
	payload, err := json.Marshal(params)
	if err != nil {
		// Only non-serializable values can land here; params are built from
		// strings and numbers by the callers below.
		payload = []byte(fmt.Sprintf("%v", params))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// LLMKey derives the cache key for a chat call.
func LLMKey(system, prompt, model string, temperature float64, maxTokens int) string {
	return Key(map[string]any{
		"system":      system,
		"prompt":      prompt,
		"model":       model,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	})
}

// SearchKey derives the cache key for a search call.
func SearchKey(query string, limit int) string {
	return Key(map[string]any{
		"query": query,
		"limit": limit,
	})
}
