// Package llm abstracts the model backend: given a system instruction and a
// message history, return text, optionally constrained to JSON.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ai/researchd/internal/config"
	"github.com/kestrel-ai/researchd/internal/tracing"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries the meaning-relevant parameters of one model call.
type ChatRequest struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	ForceJSON   bool
}

// ChatResult is the model's reply plus diagnostic metadata passed through to
// the caller and the trace.
type ChatResult struct {
	Content string         `json:"content"`
	Raw     map[string]any `json:"raw"`
}

// Client is the model capability used by the orchestrator. Model calls are
// never retried; a failure is a stage fatality for reflection and synthesis.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResult, error)
	Model() string
}

// OllamaClient talks to an Ollama-compatible /api/chat endpoint.
type OllamaClient struct {
	host       string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOllamaClient builds a client from configuration.
func NewOllamaClient(cfg config.LLM, logger *zap.Logger) *OllamaClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		host:       strings.TrimRight(cfg.Host, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Model returns the backend model identifier used in cache keys and metadata.
func (c *OllamaClient) Model() string {
	return c.model
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Chat implements Client.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	messages := make([]Message, 0, len(req.Messages)+1)
	messages = append(messages, Message{Role: "system", Content: req.System})
	messages = append(messages, req.Messages...)

	body := ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	if req.ForceJSON {
		body.Format = "json"
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return ChatResult{}, fmt.Errorf("marshal chat request: %w", err)
	}

	url := c.host + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return ChatResult{}, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ChatResult{}, fmt.Errorf("call model backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ChatResult{}, fmt.Errorf("model backend returned status %d", resp.StatusCode)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return ChatResult{}, fmt.Errorf("decode chat response: %w", err)
	}

	return ChatResult{
		Content: chatResp.Message.Content,
		Raw: map[string]any{
			"model":             chatResp.Model,
			"prompt_tokens":     chatResp.PromptEvalCount,
			"completion_tokens": chatResp.EvalCount,
		},
	}, nil
}
