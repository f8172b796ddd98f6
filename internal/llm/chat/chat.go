// Package chat implements llm.Generator against OpenAI-compatible chat
// completion endpoints (OpenAI, Ollama, vLLM, llama.cpp server) and Ollama's
// native /api/generate endpoint.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/nadzzz/voiceloop/internal/config"
	"github.com/nadzzz/voiceloop/internal/llm"
)

// Generator sends prompts to a chat model.
type Generator struct {
	endpoint     string
	apiKey       string
	model        string
	systemPrompt string
	maxTokens    int
	temperature  float64
	historyTurns int
	client       *http.Client

	mu      sync.Mutex
	history []message
}

var _ llm.Generator = (*Generator)(nil)

// New creates a generator from config.
func New(cfg config.LLMConfig) *Generator {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Generator{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    maxTokens,
		temperature:  cfg.Temperature,
		historyTurns: cfg.HistoryTurns,
		client:       &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the backend identifier.
func (g *Generator) Name() string {
	if g.ollamaNative() {
		return "ollama"
	}
	return "chat"
}

func (g *Generator) ollamaNative() bool {
	return strings.HasSuffix(g.endpoint, "/api/generate")
}

// Generate sends prompt, with any retained history, and returns the reply.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("empty prompt")
	}

	body, err := g.requestBody(prompt)
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("llm failed (status %d): %s", resp.StatusCode, respBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading llm response: %w", err)
	}
	reply := strings.TrimSpace(extractContent(data))
	if reply == "" {
		return "", fmt.Errorf("empty response from llm")
	}

	g.remember(prompt, reply)
	slog.Debug("generation complete", "backend", g.Name(), "model", g.model, "reply_length", len(reply))
	return reply, nil
}

// Reset forgets the retained conversation history.
func (g *Generator) Reset() {
	g.mu.Lock()
	g.history = nil
	g.mu.Unlock()
}

// Close is a no-op; connections are per-request.
func (g *Generator) Close() error { return nil }

func (g *Generator) requestBody(prompt string) ([]byte, error) {
	g.mu.Lock()
	history := append([]message(nil), g.history...)
	g.mu.Unlock()

	if g.ollamaNative() {
		var sb strings.Builder
		for _, m := range history {
			sb.WriteString(m.Role + ": " + m.Content + "\n")
		}
		sb.WriteString(prompt)
		return json.Marshal(generateRequest{
			Model:   g.model,
			System:  g.systemPrompt,
			Prompt:  sb.String(),
			Stream:  false,
			Options: &generateOptions{NumPredict: g.maxTokens, Temperature: g.temperature},
		})
	}

	msgs := make([]message, 0, len(history)+2)
	if g.systemPrompt != "" {
		msgs = append(msgs, message{Role: "system", Content: g.systemPrompt})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, message{Role: "user", Content: prompt})
	return json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    msgs,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Stream:      false,
	})
}

func (g *Generator) remember(prompt, reply string) {
	if g.historyTurns <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = append(g.history,
		message{Role: "user", Content: prompt},
		message{Role: "assistant", Content: reply},
	)
	if keep := g.historyTurns * 2; len(g.history) > keep {
		g.history = append([]message(nil), g.history[len(g.history)-keep:]...)
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type generateRequest struct {
	Model   string           `json:"model"`
	System  string           `json:"system,omitempty"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

func extractContent(data []byte) string {
	// OpenAI-compatible format: {"choices": [{"message": {"content": "..."}}]}
	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	// Ollama format: {"response": "..."}
	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil && ollamaResp.Response != "" {
		return ollamaResp.Response
	}

	return ""
}
