package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LLMConfig configures the chat-completions HTTP backend.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds the HTTP round trip. The orchestrator applies its own
	// deadline on top; this one guards against a wedged connection.
	Timeout time.Duration
}

// LLMBackend calls an OpenAI-compatible chat-completions endpoint to generate
// report content. Any provider exposing that surface works; the engine never
// branches on which one is behind the URL.
type LLMBackend struct {
	config LLMConfig
	client *http.Client
}

// NewLLMBackend creates a backend for the configured endpoint.
func NewLLMBackend(config LLMConfig) (*LLMBackend, error) {
	if config.BaseURL == "" {
		return nil, errors.New("llm backend requires a base URL")
	}

	if config.Model == "" {
		return nil, errors.New("llm backend requires a model")
	}

	if config.Timeout <= 0 {
		config.Timeout = 90 * time.Second
	}

	return &LLMBackend{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Research makes a single chat-completions call and classifies failures by
// HTTP status: 429 and 5xx are transient, other non-2xx are permanent.
func (b *LLMBackend) Research(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: b.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(req)},
		},
	})
	if err != nil {
		return "", NewPermanentError(fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", NewPermanentError(fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if b.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", NewTransientError(fmt.Errorf("llm request timed out: %w", err))
		}

		return "", NewTransientError(fmt.Errorf("llm request failed: %w", err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", NewTransientError(fmt.Errorf("failed to read llm response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("llm returned status %d: %s", resp.StatusCode, truncate(string(payload), 200))

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", NewTransientError(err)
		}

		return "", NewPermanentError(err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", NewTransientError(fmt.Errorf("failed to decode llm response: %w", err))
	}

	if parsed.Error != nil {
		return "", NewPermanentError(fmt.Errorf("llm error: %s", parsed.Error.Message))
	}

	if len(parsed.Choices) == 0 {
		return "", NewTransientError(errors.New("llm response has no choices"))
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

const systemPrompt = "You are a research analyst. Write a concise, well-structured " +
	"research report in plain text with short section headings. Cover recent, " +
	"relevant developments only."

func buildPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("Write a research report covering the following topics:\n")

	for _, topic := range req.Topics {
		sb.WriteString("- ")
		sb.WriteString(topic)
		sb.WriteString("\n")
	}

	if len(req.Keywords) > 0 {
		sb.WriteString("\nPay particular attention to: ")
		sb.WriteString(strings.Join(req.Keywords, ", "))
		sb.WriteString("\n")
	}

	if req.Window != "" {
		sb.WriteString("\nReporting window: ")
		sb.WriteString(req.Window)
		sb.WriteString("\n")
	}

	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max] + "..."
}
