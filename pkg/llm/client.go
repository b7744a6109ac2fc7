// Package llm adapts an OpenAI-compatible chat-completions endpoint to the
// one-call-per-message contract of the chat orchestrator: bounded history in,
// at most one tool call out.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/trempist/trempist/pkg/models"
)

// ErrBusy is returned when the endpoint is saturated, times out or keeps
// failing past the retry budget. Callers answer with the localized busy
// string.
var ErrBusy = errors.New("llm unavailable")

// ToolDefinition describes one callable function exposed to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema
}

// ToolCall is a structured invocation produced by the model.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// Reply is the model's answer: free text, a tool call, or both (the text is
// ignored when a tool call is present).
type Reply struct {
	Text     string
	ToolCall *ToolCall
}

// Config holds client construction parameters.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Retries     int
	MaxInFlight int
}

// Client issues chat-completions calls.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sem        chan struct{}
	logger     *slog.Logger
}

// NewClient creates an LLM client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 8
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		sem:        make(chan struct{}, cfg.MaxInFlight),
		logger:     slog.Default().With("component", "llm-client"),
	}
}

// Wire types for the chat-completions surface.

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type completionRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []toolSpec    `json:"tools,omitempty"`
	ToolChoice string        `json:"tool_choice,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete issues a single chat-completions call with bounded retry. history
// is already truncated by the caller; userText is the inbound message.
func (c *Client) Complete(ctx context.Context, systemPrompt string, history []models.ChatMessage, userText string, tools []ToolDefinition) (*Reply, error) {
	// Saturation returns busy immediately rather than queueing unboundedly.
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	default:
		return nil, fmt.Errorf("%w: too many concurrent requests", ErrBusy)
	}

	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	for _, h := range history {
		role := "user"
		if h.Role == models.HistoryRoleAssistant {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: h.Text})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	specs := make([]toolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, toolSpec{
			Type: "function",
			Function: functionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	req := completionRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Tools:    specs,
	}
	if len(specs) > 0 {
		req.ToolChoice = "auto"
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		reply, err := c.completeOnce(ctx, &req)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("completion attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrBusy, lastErr)
}

func (c *Client) completeOnce(ctx context.Context, payload *completionRequest) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, detail)
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}

	msg := parsed.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		return &Reply{
			ToolCall: &ToolCall{
				Name:      call.Function.Name,
				Arguments: json.RawMessage(call.Function.Arguments),
			},
		}, nil
	}

	return &Reply{Text: SanitizeReply(msg.Content)}, nil
}
