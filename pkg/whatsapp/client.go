// Package whatsapp is a thin client for the WhatsApp Cloud API message
// endpoint.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client posts outbound text messages on behalf of one business phone id.
type Client struct {
	baseURL    string
	phoneID    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a WhatsApp Cloud API client.
// baseURL is the Graph API root (e.g. "https://graph.facebook.com/v19.0").
func NewClient(baseURL, phoneID, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		phoneID:    phoneID,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default().With("component", "whatsapp-client"),
	}
}

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// SendText delivers a plain-text message to a phone number.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(sendTextRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("send rejected with status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
