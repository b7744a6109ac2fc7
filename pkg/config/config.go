// Package config loads application configuration from environment variables
// with validation and defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime knob outside the database layer (which loads its
// own connection config).
type Config struct {
	HTTPPort string

	// LLM integration
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMTimeout     time.Duration
	LLMRetries     int
	LLMMaxInFlight int

	// Chat provider (WhatsApp Cloud API style)
	ChatProviderPhoneID string
	ChatProviderToken   string
	ChatProviderBaseURL string
	WebhookVerifyToken  string
	WebhookAppSecret    string

	// Routing engine
	RoutingBaseURL   string
	RouteTimeout     time.Duration
	RouteMaxInFlight int

	// Admin surface
	AdminToken string

	// Conversation windows
	AIContextMessages int
	MaxChatHistory    int
}

// LoadFromEnv reads configuration from the environment.
func LoadFromEnv() (*Config, error) {
	llmTimeoutS, err := strconv.Atoi(getEnvOrDefault("LLM_TIMEOUT_S", "45"))
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TIMEOUT_S: %w", err)
	}
	routeTimeoutS, err := strconv.Atoi(getEnvOrDefault("ROUTE_TIMEOUT_S", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROUTE_TIMEOUT_S: %w", err)
	}
	llmRetries, err := strconv.Atoi(getEnvOrDefault("LLM_RETRY", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_RETRY: %w", err)
	}
	contextMessages, err := strconv.Atoi(getEnvOrDefault("AI_CONTEXT_MESSAGES", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid AI_CONTEXT_MESSAGES: %w", err)
	}
	maxHistory, err := strconv.Atoi(getEnvOrDefault("MAX_CHAT_HISTORY", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_CHAT_HISTORY: %w", err)
	}
	llmInFlight, _ := strconv.Atoi(getEnvOrDefault("LLM_MAX_IN_FLIGHT", "8"))
	routeInFlight, _ := strconv.Atoi(getEnvOrDefault("ROUTE_MAX_IN_FLIGHT", "4"))

	cfg := &Config{
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMBaseURL:     getEnvOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:       getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:     time.Duration(llmTimeoutS) * time.Second,
		LLMRetries:     llmRetries,
		LLMMaxInFlight: llmInFlight,

		ChatProviderPhoneID: os.Getenv("CHAT_PROVIDER_PHONE_ID"),
		ChatProviderToken:   os.Getenv("CHAT_PROVIDER_TOKEN"),
		ChatProviderBaseURL: getEnvOrDefault("CHAT_PROVIDER_BASE_URL", "https://graph.facebook.com/v19.0"),
		WebhookVerifyToken:  os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		WebhookAppSecret:    os.Getenv("WEBHOOK_APP_SECRET"),

		RoutingBaseURL:   getEnvOrDefault("ROUTING_BASE_URL", "https://router.project-osrm.org"),
		RouteTimeout:     time.Duration(routeTimeoutS) * time.Second,
		RouteMaxInFlight: routeInFlight,

		AdminToken: os.Getenv("ADMIN_TOKEN"),

		AIContextMessages: contextMessages,
		MaxChatHistory:    maxHistory,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Credentials are not required here
// so that sandbox-only deployments can run without the live chat provider.
func (c *Config) Validate() error {
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_S must be positive")
	}
	if c.RouteTimeout <= 0 {
		return fmt.Errorf("ROUTE_TIMEOUT_S must be positive")
	}
	if c.LLMRetries < 0 {
		return fmt.Errorf("LLM_RETRY cannot be negative")
	}
	if c.AIContextMessages < 1 {
		return fmt.Errorf("AI_CONTEXT_MESSAGES must be at least 1")
	}
	if c.MaxChatHistory < c.AIContextMessages {
		return fmt.Errorf("MAX_CHAT_HISTORY (%d) cannot be below AI_CONTEXT_MESSAGES (%d)",
			c.MaxChatHistory, c.AIContextMessages)
	}
	if c.LLMMaxInFlight < 1 || c.RouteMaxInFlight < 1 {
		return fmt.Errorf("in-flight limits must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
