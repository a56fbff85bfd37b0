package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

const (
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	maxTokens        = 1024
	temperature      = 0.1
	userAgent        = "k8s-ai-monitor/v1"
)

// ClaudeConfig configures the Anthropic messages API client.
type ClaudeConfig struct {
	APIKey   string
	Model    string
	Endpoint string // defaults to the public API
	Timeout  time.Duration
}

// ClaudeReasoner implements Reasoner against the Anthropic messages API.
type ClaudeReasoner struct {
	httpClient *http.Client
	logger     *zap.Logger
	cfg        ClaudeConfig
}

// NewClaudeReasoner builds a ClaudeReasoner.
func NewClaudeReasoner(cfg ClaudeConfig, logger *zap.Logger) (*ClaudeReasoner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ClaudeReasoner{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("claude"),
		cfg:        cfg,
	}, nil
}

// messagesRequest is the wire format for POST /v1/messages.
type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse carries the subset of the response we read.
type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Complete implements Reasoner. Failures are classified so the enricher
// can tell a retryable transport hiccup from a final error response.
func (c *ClaudeReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", types.Classify(types.ErrMalformed, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", types.Classify(types.ErrMalformed, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("x-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", types.Classify(types.ErrTransient, fmt.Errorf("reasoning request: %w", err))
	}
	defer func() {
		// Drain and close body to reuse connections.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode)
	}

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", types.Classify(types.ErrMalformed, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Content) == 0 || parsed.Content[0].Text == "" {
		return "", types.Classify(types.ErrMalformed, fmt.Errorf("empty response content"))
	}

	c.logger.Debug("Diagnosis received",
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_chars", len(parsed.Content[0].Text)),
	)
	return parsed.Content[0].Text, nil
}

// classifyStatus maps HTTP error statuses onto the error taxonomy.
// 5xx is a transport-level transient failure; 429 is the collaborator's
// rate limit; any other 4xx is a well-formed, final error response.
func classifyStatus(status int) error {
	err := fmt.Errorf("reasoning service returned HTTP %d", status)
	switch {
	case status >= 500:
		return types.Classify(types.ErrTransient, err)
	case status == http.StatusTooManyRequests:
		return types.Classify(types.ErrRateLimited, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.Classify(types.ErrAuth, err)
	default:
		return types.Classify(types.ErrMalformed, err)
	}
}
