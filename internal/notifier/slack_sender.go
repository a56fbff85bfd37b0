package notifier

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
	defaultSlackEndpoint = "https://slack.com/api/chat.postMessage"
	defaultSlackTimeout  = 10 * time.Second
	maxSendRetries       = 2
	baseBackoff          = time.Second
	userAgent            = "k8s-ai-monitor/v1"
)

// SlackSenderConfig holds the configuration for creating a SlackSender.
type SlackSenderConfig struct {
	Token       string
	Channel     string
	MinSeverity string
	Endpoint    string // defaults to the public Slack API
	Timeout     time.Duration
}

// SlackSender implements the Sender interface for Slack chat.postMessage.
type SlackSender struct {
	httpClient  *http.Client
	logger      *zap.Logger
	endpoint    string
	token       string
	channel     string
	minSeverity types.Severity
}

// NewSlackSender creates a SlackSender.
func NewSlackSender(cfg SlackSenderConfig, logger *zap.Logger) (*SlackSender, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("slack token is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack channel is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultSlackEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultSlackTimeout
	}
	minSev := types.Severity(cfg.MinSeverity)
	if minSev == "" {
		minSev = types.SeverityLow
	}

	return &SlackSender{
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.Named("slack-sender"),
		endpoint:    endpoint,
		token:       cfg.Token,
		channel:     cfg.Channel,
		minSeverity: minSev,
	}, nil
}

// Name implements Sender.
func (s *SlackSender) Name() string { return "slack" }

// ShouldSend implements Sender.
func (s *SlackSender) ShouldSend(severity types.Severity) bool {
	return types.SeverityRank(severity) >= types.SeverityRank(s.minSeverity)
}

// postMessageRequest is the chat.postMessage payload.
type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// postMessageResponse is the subset of Slack's envelope we inspect.
type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Send implements Sender with bounded exponential backoff on transient
// transport failures. A well-formed Slack error envelope is final.
func (s *SlackSender) Send(ctx context.Context, alert types.Alert) error {
	body, err := json.Marshal(postMessageRequest{
		Channel: s.channel,
		Text:    FormatAlert(alert),
	})
	if err != nil {
		return types.Classify(types.ErrMalformed, fmt.Errorf("marshal slack payload: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= maxSendRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s.
			backoff := baseBackoff << (attempt - 1)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return types.Classify(types.ErrTransient, fmt.Errorf("cancelled during backoff: %w", ctx.Err()))
			}
			alertSendTotal.WithLabelValues(s.Name(), "retry").Inc()
		}

		lastErr = s.doPost(ctx, body)
		if lastErr == nil {
			alertSendTotal.WithLabelValues(s.Name(), "success").Inc()
			return nil
		}
		if !types.Retryable(lastErr) {
			break
		}
		s.logger.Debug("Slack send transient failure, will retry",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	alertSendTotal.WithLabelValues(s.Name(), "error").Inc()
	return fmt.Errorf("slack send failed after %d attempts: %w", maxSendRetries+1, lastErr)
}

// doPost executes a single chat.postMessage request.
func (s *SlackSender) doPost(ctx context.Context, body []byte) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return types.Classify(types.ErrMalformed, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		slackSendDuration.WithLabelValues("error").Observe(duration)
		return types.Classify(types.ErrTransient, fmt.Errorf("slack request: %w", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		slackSendDuration.WithLabelValues("error").Observe(duration)
		return types.Classify(types.ErrRateLimited, fmt.Errorf("slack returned HTTP 429"))
	case resp.StatusCode >= 500:
		slackSendDuration.WithLabelValues("error").Observe(duration)
		return types.Classify(types.ErrTransient, fmt.Errorf("slack returned HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		slackSendDuration.WithLabelValues("error").Observe(duration)
		return types.Classify(types.ErrMalformed, fmt.Errorf("slack returned HTTP %d", resp.StatusCode))
	}

	var envelope postMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		slackSendDuration.WithLabelValues("error").Observe(duration)
		return types.Classify(types.ErrMalformed, fmt.Errorf("decode slack response: %w", err))
	}
	if !envelope.OK {
		slackSendDuration.WithLabelValues("error").Observe(duration)
		// Slack reports rate limiting inside a 200 envelope as well.
		if envelope.Error == "rate_limited" || envelope.Error == "ratelimited" {
			return types.Classify(types.ErrRateLimited, fmt.Errorf("slack rate limited"))
		}
		return types.Classify(types.ErrMalformed, fmt.Errorf("slack error: %s", envelope.Error))
	}

	slackSendDuration.WithLabelValues("success").Observe(duration)
	return nil
}
