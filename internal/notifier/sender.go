package notifier

import (
	"context"

	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

// Sender is the interface for external notification channels (Slack,
// webhook, etc.). Each implementation handles its own transport retry
// policy and severity filtering.
type Sender interface {
	// Name returns the sender's identifier (e.g., "slack").
	Name() string

	// Send delivers one alert to the external channel. Implementations
	// retry transient transport failures within a bounded budget.
	Send(ctx context.Context, alert types.Alert) error

	// ShouldSend returns true if this sender should handle an alert at
	// the given severity.
	ShouldSend(severity types.Severity) bool
}
