// Package diagnosis asks an external reasoning service to explain
// detected issues. Diagnosis is best-effort: every failure path returns
// a result the dispatcher can still alert on.
package diagnosis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

// Reasoner is the opaque text-in/text-out reasoning collaborator.
type Reasoner interface {
	// Complete sends one prompt and returns the raw response text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// LogFetcher supplies a bounded log tail for the affected container.
// The cluster source implements it.
type LogFetcher interface {
	Logs(ctx context.Context, namespace, pod, container string, tailLines int64) (string, error)
}

// EnricherOptions configures the Enricher.
type EnricherOptions struct {
	// Timeout bounds each reasoning request independently of the poll
	// cycle.
	Timeout time.Duration

	// LogTailLines bounds how much log context is sent.
	LogTailLines int64

	// MaxRetries is how many times a transient failure is retried.
	// The dispatch contract allows at most one.
	MaxRetries int
}

// DefaultEnricherOptions returns sensible defaults.
func DefaultEnricherOptions() EnricherOptions {
	return EnricherOptions{
		Timeout:      30 * time.Second,
		LogTailLines: 100,
		MaxRetries:   1,
	}
}

// Enricher builds diagnosis context for alert-eligible issues and
// queries the reasoner.
type Enricher struct {
	logger   *zap.Logger
	reasoner Reasoner
	opts     EnricherOptions
}

// New builds an Enricher.
func New(reasoner Reasoner, logger *zap.Logger, opts EnricherOptions) *Enricher {
	return &Enricher{
		logger:   logger.Named("diagnosis"),
		reasoner: reasoner,
		opts:     opts,
	}
}

// Enrich requests a diagnosis for one issue. The returned result always
// allows the alert to proceed: on timeout or failure Diagnosis is empty
// and Err records why. Log fetching is itself best-effort; a missing
// tail just shrinks the prompt.
func (e *Enricher) Enrich(ctx context.Context, issue types.Issue, logs LogFetcher) types.DiagnosisResult {
	logTail := ""
	if logs != nil && issue.Container != "" {
		tail, err := logs.Logs(ctx, issue.Namespace, issue.Pod, issue.Container, e.opts.LogTailLines)
		if err != nil {
			e.logger.Debug("Log tail unavailable",
				zap.String("key", issue.Key().String()),
				zap.Error(err),
			)
		} else {
			logTail = tail
		}
	}

	prompt := BuildPrompt(issue, logTail)

	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			e.logger.Debug("Retrying diagnosis request",
				zap.String("key", issue.Key().String()),
				zap.Error(lastErr),
			)
		}

		reqCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		text, err := e.reasoner.Complete(reqCtx, prompt)
		cancel()

		if err == nil {
			diagnosis, recommendation := ParseResponse(text)
			return types.DiagnosisResult{Diagnosis: diagnosis, Recommendation: recommendation}
		}
		lastErr = err

		// A well-formed error response is final; only transport-level
		// failures get the single retry.
		if !types.Retryable(err) || ctx.Err() != nil {
			break
		}
	}

	e.logger.Warn("Diagnosis unavailable, alerting on evidence alone",
		zap.String("key", issue.Key().String()),
		zap.Error(lastErr),
	)
	return types.DiagnosisResult{Err: lastErr}
}

// BuildPrompt renders the reasoning prompt from an issue, its evidence
// and the log tail.
func BuildPrompt(issue types.Issue, logTail string) string {
	var b strings.Builder

	b.WriteString("As a Kubernetes expert, analyze this issue and provide a VERY CONCISE diagnosis and recommendations.\n\n")
	b.WriteString("ISSUE DETAILS:\n")
	fmt.Fprintf(&b, "- Cluster: %s\n", issue.Cluster)
	fmt.Fprintf(&b, "- Resource: Pod %q in namespace %q\n", issue.Pod, issue.Namespace)
	if issue.Container != "" {
		fmt.Fprintf(&b, "- Container: %s\n", issue.Container)
	}
	if issue.Owner.Name != "" {
		fmt.Fprintf(&b, "- Owner: %s/%s\n", issue.Owner.Kind, issue.Owner.Name)
	}
	fmt.Fprintf(&b, "- Issue type: %s\n", issue.Kind)
	fmt.Fprintf(&b, "- Description: %s\n", issue.Summary)

	ev := issue.Evidence
	if ev.Phase != "" {
		fmt.Fprintf(&b, "- Pod phase: %s\n", ev.Phase)
	}
	if ev.RestartCount > 0 {
		fmt.Fprintf(&b, "- Restart count: %d\n", ev.RestartCount)
	}
	if ev.ExitCode != 0 {
		fmt.Fprintf(&b, "- Exit code: %d\n", ev.ExitCode)
	}

	if len(ev.Events) > 0 {
		b.WriteString("\nEVENTS:\n")
		for _, event := range ev.Events {
			fmt.Fprintf(&b, "- %s: %s - %s (x%d)\n", event.Type, event.Reason, event.Message, event.Count)
		}
	}

	if logTail != "" {
		b.WriteString("\nLOGS (tail):\n```\n")
		b.WriteString(logTail)
		b.WriteString("\n```\n")
	}

	b.WriteString("\nFormat your response exactly like this:\n")
	b.WriteString("Diagnosis: [2-3 sentences explaining the root cause]\n\n")
	b.WriteString("Recommendations:\n")
	b.WriteString("- [First recommendation]\n")
	b.WriteString("- [Second recommendation]\n")
	b.WriteString("- [Third recommendation]\n")
	return b.String()
}

// ParseResponse splits the reasoner's text into diagnosis and
// recommendation sections. A response without the expected marker is
// treated entirely as diagnosis.
func ParseResponse(text string) (diagnosis, recommendation string) {
	parts := strings.SplitN(text, "Recommendations:", 2)
	diagnosis = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "Diagnosis:"))
	if len(parts) == 2 {
		recommendation = strings.TrimSpace(parts[1])
	}
	return diagnosis, recommendation
}
