package notifier

import (
	"fmt"
	"strings"

	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

// severityEmoji maps severities to message markers.
func severityEmoji(s types.Severity) string {
	switch s {
	case types.SeverityHigh:
		return "🔴"
	case types.SeverityMedium:
		return "🟠"
	default:
		return "🟡"
	}
}

// transitionLabel renders the alert's lifecycle marker.
func transitionLabel(t types.Transition) string {
	switch t {
	case types.TransitionNew:
		return "NEW"
	case types.TransitionOngoingEligible:
		return "STILL FAILING"
	case types.TransitionResolved:
		return "RESOLVED"
	default:
		return string(t)
	}
}

// FormatAlert renders the full alert message for chat channels.
func FormatAlert(alert types.Alert) string {
	issue := alert.Issue
	var b strings.Builder

	if alert.Transition == types.TransitionResolved {
		fmt.Fprintf(&b, "✅ [RESOLVED] %s on %s/%s/%s", issue.Kind, issue.Cluster, issue.Namespace, issue.Pod)
		if issue.Container != "" {
			fmt.Fprintf(&b, " (container %s)", issue.Container)
		}
		fmt.Fprintf(&b, "\n%s is no longer observed.", issue.Summary)
		return b.String()
	}

	fmt.Fprintf(&b, "%s [%s] %s (severity %s)\n",
		severityEmoji(issue.Severity), transitionLabel(alert.Transition), issue.Kind, issue.Severity)
	fmt.Fprintf(&b, "*Cluster:* %s  *Namespace:* %s  *Pod:* %s", issue.Cluster, issue.Namespace, issue.Pod)
	if issue.Container != "" {
		fmt.Fprintf(&b, "  *Container:* %s", issue.Container)
	}
	if issue.Owner.Name != "" {
		fmt.Fprintf(&b, "  *Owner:* %s/%s", issue.Owner.Kind, issue.Owner.Name)
	}
	fmt.Fprintf(&b, "\n%s", issue.Summary)

	if events := issue.Evidence.Events; len(events) > 0 {
		b.WriteString("\n\n*Recent events:*")
		for _, ev := range events {
			fmt.Fprintf(&b, "\n• %s: %s", ev.Reason, ev.Message)
			if ev.Count > 1 {
				fmt.Fprintf(&b, " (x%d)", ev.Count)
			}
		}
	}

	if alert.Diagnosis.Diagnosis != "" {
		fmt.Fprintf(&b, "\n\n*Diagnosis:* %s", alert.Diagnosis.Diagnosis)
	}
	if alert.Diagnosis.Recommendation != "" {
		fmt.Fprintf(&b, "\n\n*Recommendations:*\n%s", alert.Diagnosis.Recommendation)
	}
	if alert.Diagnosis.Err != nil {
		b.WriteString("\n\n_Diagnosis unavailable; review evidence above._")
	}
	return b.String()
}
