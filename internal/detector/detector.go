// Package detector classifies pod snapshots into issues. Detection is
// pure: the same snapshot, events and clock always produce the same
// issue set, and nothing here touches the network.
package detector

import (
	"fmt"
	"time"

	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

// maxEvidenceEvents bounds how many events are attached to one issue.
const maxEvidenceEvents = 5

// waitingKinds maps container waiting reasons to issue kinds. Reasons
// outside this closed set are not issues on their own.
var waitingKinds = map[string]types.IssueKind{
	"CrashLoopBackOff":     types.IssueCrashLoopBackOff,
	"ImagePullBackOff":     types.IssueImagePullBackOff,
	"CreateContainerError": types.IssueCreateContainerError,
}

// Config tunes the detection rules. The zero value disables the
// restart and resource rules; PendingGrace must always be set.
type Config struct {
	// PendingGrace is how long a pod may sit in Pending before it is
	// flagged, suppressing false positives during normal startup.
	PendingGrace time.Duration

	// RestartThreshold is the restart count at which ExcessiveRestarts
	// fires (severity Low). Zero disables the rule.
	RestartThreshold int

	// RestartHighWater escalates ExcessiveRestarts to Medium.
	RestartHighWater int

	// ResourceThreshold is the used/limit fraction at which
	// ResourceConstraint fires. Zero disables the rule.
	ResourceThreshold float64
}

// Detector applies the issue taxonomy to pod snapshots.
type Detector struct {
	cfg Config
}

// New builds a Detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect maps one pod snapshot plus its recent events to zero or more
// issues. Rules are evaluated independently; a pod may yield several
// issues. Events are attached as evidence only; they never fabricate
// an issue on their own.
func (d *Detector) Detect(snap types.PodSnapshot, events []types.EventRecord, now time.Time) []types.Issue {
	var issues []types.Issue

	for _, c := range snap.Containers {
		issues = append(issues, d.detectContainer(snap, c)...)
	}
	if issue := d.detectPhase(snap, now); issue != nil {
		issues = append(issues, *issue)
	}

	evidence := evidenceEvents(events)
	for i := range issues {
		issues[i].Evidence.Events = evidence
	}
	return issues
}

// detectContainer evaluates the per-container rules.
func (d *Detector) detectContainer(snap types.PodSnapshot, c types.ContainerStatus) []types.Issue {
	var issues []types.Issue

	switch c.State {
	case types.ContainerWaiting:
		if kind, ok := waitingKinds[c.WaitingReason]; ok {
			issues = append(issues, d.newIssue(snap, c.Name, kind, types.SeverityHigh,
				fmt.Sprintf("container %s is waiting with reason %s", c.Name, c.WaitingReason),
				types.Evidence{Reason: c.WaitingReason, RestartCount: c.RestartCount}))
		}
	case types.ContainerTerminated:
		switch {
		case c.TerminatedReason == "OOMKilled":
			issues = append(issues, d.newIssue(snap, c.Name, types.IssueOOMKilled, types.SeverityHigh,
				fmt.Sprintf("container %s was killed for exceeding its memory limit", c.Name),
				types.Evidence{Reason: c.TerminatedReason, ExitCode: c.ExitCode, RestartCount: c.RestartCount}))
		case c.ExitCode != 0:
			issues = append(issues, d.newIssue(snap, c.Name, types.IssueTerminatedError, types.SeverityMedium,
				fmt.Sprintf("container %s terminated with exit code %d", c.Name, c.ExitCode),
				types.Evidence{Reason: c.TerminatedReason, ExitCode: c.ExitCode, RestartCount: c.RestartCount}))
		}
	}

	if d.cfg.RestartThreshold > 0 && int(c.RestartCount) >= d.cfg.RestartThreshold {
		severity := types.SeverityLow
		if d.cfg.RestartHighWater > 0 && int(c.RestartCount) >= d.cfg.RestartHighWater {
			severity = types.SeverityMedium
		}
		issues = append(issues, d.newIssue(snap, c.Name, types.IssueExcessiveRestarts, severity,
			fmt.Sprintf("container %s has restarted %d times", c.Name, c.RestartCount),
			types.Evidence{RestartCount: c.RestartCount}))
	}

	if issue := d.detectResources(snap, c); issue != nil {
		issues = append(issues, *issue)
	}
	return issues
}

// detectResources flags containers running at or above the configured
// fraction of their limits. Usage is frequently unavailable (no
// metrics source); that is an expected condition, not an error.
func (d *Detector) detectResources(snap types.PodSnapshot, c types.ContainerStatus) *types.Issue {
	if d.cfg.ResourceThreshold <= 0 || c.Resources == nil {
		return nil
	}
	r := c.Resources

	over := func(used, limit int64) bool {
		return limit > 0 && used > 0 && float64(used) >= d.cfg.ResourceThreshold*float64(limit)
	}

	var summary string
	switch {
	case over(r.MemoryUsedBytes, r.MemoryLimitBytes):
		summary = fmt.Sprintf("container %s memory usage %dB is at or above %.0f%% of its %dB limit",
			c.Name, r.MemoryUsedBytes, d.cfg.ResourceThreshold*100, r.MemoryLimitBytes)
	case over(r.CPUUsedMilli, r.CPULimitMilli):
		summary = fmt.Sprintf("container %s CPU usage %dm is at or above %.0f%% of its %dm limit",
			c.Name, r.CPUUsedMilli, d.cfg.ResourceThreshold*100, r.CPULimitMilli)
	default:
		return nil
	}

	issue := d.newIssue(snap, c.Name, types.IssueResourceConstraint, types.SeverityMedium, summary,
		types.Evidence{RestartCount: c.RestartCount})
	return &issue
}

// detectPhase evaluates the pod-level phase rule. Failed and Unknown
// are flagged immediately; Pending only past the grace period. A pod
// still initializing inside the grace window yields nothing.
func (d *Detector) detectPhase(snap types.PodSnapshot, now time.Time) *types.Issue {
	switch snap.Phase {
	case "Failed", "Unknown":
		// flagged below
	case "Pending":
		if snap.Created.IsZero() || now.Sub(snap.Created) < d.cfg.PendingGrace {
			return nil
		}
	default:
		return nil
	}

	summary := fmt.Sprintf("pod is in %s phase", snap.Phase)
	if snap.Phase == "Pending" {
		summary = fmt.Sprintf("pod has been Pending for more than %s", d.cfg.PendingGrace)
	}
	issue := d.newIssue(snap, "", types.IssuePodPhaseProblem, types.SeverityMedium, summary,
		types.Evidence{Phase: snap.Phase})
	return &issue
}

func (d *Detector) newIssue(snap types.PodSnapshot, container string, kind types.IssueKind,
	severity types.Severity, summary string, evidence types.Evidence) types.Issue {
	evidence.Phase = snap.Phase
	return types.Issue{
		Kind:      kind,
		Severity:  severity,
		Cluster:   snap.Cluster,
		Namespace: snap.Namespace,
		Pod:       snap.Pod,
		Container: container,
		Owner:     snap.Owner,
		Summary:   summary,
		Evidence:  evidence,
	}
}

// evidenceEvents keeps the most recent Warning events, newest first,
// bounded so alerts stay readable.
func evidenceEvents(events []types.EventRecord) []types.EventRecord {
	var warnings []types.EventRecord
	for _, ev := range events {
		if ev.Type == "Warning" {
			warnings = append(warnings, ev)
		}
	}
	// Newest first; input order from the API is oldest first.
	for i, j := 0, len(warnings)-1; i < j; i, j = i+1, j-1 {
		warnings[i], warnings[j] = warnings[j], warnings[i]
	}
	if len(warnings) > maxEvidenceEvents {
		warnings = warnings[:maxEvidenceEvents]
	}
	return warnings
}
