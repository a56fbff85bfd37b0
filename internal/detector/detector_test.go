package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		PendingGrace:      2 * time.Minute,
		RestartThreshold:  5,
		RestartHighWater:  10,
		ResourceThreshold: 0.9,
	}
}

func snapshot(phase string, containers ...types.ContainerStatus) types.PodSnapshot {
	return types.PodSnapshot{
		Cluster:    "prod",
		Namespace:  "default",
		Pod:        "web-0",
		Phase:      phase,
		Created:    now.Add(-10 * time.Minute),
		Containers: containers,
	}
}

func waiting(name, reason string, restarts int32) types.ContainerStatus {
	return types.ContainerStatus{Name: name, State: types.ContainerWaiting, WaitingReason: reason, RestartCount: restarts}
}

func terminated(name, reason string, exitCode, restarts int32) types.ContainerStatus {
	return types.ContainerStatus{Name: name, State: types.ContainerTerminated, TerminatedReason: reason, ExitCode: exitCode, RestartCount: restarts}
}

func kindsOf(issues []types.Issue) []types.IssueKind {
	kinds := make([]types.IssueKind, 0, len(issues))
	for _, i := range issues {
		kinds = append(kinds, i.Kind)
	}
	return kinds
}

func TestDetect_WaitingReasons(t *testing.T) {
	tests := []struct {
		reason string
		want   types.IssueKind
	}{
		{"CrashLoopBackOff", types.IssueCrashLoopBackOff},
		{"ImagePullBackOff", types.IssueImagePullBackOff},
		{"CreateContainerError", types.IssueCreateContainerError},
	}

	d := New(testConfig())
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			issues := d.Detect(snapshot("Running", waiting("app", tt.reason, 0)), nil, now)
			require.Len(t, issues, 1)
			assert.Equal(t, tt.want, issues[0].Kind)
			assert.Equal(t, types.SeverityHigh, issues[0].Severity)
			assert.Equal(t, "app", issues[0].Container)
			assert.Equal(t, tt.reason, issues[0].Evidence.Reason)
		})
	}
}

func TestDetect_UnknownWaitingReasonIgnored(t *testing.T) {
	d := New(testConfig())
	issues := d.Detect(snapshot("Running", waiting("app", "ContainerCreating", 0)), nil, now)
	assert.Empty(t, issues)
}

func TestDetect_OOMKilled(t *testing.T) {
	d := New(testConfig())
	issues := d.Detect(snapshot("Running", terminated("app", "OOMKilled", 137, 2)), nil, now)
	require.Len(t, issues, 1)
	assert.Equal(t, types.IssueOOMKilled, issues[0].Kind)
	assert.Equal(t, types.SeverityHigh, issues[0].Severity)
	// OOMKilled must not also produce TerminatedError for the same container.
	assert.NotContains(t, kindsOf(issues), types.IssueTerminatedError)
}

func TestDetect_TerminatedError(t *testing.T) {
	d := New(testConfig())
	issues := d.Detect(snapshot("Running", terminated("app", "Error", 1, 0)), nil, now)
	require.Len(t, issues, 1)
	assert.Equal(t, types.IssueTerminatedError, issues[0].Kind)
	assert.Equal(t, types.SeverityMedium, issues[0].Severity)
	assert.Equal(t, int32(1), issues[0].Evidence.ExitCode)
}

func TestDetect_CleanExitIgnored(t *testing.T) {
	d := New(testConfig())
	issues := d.Detect(snapshot("Succeeded", terminated("app", "Completed", 0, 0)), nil, now)
	assert.Empty(t, issues)
}

func TestDetect_ExcessiveRestarts(t *testing.T) {
	d := New(testConfig())

	t.Run("below threshold", func(t *testing.T) {
		issues := d.Detect(snapshot("Running", types.ContainerStatus{Name: "app", State: types.ContainerRunning, RestartCount: 4}), nil, now)
		assert.Empty(t, issues)
	})

	t.Run("at threshold is low severity", func(t *testing.T) {
		issues := d.Detect(snapshot("Running", types.ContainerStatus{Name: "app", State: types.ContainerRunning, RestartCount: 5}), nil, now)
		require.Len(t, issues, 1)
		assert.Equal(t, types.IssueExcessiveRestarts, issues[0].Kind)
		assert.Equal(t, types.SeverityLow, issues[0].Severity)
	})

	t.Run("high water escalates to medium", func(t *testing.T) {
		issues := d.Detect(snapshot("Running", types.ContainerStatus{Name: "app", State: types.ContainerRunning, RestartCount: 12}), nil, now)
		require.Len(t, issues, 1)
		assert.Equal(t, types.SeverityMedium, issues[0].Severity)
	})
}

func TestDetect_CrashLoopAlsoCountsRestarts(t *testing.T) {
	// Independent rules: a crash-looping container past the restart
	// threshold yields both issues.
	d := New(testConfig())
	issues := d.Detect(snapshot("Running", waiting("app", "CrashLoopBackOff", 8)), nil, now)
	assert.ElementsMatch(t, []types.IssueKind{types.IssueCrashLoopBackOff, types.IssueExcessiveRestarts}, kindsOf(issues))
}

func TestDetect_PodPhase(t *testing.T) {
	d := New(testConfig())
	running := types.ContainerStatus{Name: "app", State: types.ContainerRunning}

	t.Run("failed", func(t *testing.T) {
		issues := d.Detect(snapshot("Failed", running), nil, now)
		require.Len(t, issues, 1)
		assert.Equal(t, types.IssuePodPhaseProblem, issues[0].Kind)
		assert.Equal(t, types.SeverityMedium, issues[0].Severity)
	})

	t.Run("unknown", func(t *testing.T) {
		issues := d.Detect(snapshot("Unknown", running), nil, now)
		require.Len(t, issues, 1)
		assert.Equal(t, types.IssuePodPhaseProblem, issues[0].Kind)
	})

	t.Run("pending within grace", func(t *testing.T) {
		snap := snapshot("Pending")
		snap.Created = now.Add(-30 * time.Second)
		assert.Empty(t, d.Detect(snap, nil, now))
	})

	t.Run("pending past grace", func(t *testing.T) {
		snap := snapshot("Pending")
		snap.Created = now.Add(-5 * time.Minute)
		issues := d.Detect(snap, nil, now)
		require.Len(t, issues, 1)
		assert.Equal(t, types.IssuePodPhaseProblem, issues[0].Kind)
		assert.Contains(t, issues[0].Summary, "Pending")
	})

	t.Run("running is healthy", func(t *testing.T) {
		assert.Empty(t, d.Detect(snapshot("Running", running), nil, now))
	})
}

func TestDetect_InitializingPodYieldsNothing(t *testing.T) {
	// No container statuses yet and inside the pending grace window.
	snap := snapshot("Pending")
	snap.Created = now.Add(-10 * time.Second)
	d := New(testConfig())
	assert.Empty(t, d.Detect(snap, nil, now))
}

func TestDetect_ResourceConstraint(t *testing.T) {
	d := New(testConfig())

	withUsage := func(used, limit int64) types.ContainerStatus {
		return types.ContainerStatus{
			Name:  "app",
			State: types.ContainerRunning,
			Resources: &types.ResourceSample{
				MemoryUsedBytes:  used,
				MemoryLimitBytes: limit,
			},
		}
	}

	t.Run("at threshold", func(t *testing.T) {
		issues := d.Detect(snapshot("Running", withUsage(90, 100)), nil, now)
		require.Len(t, issues, 1)
		assert.Equal(t, types.IssueResourceConstraint, issues[0].Kind)
		assert.Equal(t, types.SeverityMedium, issues[0].Severity)
	})

	t.Run("below threshold", func(t *testing.T) {
		assert.Empty(t, d.Detect(snapshot("Running", withUsage(50, 100)), nil, now))
	})

	t.Run("usage unavailable", func(t *testing.T) {
		assert.Empty(t, d.Detect(snapshot("Running", withUsage(0, 100)), nil, now))
	})

	t.Run("rule disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.ResourceThreshold = 0
		assert.Empty(t, New(cfg).Detect(snapshot("Running", withUsage(99, 100)), nil, now))
	})
}

func TestDetect_EventsAreEvidenceOnly(t *testing.T) {
	d := New(testConfig())
	events := []types.EventRecord{
		{Type: "Warning", Reason: "FailedScheduling", Message: "0/3 nodes available"},
	}

	// Healthy pod: warning events alone never fabricate an issue.
	healthy := snapshot("Running", types.ContainerStatus{Name: "app", State: types.ContainerRunning})
	assert.Empty(t, d.Detect(healthy, events, now))

	// Detected issue: events ride along as evidence.
	issues := d.Detect(snapshot("Running", waiting("app", "CrashLoopBackOff", 0)), events, now)
	require.Len(t, issues, 1)
	require.Len(t, issues[0].Evidence.Events, 1)
	assert.Equal(t, "FailedScheduling", issues[0].Evidence.Events[0].Reason)
}

func TestDetect_EvidenceEventsBoundedNewestFirst(t *testing.T) {
	var events []types.EventRecord
	for i := 0; i < 8; i++ {
		events = append(events, types.EventRecord{
			Type:     "Warning",
			Reason:   "BackOff",
			Message:  string(rune('a' + i)),
			LastSeen: now.Add(time.Duration(i) * time.Minute),
		})
	}
	events = append(events, types.EventRecord{Type: "Normal", Reason: "Pulled"})

	d := New(testConfig())
	issues := d.Detect(snapshot("Running", waiting("app", "ImagePullBackOff", 0)), events, now)
	require.Len(t, issues, 1)

	got := issues[0].Evidence.Events
	require.Len(t, got, maxEvidenceEvents)
	// Newest warning first, Normal events excluded.
	assert.Equal(t, "h", got[0].Message)
	for _, ev := range got {
		assert.Equal(t, "Warning", ev.Type)
	}
}

func TestDetect_Idempotent(t *testing.T) {
	d := New(testConfig())
	snap := snapshot("Running", waiting("app", "CrashLoopBackOff", 6), terminated("sidecar", "Error", 2, 1))
	events := []types.EventRecord{{Type: "Warning", Reason: "BackOff"}}

	first := d.Detect(snap, events, now)
	second := d.Detect(snap, events, now)
	assert.Equal(t, first, second)
}

func TestDetect_MultiContainer(t *testing.T) {
	d := New(testConfig())
	snap := snapshot("Running",
		waiting("app", "ImagePullBackOff", 0),
		terminated("sidecar", "OOMKilled", 137, 3),
	)

	issues := d.Detect(snap, nil, now)
	require.Len(t, issues, 2)

	byContainer := map[string]types.IssueKind{}
	for _, i := range issues {
		byContainer[i.Container] = i.Kind
	}
	assert.Equal(t, types.IssueImagePullBackOff, byContainer["app"])
	assert.Equal(t, types.IssueOOMKilled, byContainer["sidecar"])
}
