package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helmcode/k8s-ai-monitor/internal/detector"
	"github.com/helmcode/k8s-ai-monitor/internal/diagnosis"
	"github.com/helmcode/k8s-ai-monitor/internal/tracker"
	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	name    string
	pods    []types.PodSnapshot
	events  []types.EventRecord
	listErr error
	logTail string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) ListPods(_ context.Context, _ string) ([]types.PodSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pods, nil
}

func (f *fakeSource) ListEvents(_ context.Context, _, _ string) ([]types.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events, nil
}

func (f *fakeSource) Logs(_ context.Context, _, _, _ string, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logTail, nil
}

func (f *fakeSource) setPods(pods []types.PodSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pods = pods
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []types.Alert
}

func (r *recordingDispatcher) Dispatch(_ context.Context, alert types.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
}

func (r *recordingDispatcher) all() []types.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Alert(nil), r.alerts...)
}

type fakeEnricher struct {
	mu     sync.Mutex
	result types.DiagnosisResult
	calls  []types.Issue
}

func (f *fakeEnricher) Enrich(_ context.Context, issue types.Issue, _ diagnosis.LogFetcher) types.DiagnosisResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, issue)
	return f.result
}

func (f *fakeEnricher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func crashLoopPod(cluster, pod string) types.PodSnapshot {
	return types.PodSnapshot{
		Cluster:   cluster,
		Namespace: "default",
		Pod:       pod,
		Phase:     "Running",
		Created:   t0.Add(-time.Hour),
		Containers: []types.ContainerStatus{
			{Name: "app", State: types.ContainerWaiting, WaitingReason: "CrashLoopBackOff", RestartCount: 3},
		},
	}
}

func imagePullPod(cluster, pod string) types.PodSnapshot {
	snap := crashLoopPod(cluster, pod)
	snap.Containers[0].WaitingReason = "ImagePullBackOff"
	return snap
}

// testHarness wires a scheduler around fakes with a manually advanced
// clock. runCycle is driven directly for deterministic cycle tests.
type testHarness struct {
	scheduler  *Scheduler
	tracker    *tracker.Tracker
	dispatcher *recordingDispatcher
	enricher   *fakeEnricher
	now        time.Time
	targets    []Target
}

func newHarness(t *testing.T, interval time.Duration, sources ...ClusterSource) *testHarness {
	t.Helper()
	h := &testHarness{
		dispatcher: &recordingDispatcher{},
		enricher:   &fakeEnricher{},
		now:        t0,
	}
	h.tracker = tracker.New(tracker.Config{
		Cooldown:       3 * interval,
		DebounceCycles: 2,
		Retention:      time.Hour,
	}, zap.NewNop())

	det := detector.New(detector.Config{
		PendingGrace:     2 * time.Minute,
		RestartThreshold: 5,
	})

	for _, src := range sources {
		h.targets = append(h.targets, Target{Source: src, Namespaces: []string{"default"}})
	}

	h.scheduler = New(h.targets, det, h.tracker, h.enricher, h.dispatcher, zap.NewNop(), Options{
		Interval:    interval,
		PollTimeout: interval / 2,
		Now:         func() time.Time { return h.now },
	})
	return h
}

// cycle runs one pass for every target at the current fake time, then
// advances the clock by one interval.
func (h *testHarness) cycle(interval time.Duration) {
	for _, target := range h.targets {
		h.scheduler.runCycle(context.Background(), target, zap.NewNop())
	}
	h.now = h.now.Add(interval)
}

func TestScheduler_NewIssueDispatchedWithDiagnosis(t *testing.T) {
	src := &fakeSource{name: "prod", pods: []types.PodSnapshot{imagePullPod("prod", "web-0")}}
	h := newHarness(t, time.Minute, src)
	h.enricher.result = types.DiagnosisResult{Diagnosis: "tag missing", Recommendation: "push the tag"}

	h.cycle(time.Minute)

	alerts := h.dispatcher.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, types.TransitionNew, alerts[0].Transition)
	assert.Equal(t, types.IssueImagePullBackOff, alerts[0].Issue.Kind)
	assert.Equal(t, "tag missing", alerts[0].Diagnosis.Diagnosis)
}

func TestScheduler_DiagnosisFailureStillDispatches(t *testing.T) {
	// Example scenario: reasoning service times out; the alert goes out
	// on evidence alone.
	src := &fakeSource{name: "prod", pods: []types.PodSnapshot{imagePullPod("prod", "web-0")}}
	h := newHarness(t, time.Minute, src)
	h.enricher.result = types.DiagnosisResult{Err: context.DeadlineExceeded}

	h.cycle(time.Minute)

	alerts := h.dispatcher.all()
	require.Len(t, alerts, 1)
	assert.Empty(t, alerts[0].Diagnosis.Diagnosis)
	assert.Error(t, alerts[0].Diagnosis.Err)
}

func TestScheduler_SuppressedCyclesSkipEnrichmentAndDispatch(t *testing.T) {
	src := &fakeSource{name: "prod", pods: []types.PodSnapshot{crashLoopPod("prod", "web-0")}}
	h := newHarness(t, time.Minute, src)

	h.cycle(time.Minute) // NEW
	h.cycle(time.Minute) // suppressed
	h.cycle(time.Minute) // suppressed

	assert.Len(t, h.dispatcher.all(), 1)
	// Enrichment ran only for the NEW transition.
	assert.Equal(t, 1, h.enricher.callCount())
}

func TestScheduler_OngoingReAlertAfterCooldown(t *testing.T) {
	src := &fakeSource{name: "prod", pods: []types.PodSnapshot{crashLoopPod("prod", "web-0")}}
	h := newHarness(t, time.Minute, src)

	for i := 0; i < 4; i++ {
		h.cycle(time.Minute)
	}

	alerts := h.dispatcher.all()
	require.Len(t, alerts, 2)
	assert.Equal(t, types.TransitionNew, alerts[0].Transition)
	assert.Equal(t, types.TransitionOngoingEligible, alerts[1].Transition)
}

func TestScheduler_ResolutionDispatchedWithoutDiagnosis(t *testing.T) {
	src := &fakeSource{name: "prod", pods: []types.PodSnapshot{crashLoopPod("prod", "web-0")}}
	h := newHarness(t, time.Minute, src)

	h.cycle(time.Minute) // NEW
	src.setPods(nil)
	h.cycle(time.Minute) // absent 1
	h.cycle(time.Minute) // absent 2 -> RESOLVED

	alerts := h.dispatcher.all()
	require.Len(t, alerts, 2)
	assert.Equal(t, types.TransitionResolved, alerts[1].Transition)
	// Only the NEW transition was enriched.
	assert.Equal(t, 1, h.enricher.callCount())
}

func TestScheduler_FaultIsolationBetweenClusters(t *testing.T) {
	broken := &fakeSource{name: "prod", listErr: types.Classify(types.ErrTransient, errors.New("connection refused"))}
	healthy := &fakeSource{name: "staging", pods: []types.PodSnapshot{crashLoopPod("staging", "api-0")}}
	h := newHarness(t, time.Minute, broken, healthy)

	h.cycle(time.Minute)

	// The healthy cluster's cycle completed in the same round.
	alerts := h.dispatcher.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, "staging", alerts[0].Issue.Cluster)
}

func TestScheduler_FailedPollDoesNotFabricateResolution(t *testing.T) {
	src := &fakeSource{name: "prod", pods: []types.PodSnapshot{crashLoopPod("prod", "web-0")}}
	h := newHarness(t, time.Minute, src)

	h.cycle(time.Minute) // NEW

	// Poll failures for longer than the debounce window.
	src.setErr(errors.New("api server down"))
	h.cycle(time.Minute)
	h.cycle(time.Minute)
	h.cycle(time.Minute)

	// No resolution was emitted: the issue state is untouched.
	require.Len(t, h.dispatcher.all(), 1)
	assert.Len(t, h.tracker.ActiveForCluster("prod"), 1)

	// Recovery: the issue is still ongoing, not NEW again.
	src.setErr(nil)
	h.cycle(time.Minute)
	alerts := h.dispatcher.all()
	require.Len(t, alerts, 2)
	assert.Equal(t, types.TransitionOngoingEligible, alerts[1].Transition)
}

func TestScheduler_NilEnricherSkipsDiagnosis(t *testing.T) {
	src := &fakeSource{name: "prod", pods: []types.PodSnapshot{crashLoopPod("prod", "web-0")}}
	h := newHarness(t, time.Minute, src)
	h.scheduler.enricher = nil

	h.cycle(time.Minute)

	alerts := h.dispatcher.all()
	require.Len(t, alerts, 1)
	assert.Empty(t, alerts[0].Diagnosis.Diagnosis)
	assert.NoError(t, alerts[0].Diagnosis.Err)
}

func TestScheduler_EventEvidenceAttached(t *testing.T) {
	src := &fakeSource{
		name: "prod",
		pods: []types.PodSnapshot{imagePullPod("prod", "web-0")},
		events: []types.EventRecord{
			{Type: "Warning", Reason: "Failed", Message: `Failed to pull image "web:v2"`},
		},
	}
	h := newHarness(t, time.Minute, src)

	h.cycle(time.Minute)

	alerts := h.dispatcher.all()
	require.Len(t, alerts, 1)
	require.Len(t, alerts[0].Issue.Evidence.Events, 1)
	assert.Equal(t, "Failed", alerts[0].Issue.Evidence.Events[0].Reason)
}

func TestScheduler_RunDrainsGracefully(t *testing.T) {
	src := &fakeSource{name: "prod", pods: []types.PodSnapshot{crashLoopPod("prod", "web-0")}}
	h := newHarness(t, 20*time.Millisecond, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.scheduler.Run(ctx) }()

	// Let at least the immediate first cycle run.
	require.Eventually(t, func() bool {
		return len(h.dispatcher.all()) >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not drain after cancellation")
	}
}
