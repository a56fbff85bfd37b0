// Package scheduler owns the monitoring control loop: it fans polling
// out across clusters on a fixed interval and drives detected issues
// through tracking, diagnosis and dispatch.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helmcode/k8s-ai-monitor/internal/detector"
	"github.com/helmcode/k8s-ai-monitor/internal/diagnosis"
	"github.com/helmcode/k8s-ai-monitor/internal/tracker"
	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

// ClusterSource is the read-only cluster access the scheduler polls.
// *cluster.Source implements it; tests substitute fakes.
type ClusterSource interface {
	Name() string
	ListPods(ctx context.Context, namespace string) ([]types.PodSnapshot, error)
	ListEvents(ctx context.Context, namespace, pod string) ([]types.EventRecord, error)
	Logs(ctx context.Context, namespace, pod, container string, tailLines int64) (string, error)
}

// Enricher requests diagnoses for alert-eligible issues.
// *diagnosis.Enricher implements it.
type Enricher interface {
	Enrich(ctx context.Context, issue types.Issue, logs diagnosis.LogFetcher) types.DiagnosisResult
}

// Dispatcher sends alerts. *notifier.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert types.Alert)
}

// Target pairs one cluster source with the namespaces to watch on it.
type Target struct {
	Source     ClusterSource
	Namespaces []string
}

// Options configures the Scheduler.
type Options struct {
	// Interval is the wall-clock poll period per cluster.
	Interval time.Duration

	// PollTimeout bounds one cluster's API calls for a cycle. Defaults
	// to half the interval.
	PollTimeout time.Duration

	// Now is the clock; tests inject a fake one.
	Now func() time.Time
}

// Scheduler runs one timer-driven worker per cluster. Within a cluster,
// cycles never overlap; across clusters they overlap freely. The only
// shared mutable state between workers is the tracker, which shards by
// cluster and synchronizes the reconcile step internally.
type Scheduler struct {
	logger     *zap.Logger
	targets    []Target
	detector   *detector.Detector
	tracker    *tracker.Tracker
	enricher   Enricher // nil disables diagnosis
	dispatcher Dispatcher
	opts       Options
}

// New builds a Scheduler.
func New(targets []Target, det *detector.Detector, tr *tracker.Tracker,
	enricher Enricher, dispatcher Dispatcher, logger *zap.Logger, opts Options) *Scheduler {
	if opts.PollTimeout == 0 {
		opts.PollTimeout = opts.Interval / 2
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		logger:     logger.Named("scheduler"),
		targets:    targets,
		detector:   det,
		tracker:    tr,
		enricher:   enricher,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

// Run starts every cluster worker and blocks until the context is
// cancelled and all in-flight cycles have drained. Cancellation never
// interrupts a cycle mid-dispatch; it only prevents the next one.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting monitor scheduler",
		zap.Int("clusters", len(s.targets)),
		zap.Duration("interval", s.opts.Interval),
	)

	var wg sync.WaitGroup
	for _, target := range s.targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			s.worker(ctx, t)
		}(target)
	}
	wg.Wait()

	s.logger.Info("Monitor scheduler stopped")
	return nil
}

// worker runs one cluster's cycle loop. The first cycle fires
// immediately; ticks that arrive while a cycle is still running are
// dropped by the ticker, which is what guarantees no overlap.
func (s *Scheduler) worker(ctx context.Context, target Target) {
	logger := s.logger.With(zap.String("cluster", target.Source.Name()))

	s.runCycle(ctx, target, logger)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cluster worker draining")
			return
		case <-ticker.C:
			s.runCycle(ctx, target, logger)
		}
	}
}

// runCycle executes one full poll-detect-reconcile-dispatch pass for a
// cluster. Any failure is contained here: the worker's next tick
// proceeds regardless, and other clusters are never affected.
func (s *Scheduler) runCycle(ctx context.Context, target Target, logger *zap.Logger) {
	cluster := target.Source.Name()
	start := time.Now()
	now := s.opts.Now()

	pollCtx, cancel := context.WithTimeout(ctx, s.opts.PollTimeout)
	observed, ok := s.poll(pollCtx, target, logger, now)
	cancel()

	if !ok {
		// Poll failed: the cluster is skipped this cycle. State is left
		// untouched; reconciling a failed poll would fabricate
		// absences and resolve issues that may still be live.
		cyclesTotal.WithLabelValues(cluster, "failed").Inc()
		return
	}

	for _, issue := range observed {
		issuesDetected.WithLabelValues(cluster, string(issue.Kind)).Inc()
	}

	transitions := s.tracker.Reconcile(cluster, observed, now)
	for _, tn := range transitions {
		transitionsTotal.WithLabelValues(string(tn.Transition)).Inc()
		if !tn.Transition.Alertable() {
			continue
		}
		s.dispatch(ctx, target, tn, now)
	}

	cyclesTotal.WithLabelValues(cluster, "ok").Inc()
	cycleDuration.WithLabelValues(cluster).Observe(time.Since(start).Seconds())
	logger.Debug("Cycle complete",
		zap.Int("issues", len(observed)),
		zap.Int("transitions", len(transitions)),
		zap.Duration("duration", time.Since(start)),
	)
}

// poll lists pods across the target's namespaces and classifies them.
// Events are fetched only for pods that already produced issues: they
// are evidence, not triggers. Returns ok=false if any namespace listing
// failed, so the cycle is skipped rather than reconciled on partial data.
func (s *Scheduler) poll(ctx context.Context, target Target, logger *zap.Logger, now time.Time) ([]types.Issue, bool) {
	var observed []types.Issue

	for _, namespace := range target.Namespaces {
		pods, err := target.Source.ListPods(ctx, namespace)
		if err != nil {
			logger.Error("Cluster poll failed, skipping cycle",
				zap.String("namespace", namespace),
				zap.String("class", string(types.ClassOf(err))),
				zap.Error(err),
			)
			return nil, false
		}

		for _, snap := range pods {
			issues := s.detector.Detect(snap, nil, now)
			if len(issues) == 0 {
				continue
			}
			// Events are best-effort evidence; a failed event fetch
			// leaves the issues intact.
			events, err := target.Source.ListEvents(ctx, namespace, snap.Pod)
			if err != nil {
				logger.Warn("Event fetch failed, alerting without event evidence",
					zap.String("pod", snap.Pod),
					zap.Error(err),
				)
				events = nil
			}
			observed = append(observed, s.detector.Detect(snap, events, now)...)
		}
	}
	return observed, true
}

// dispatch enriches (when eligible) and sends one alert-worthy
// transition. Resolutions go out without a diagnosis: there is nothing
// live left to analyze.
func (s *Scheduler) dispatch(ctx context.Context, target Target, tn tracker.TransitionedIssue, now time.Time) {
	alert := types.Alert{
		Issue:      tn.Issue,
		Transition: tn.Transition,
		CreatedAt:  now,
	}

	if s.enricher != nil && tn.Transition != types.TransitionResolved {
		alert.Diagnosis = s.enricher.Enrich(ctx, tn.Issue, target.Source)
		if alert.Diagnosis.Err != nil {
			diagnosisTotal.WithLabelValues("error").Inc()
		} else {
			diagnosisTotal.WithLabelValues("success").Inc()
		}
	}

	s.dispatcher.Dispatch(ctx, alert)
}
