// Package tracker maintains per-issue state across poll cycles and
// decides which observations become alerts.
package tracker

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

// Config tunes alert eligibility and state retention.
type Config struct {
	// Cooldown is the minimum time between repeat alerts for the same
	// ongoing issue.
	Cooldown time.Duration

	// DebounceCycles is how many consecutive absent observations are
	// required before an issue is declared resolved.
	DebounceCycles int

	// Retention is how long resolved state is kept before purging.
	Retention time.Duration
}

// TransitionedIssue pairs an issue with its lifecycle transition for
// this cycle.
type TransitionedIssue struct {
	Issue      types.Issue
	Transition types.Transition
}

// state is the tracker's mutable record for one issue key. The embedded
// issue is the most recently observed value, kept so resolution alerts
// can describe what went away.
type state struct {
	types.IssueState
	issue types.Issue
}

// shard holds one cluster's issue states. Each scheduler worker only
// ever reconciles its own cluster, so shards never contend with each
// other; the tracker mutex guards the shard map and the brief
// reconcile step itself.
type shard struct {
	states map[types.IssueKey]*state
}

// Tracker owns all issue state. It is the only component that mutates
// IssueState, and only during Reconcile.
type Tracker struct {
	logger *zap.Logger
	cfg    Config

	mu     sync.Mutex
	shards map[string]*shard
}

// New builds a Tracker.
func New(cfg Config, logger *zap.Logger) *Tracker {
	return &Tracker{
		logger: logger.Named("tracker"),
		cfg:    cfg,
		shards: make(map[string]*shard),
	}
}

// Reconcile compares one cluster's observed issues against tracked
// state and returns the transitions for this cycle. NEW and RESOLVED
// are each emitted exactly once per issue lifecycle; an issue observed
// again after resolution starts a new lifecycle. Emitting NEW or
// ONGOING_ELIGIBLE marks the issue as alerted; a failed dispatch does
// not restart the cooldown clock.
func (t *Tracker) Reconcile(cluster string, observed []types.Issue, now time.Time) []TransitionedIssue {
	t.mu.Lock()
	defer t.mu.Unlock()

	sh, ok := t.shards[cluster]
	if !ok {
		sh = &shard{states: make(map[types.IssueKey]*state)}
		t.shards[cluster] = sh
	}

	var out []TransitionedIssue
	seen := make(map[types.IssueKey]bool, len(observed))

	for _, issue := range observed {
		key := issue.Key()
		if seen[key] {
			// At most one consideration per key per cycle.
			continue
		}
		seen[key] = true
		out = append(out, t.observe(sh, key, issue, now))
	}

	// Keys tracked but not observed this cycle.
	for key, st := range sh.states {
		if seen[key] || st.Status != types.StatusActive {
			continue
		}
		st.AbsentCount++
		if st.AbsentCount >= t.cfg.DebounceCycles {
			st.Status = types.StatusResolved
			st.ResolvedAt = now
			t.logger.Info("Issue resolved",
				zap.String("key", key.String()),
				zap.Int("absent_cycles", st.AbsentCount),
			)
			out = append(out, TransitionedIssue{Issue: st.issue, Transition: types.TransitionResolved})
		}
	}

	t.purge(sh, now)
	return out
}

// observe processes one observed issue and returns its transition.
func (t *Tracker) observe(sh *shard, key types.IssueKey, issue types.Issue, now time.Time) TransitionedIssue {
	st, exists := sh.states[key]
	if !exists || st.Status == types.StatusResolved {
		// Fresh lifecycle. A resolved-but-unpurged entry is replaced:
		// its NEW/RESOLVED pair has already been emitted.
		sh.states[key] = &state{
			IssueState: types.IssueState{
				Key:           key,
				Status:        types.StatusActive,
				Severity:      issue.Severity,
				Summary:       issue.Summary,
				FirstSeen:     now,
				LastSeen:      now,
				LastAlerted:   now,
				ObservedCount: 1,
			},
			issue: issue,
		}
		t.logger.Info("New issue", zap.String("key", key.String()), zap.String("severity", string(issue.Severity)))
		return TransitionedIssue{Issue: issue, Transition: types.TransitionNew}
	}

	st.LastSeen = now
	st.ObservedCount++
	st.AbsentCount = 0
	st.Severity = issue.Severity
	st.Summary = issue.Summary
	st.issue = issue

	if now.Sub(st.LastAlerted) >= t.cfg.Cooldown {
		st.LastAlerted = now
		return TransitionedIssue{Issue: issue, Transition: types.TransitionOngoingEligible}
	}
	return TransitionedIssue{Issue: issue, Transition: types.TransitionOngoingSuppressed}
}

// purge drops resolved entries past the retention window.
func (t *Tracker) purge(sh *shard, now time.Time) {
	for key, st := range sh.states {
		if st.Status == types.StatusResolved && now.Sub(st.ResolvedAt) >= t.cfg.Retention {
			delete(sh.states, key)
		}
	}
}

// Active returns a snapshot of every tracked active issue across all
// clusters, ordered by key for stable output. Read-only; used by the
// status API.
func (t *Tracker) Active() []types.IssueState {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []types.IssueState
	for _, sh := range t.shards {
		for _, st := range sh.states {
			if st.Status == types.StatusActive {
				out = append(out, st.IssueState)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// ActiveForCluster returns the active issues tracked for one cluster.
func (t *Tracker) ActiveForCluster(cluster string) []types.IssueState {
	t.mu.Lock()
	defer t.mu.Unlock()

	sh, ok := t.shards[cluster]
	if !ok {
		return nil
	}
	var out []types.IssueState
	for _, st := range sh.states {
		if st.Status == types.StatusActive {
			out = append(out, st.IssueState)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}
