package types

import (
	"fmt"
	"time"
)

// IssueKind categorizes the kind of pod health problem.
type IssueKind string

const (
	IssueCrashLoopBackOff     IssueKind = "CrashLoopBackOff"
	IssueImagePullBackOff     IssueKind = "ImagePullBackOff"
	IssueCreateContainerError IssueKind = "CreateContainerError"
	IssueOOMKilled            IssueKind = "OOMKilled"
	IssueTerminatedError      IssueKind = "TerminatedError"
	IssuePodPhaseProblem      IssueKind = "PodPhaseProblem"
	IssueExcessiveRestarts    IssueKind = "ExcessiveRestarts"
	IssueResourceConstraint   IssueKind = "ResourceConstraint"
)

// Kinds lists every issue kind the detector can produce.
func Kinds() []IssueKind {
	return []IssueKind{
		IssueCrashLoopBackOff,
		IssueImagePullBackOff,
		IssueCreateContainerError,
		IssueOOMKilled,
		IssueTerminatedError,
		IssuePodPhaseProblem,
		IssueExcessiveRestarts,
		IssueResourceConstraint,
	}
}

// Severity indicates how urgently an issue needs attention.
type Severity string

const (
	SeverityHigh   Severity = "High"   // Crash loops, image pull failures, OOM kills
	SeverityMedium Severity = "Medium" // Phase problems, non-zero exits, resource pressure
	SeverityLow    Severity = "Low"    // Restart counts just past the threshold
)

// SeverityRank returns a numeric rank for severity comparison.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ContainerStateKind is the coarse container state from the pod status.
type ContainerStateKind string

const (
	ContainerWaiting    ContainerStateKind = "waiting"
	ContainerRunning    ContainerStateKind = "running"
	ContainerTerminated ContainerStateKind = "terminated"
)

// ContainerStatus is the captured status of one container in a pod.
type ContainerStatus struct {
	Name             string             `json:"name"`
	State            ContainerStateKind `json:"state"`
	WaitingReason    string             `json:"waitingReason,omitempty"`
	TerminatedReason string             `json:"terminatedReason,omitempty"`
	ExitCode         int32              `json:"exitCode,omitempty"`
	RestartCount     int32              `json:"restartCount"`
	Ready            bool               `json:"ready"`

	// Resources is populated only when a usage source (metrics-server)
	// is available for the cluster; nil means usage is unknown.
	Resources *ResourceSample `json:"resources,omitempty"`
}

// ResourceSample pairs observed container usage with its configured
// limits. A zero limit means no limit is set for that resource.
type ResourceSample struct {
	CPUUsedMilli     int64 `json:"cpuUsedMilli,omitempty"`
	CPULimitMilli    int64 `json:"cpuLimitMilli,omitempty"`
	MemoryUsedBytes  int64 `json:"memoryUsedBytes,omitempty"`
	MemoryLimitBytes int64 `json:"memoryLimitBytes,omitempty"`
}

// OwnerRef identifies the controller that owns a pod (Deployment,
// StatefulSet, DaemonSet, ...), used for alert context only.
type OwnerRef struct {
	Kind string `json:"kind,omitempty"`
	Name string `json:"name,omitempty"`
}

// PodSnapshot is an immutable capture of one pod's status at poll time.
// A fresh snapshot is taken every cycle; nothing mutates it afterwards.
type PodSnapshot struct {
	Cluster    string            `json:"cluster"`
	Namespace  string            `json:"namespace"`
	Pod        string            `json:"pod"`
	Phase      string            `json:"phase"`
	Created    time.Time         `json:"created"`
	StartTime  time.Time         `json:"startTime,omitempty"`
	Owner      OwnerRef          `json:"owner,omitempty"`
	Containers []ContainerStatus `json:"containers,omitempty"`
}

// EventRecord is one Kubernetes event captured during a poll cycle.
// Events are evidence for issues detected from pod status; they never
// produce an issue on their own.
type EventRecord struct {
	Cluster   string    `json:"cluster"`
	Namespace string    `json:"namespace"`
	Object    string    `json:"object"` // involved object name
	Type      string    `json:"type"`   // Normal, Warning
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	Count     int32     `json:"count"`
	LastSeen  time.Time `json:"lastSeen"`
}

// Evidence bundles the snapshot fields and events that justify an issue.
// The log tail is filled in by the enricher, not the detector.
type Evidence struct {
	Phase        string        `json:"phase,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	ExitCode     int32         `json:"exitCode,omitempty"`
	RestartCount int32         `json:"restartCount,omitempty"`
	Events       []EventRecord `json:"events,omitempty"`
	LogTail      string        `json:"logTail,omitempty"`
}

// Issue is one classified problem detected on a pod. Issues are values:
// the detector produces a fresh set every cycle and the tracker compares
// them by identity key.
type Issue struct {
	Kind      IssueKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	Cluster   string    `json:"cluster"`
	Namespace string    `json:"namespace"`
	Pod       string    `json:"pod"`
	Container string    `json:"container,omitempty"` // empty for pod-level issues
	Owner     OwnerRef  `json:"owner,omitempty"`
	Summary   string    `json:"summary"`
	Evidence  Evidence  `json:"evidence"`
}

// Key returns the issue's identity key. Two issues with the same key are
// the same logical problem observed on different cycles.
func (i Issue) Key() IssueKey {
	return IssueKey{
		Cluster:   i.Cluster,
		Namespace: i.Namespace,
		Pod:       i.Pod,
		Container: i.Container,
		Kind:      i.Kind,
	}
}

// IssueKey uniquely identifies an issue across poll cycles.
type IssueKey struct {
	Cluster   string    `json:"cluster"`
	Namespace string    `json:"namespace"`
	Pod       string    `json:"pod"`
	Container string    `json:"container,omitempty"`
	Kind      IssueKind `json:"kind"`
}

// String renders the key for logs and dedupe maps.
func (k IssueKey) String() string {
	if k.Container != "" {
		return fmt.Sprintf("%s/%s/%s/%s/%s", k.Cluster, k.Namespace, k.Pod, k.Container, k.Kind)
	}
	return fmt.Sprintf("%s/%s/%s/%s", k.Cluster, k.Namespace, k.Pod, k.Kind)
}

// Transition classifies what happened to an issue this cycle relative to
// its tracked state.
type Transition string

const (
	TransitionNew               Transition = "NEW"
	TransitionOngoingEligible   Transition = "ONGOING_ELIGIBLE"
	TransitionOngoingSuppressed Transition = "ONGOING_SUPPRESSED"
	TransitionResolved          Transition = "RESOLVED"
)

// Alertable reports whether the transition should produce an alert.
func (t Transition) Alertable() bool {
	return t == TransitionNew || t == TransitionOngoingEligible || t == TransitionResolved
}

// IssueStatus is the lifecycle status of a tracked issue.
type IssueStatus string

const (
	StatusActive   IssueStatus = "ACTIVE"
	StatusResolved IssueStatus = "RESOLVED"
)

// IssueState is the tracker's record for one issue key. Owned exclusively
// by the state tracker; snapshots of it are handed out by value.
type IssueState struct {
	Key           IssueKey    `json:"key"`
	Status        IssueStatus `json:"status"`
	Severity      Severity    `json:"severity"`
	Summary       string      `json:"summary"`
	FirstSeen     time.Time   `json:"firstSeen"`
	LastSeen      time.Time   `json:"lastSeen"`
	LastAlerted   time.Time   `json:"lastAlerted,omitempty"`
	ResolvedAt    time.Time   `json:"resolvedAt,omitempty"`
	ObservedCount int         `json:"observedCount"`
	AbsentCount   int         `json:"absentCount"`
}

// DiagnosisResult is the best-effort output of the reasoning service.
// A zero Diagnosis with a non-nil Err means the alert goes out on
// evidence alone.
type DiagnosisResult struct {
	Diagnosis      string `json:"diagnosis,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	Err            error  `json:"-"`
}

// Alert is one dispatchable notification: an issue plus its transition
// and optional diagnosis. Created once per alert-eligible transition and
// never mutated.
type Alert struct {
	Issue      Issue           `json:"issue"`
	Transition Transition      `json:"transition"`
	Diagnosis  DiagnosisResult `json:"diagnosis,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}
