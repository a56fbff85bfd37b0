package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/helmcode/k8s-ai-monitor/internal/config"
	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

// Source wraps one cluster connection and exposes the read-only
// operations the pipeline needs. Stateless beyond the client handle; one
// Source is built per configured cluster at startup.
type Source struct {
	name   string
	client kubernetes.Interface
	logger *zap.Logger
}

// New builds a Source from a cluster configuration by loading its
// kubeconfig. Fails fast on unreadable or invalid kubeconfigs.
func New(cfg config.ClusterConfig, logger *zap.Logger) (*Source, error) {
	path := cfg.Kubeconfig
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cluster %s: expand kubeconfig path: %w", cfg.Name, err)
		}
		path = filepath.Join(home, path[1:])
	}

	restCfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("cluster %s: load kubeconfig: %w", cfg.Name, err)
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("cluster %s: build clientset: %w", cfg.Name, err)
	}
	return NewWithClient(cfg.Name, client, logger), nil
}

// NewWithClient builds a Source around an existing clientset. Tests pass
// a fake clientset here.
func NewWithClient(name string, client kubernetes.Interface, logger *zap.Logger) *Source {
	return &Source{
		name:   name,
		client: client,
		logger: logger.Named("cluster").With(zap.String("cluster", name)),
	}
}

// Name returns the configured cluster name.
func (s *Source) Name() string { return s.name }

// ListPods captures a snapshot of every pod in the namespace.
func (s *Source) ListPods(ctx context.Context, namespace string) ([]types.PodSnapshot, error) {
	pods, err := s.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify(fmt.Errorf("list pods in %s: %w", namespace, err))
	}

	snapshots := make([]types.PodSnapshot, 0, len(pods.Items))
	for i := range pods.Items {
		snapshots = append(snapshots, s.snapshot(&pods.Items[i]))
	}
	return snapshots, nil
}

// ListEvents returns the events recorded for one pod, newest last.
func (s *Source) ListEvents(ctx context.Context, namespace, pod string) ([]types.EventRecord, error) {
	events, err := s.client.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: "involvedObject.name=" + pod,
	})
	if err != nil {
		return nil, classify(fmt.Errorf("list events for %s/%s: %w", namespace, pod, err))
	}

	records := make([]types.EventRecord, 0, len(events.Items))
	for _, ev := range events.Items {
		records = append(records, types.EventRecord{
			Cluster:   s.name,
			Namespace: namespace,
			Object:    ev.InvolvedObject.Name,
			Type:      ev.Type,
			Reason:    ev.Reason,
			Message:   ev.Message,
			Count:     ev.Count,
			LastSeen:  ev.LastTimestamp.Time,
		})
	}
	return records, nil
}

// Logs returns a bounded log tail for one container. A missing pod or
// container is an expected condition (the pod may have been rescheduled
// between list and read) and yields an empty tail, not an error.
func (s *Source) Logs(ctx context.Context, namespace, pod, container string, tailLines int64) (string, error) {
	req := s.client.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{
		Container: container,
		TailLines: &tailLines,
	})
	raw, err := req.DoRaw(ctx)
	if err != nil {
		if apierrors.IsNotFound(err) || apierrors.IsBadRequest(err) {
			s.logger.Debug("No logs available",
				zap.String("namespace", namespace),
				zap.String("pod", pod),
				zap.String("container", container),
			)
			return "", nil
		}
		return "", classify(fmt.Errorf("logs for %s/%s/%s: %w", namespace, pod, container, err))
	}
	return string(raw), nil
}

// snapshot converts a core/v1 Pod to the pipeline's immutable capture.
func (s *Source) snapshot(pod *corev1.Pod) types.PodSnapshot {
	snap := types.PodSnapshot{
		Cluster:   s.name,
		Namespace: pod.Namespace,
		Pod:       pod.Name,
		Phase:     string(pod.Status.Phase),
		Created:   pod.CreationTimestamp.Time,
	}
	if pod.Status.StartTime != nil {
		snap.StartTime = pod.Status.StartTime.Time
	}
	if ref := metav1.GetControllerOf(pod); ref != nil {
		snap.Owner = types.OwnerRef{Kind: ref.Kind, Name: ref.Name}
	}

	limits := make(map[string]types.ResourceSample, len(pod.Spec.Containers))
	for _, c := range pod.Spec.Containers {
		var sample types.ResourceSample
		if cpu, ok := c.Resources.Limits[corev1.ResourceCPU]; ok {
			sample.CPULimitMilli = cpu.MilliValue()
		}
		if mem, ok := c.Resources.Limits[corev1.ResourceMemory]; ok {
			sample.MemoryLimitBytes = mem.Value()
		}
		limits[c.Name] = sample
	}

	for _, cs := range pod.Status.ContainerStatuses {
		status := types.ContainerStatus{
			Name:         cs.Name,
			RestartCount: cs.RestartCount,
			Ready:        cs.Ready,
		}
		switch {
		case cs.State.Waiting != nil:
			status.State = types.ContainerWaiting
			status.WaitingReason = cs.State.Waiting.Reason
		case cs.State.Terminated != nil:
			status.State = types.ContainerTerminated
			status.TerminatedReason = cs.State.Terminated.Reason
			status.ExitCode = cs.State.Terminated.ExitCode
		case cs.State.Running != nil:
			status.State = types.ContainerRunning
		}
		if sample, ok := limits[cs.Name]; ok && (sample.CPULimitMilli > 0 || sample.MemoryLimitBytes > 0) {
			status.Resources = &sample
		}
		snap.Containers = append(snap.Containers, status)
	}
	return snap
}

// classify maps Kubernetes API errors onto the pipeline's error
// taxonomy at this boundary, so callers never inspect apierrors.
func classify(err error) error {
	switch {
	case apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err):
		return types.Classify(types.ErrAuth, err)
	case apierrors.IsTooManyRequests(err):
		return types.Classify(types.ErrRateLimited, err)
	default:
		return types.Classify(types.ErrTransient, err)
	}
}
