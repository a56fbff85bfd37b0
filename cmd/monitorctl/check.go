package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helmcode/k8s-ai-monitor/internal/cluster"
	"github.com/helmcode/k8s-ai-monitor/internal/config"
	"github.com/helmcode/k8s-ai-monitor/internal/detector"
)

var (
	checkCluster   string
	checkNamespace string
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a one-shot detection pass against the configured clusters",
		Long: `Run detection once against every configured cluster and print the
issues found. No state is tracked and no alerts are sent.

Examples:
  # Check all configured clusters
  monitorctl check

  # Check a single cluster and namespace
  monitorctl check --cluster prod -n payments

  # Output as JSON
  monitorctl check -o json`,
		RunE: runCheck,
	}

	cmd.Flags().StringVar(&checkCluster, "cluster", "", "Limit the check to one configured cluster")
	cmd.Flags().StringVarP(&checkNamespace, "namespace", "n", "", "Limit the check to one namespace")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	det := detector.New(detector.Config{
		PendingGrace:      cfg.PendingGrace(),
		RestartThreshold:  cfg.Monitor.RestartThreshold,
		RestartHighWater:  cfg.Monitor.RestartHighWater,
		ResourceThreshold: cfg.Monitor.ResourceThreshold,
	})

	ctx := context.Background()
	now := time.Now()
	result := CheckResult{}

	for _, cc := range cfg.Clusters {
		if checkCluster != "" && cc.Name != checkCluster {
			continue
		}

		check := ClusterCheck{Cluster: cc.Name}
		issues, scanned, err := checkOne(ctx, det, cc, now)
		if err != nil {
			check.Error = err.Error()
			result.Clusters = append(result.Clusters, check)
			continue
		}

		check.PodsScanned = scanned
		check.IssueCount = len(issues)
		result.Clusters = append(result.Clusters, check)
		result.Issues = append(result.Issues, issues...)
	}

	if checkCluster != "" && len(result.Clusters) == 0 {
		return fmt.Errorf("cluster %q is not configured", checkCluster)
	}

	result.Total = len(result.Issues)
	return outputResult(result, outputFmt)
}

func checkOne(ctx context.Context, det *detector.Detector, cc config.ClusterConfig, now time.Time) ([]IssueInfo, int, error) {
	src, err := cluster.New(cc, zap.NewNop())
	if err != nil {
		return nil, 0, err
	}

	namespaces := cc.Namespaces
	if checkNamespace != "" {
		namespaces = []string{checkNamespace}
	}
	if len(namespaces) == 0 {
		namespaces = []string{""}
	}

	var issues []IssueInfo
	scanned := 0
	for _, namespace := range namespaces {
		pods, err := src.ListPods(ctx, namespace)
		if err != nil {
			return nil, 0, err
		}
		scanned += len(pods)

		for _, pod := range pods {
			for _, issue := range det.Detect(pod, nil, now) {
				issues = append(issues, IssueInfo{
					Cluster:   issue.Cluster,
					Namespace: issue.Namespace,
					Pod:       issue.Pod,
					Container: issue.Container,
					Kind:      string(issue.Kind),
					Severity:  string(issue.Severity),
					Summary:   issue.Summary,
				})
			}
		}
	}

	return issues, scanned, nil
}
