package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helmcode/k8s-ai-monitor/internal/config"
)

func infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the effective monitor configuration",
		Long: `Show the configuration as the monitor daemon would load it, with
defaults and environment overrides applied.

Examples:
  # Show effective configuration
  monitorctl info

  # Output as JSON
  monitorctl info -o json`,
		RunE: runInfo,
	}

	return cmd
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result := InfoResult{
		CheckInterval:    cfg.CheckInterval().String(),
		Cooldown:         cfg.Cooldown().String(),
		RestartThreshold: cfg.Monitor.RestartThreshold,
		DiagnosisEnabled: cfg.Diagnosis.Enabled,
		SlackEnabled:     cfg.Notifications.Slack.Enabled,
	}
	if cfg.Diagnosis.Enabled {
		result.DiagnosisModel = cfg.Diagnosis.Model
	}
	if cfg.Notifications.Slack.Enabled {
		result.SlackChannel = cfg.Notifications.Slack.Channel
	}

	for _, cc := range cfg.Clusters {
		result.Clusters = append(result.Clusters, ClusterInfo{
			Name:       cc.Name,
			Kubeconfig: cc.Kubeconfig,
			Namespaces: cc.Namespaces,
		})
	}

	return outputResult(result, outputFmt)
}
