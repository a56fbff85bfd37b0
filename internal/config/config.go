package config

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// Environment variables consulted at load time. Secrets never live in
// the YAML file.
const (
	EnvSlackToken      = "SLACK_API_TOKEN"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
)

// ClusterConfig names one cluster to watch.
type ClusterConfig struct {
	Name       string   `json:"name"`
	Kubeconfig string   `json:"kubeconfig"` // path; "~" is expanded
	Namespaces []string `json:"namespaces"`
}

// MonitorConfig tunes the poll-detect-reconcile loop.
type MonitorConfig struct {
	CheckIntervalSeconds int `json:"check_interval"`

	// PendingGraceSeconds is how long a pod may sit in Pending before it
	// is flagged. Required: normal startup time varies too much between
	// environments to guess a default.
	PendingGraceSeconds int `json:"pending_grace"`

	RestartThreshold int `json:"restart_threshold"`
	// RestartHighWater escalates ExcessiveRestarts from Low to Medium.
	RestartHighWater int `json:"restart_high_water"`

	// ResourceThreshold is the used/limit fraction (0..1] at which a
	// container is flagged. Zero disables the resource rule; when the
	// rule is enabled the value is required.
	ResourceThreshold float64 `json:"resource_threshold"`

	// CooldownSeconds is the minimum time between repeat alerts for the
	// same ongoing issue. Zero means 3x the check interval.
	CooldownSeconds int `json:"cooldown"`

	// DebounceCycles is how many consecutive absent observations resolve
	// an issue.
	DebounceCycles int `json:"debounce"`

	// RetentionSeconds is how long resolved issue state is kept before
	// being purged.
	RetentionSeconds int `json:"retention"`

	LogTailLines int `json:"log_tail_lines"`
}

// SlackConfig configures the Slack notification destination.
type SlackConfig struct {
	Enabled            bool   `json:"enabled"`
	Channel            string `json:"channel"`
	MinSeverity        string `json:"min_severity"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	Token              string `json:"-"` // from SLACK_API_TOKEN
}

// NotificationsConfig groups notification destinations.
type NotificationsConfig struct {
	Slack SlackConfig `json:"slack"`
}

// DiagnosisConfig configures the reasoning-service call.
type DiagnosisConfig struct {
	Enabled        bool   `json:"enabled"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout"`
	Endpoint       string `json:"endpoint"`
	APIKey         string `json:"-"` // from ANTHROPIC_API_KEY
}

// Config is the full configuration surface. Loaded once at startup;
// read-only for the pipeline's lifetime.
type Config struct {
	Clusters      []ClusterConfig     `json:"clusters"`
	Monitor       MonitorConfig       `json:"monitor"`
	Notifications NotificationsConfig `json:"notifications"`
	Diagnosis     DiagnosisConfig     `json:"diagnosis"`

	StatusAddr string `json:"status_addr"`
}

// Default returns a Config with documented defaults applied. Fields with
// no sensible default (clusters, pending grace) stay zero and are caught
// by Validate.
func Default() Config {
	return Config{
		Monitor: MonitorConfig{
			CheckIntervalSeconds: 300,
			RestartThreshold:     5,
			RestartHighWater:     10,
			DebounceCycles:       2,
			RetentionSeconds:     1800,
			LogTailLines:         100,
		},
		Notifications: NotificationsConfig{
			Slack: SlackConfig{
				Channel:            "#general",
				MinSeverity:        "Low",
				RateLimitPerMinute: 10,
			},
		},
		Diagnosis: DiagnosisConfig{
			Model:          "claude-3-7-sonnet-latest",
			TimeoutSeconds: 30,
			Endpoint:       "https://api.anthropic.com/v1/messages",
		},
		StatusAddr: ":8080",
	}
}

// Load reads and validates the YAML configuration at path, applying
// defaults and environment overrides.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw YAML into a validated Config.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if tok := os.Getenv(EnvSlackToken); tok != "" {
		cfg.Notifications.Slack.Token = tok
	}
	if key := os.Getenv(EnvAnthropicAPIKey); key != "" {
		cfg.Diagnosis.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for startup-fatal problems. Nothing
// past startup treats configuration as fallible.
func (c Config) Validate() error {
	if len(c.Clusters) == 0 {
		return fmt.Errorf("at least one cluster must be configured")
	}
	seen := make(map[string]bool, len(c.Clusters))
	for i, cl := range c.Clusters {
		if cl.Name == "" {
			return fmt.Errorf("clusters[%d]: name is required", i)
		}
		if seen[cl.Name] {
			return fmt.Errorf("clusters[%d]: duplicate cluster name %q", i, cl.Name)
		}
		seen[cl.Name] = true
		if cl.Kubeconfig == "" {
			return fmt.Errorf("cluster %q: kubeconfig path is required", cl.Name)
		}
		if len(cl.Namespaces) == 0 {
			return fmt.Errorf("cluster %q: at least one namespace is required", cl.Name)
		}
	}

	m := c.Monitor
	if m.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("monitor.check_interval must be positive")
	}
	if m.PendingGraceSeconds <= 0 {
		return fmt.Errorf("monitor.pending_grace is required (seconds a pod may stay Pending before alerting)")
	}
	if m.RestartThreshold <= 0 {
		return fmt.Errorf("monitor.restart_threshold must be positive")
	}
	if m.ResourceThreshold < 0 || m.ResourceThreshold > 1 {
		return fmt.Errorf("monitor.resource_threshold must be in (0, 1], or 0 to disable")
	}
	if m.DebounceCycles <= 0 {
		return fmt.Errorf("monitor.debounce must be positive")
	}

	if c.Notifications.Slack.Enabled {
		if c.Notifications.Slack.Token == "" {
			return fmt.Errorf("slack notifications enabled but %s is not set", EnvSlackToken)
		}
		if c.Notifications.Slack.Channel == "" {
			return fmt.Errorf("notifications.slack.channel is required when slack is enabled")
		}
	}
	if c.Diagnosis.Enabled && c.Diagnosis.APIKey == "" {
		return fmt.Errorf("diagnosis enabled but %s is not set", EnvAnthropicAPIKey)
	}
	return nil
}

// CheckInterval returns the poll interval as a duration.
func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.Monitor.CheckIntervalSeconds) * time.Second
}

// PendingGrace returns the Pending-phase grace period as a duration.
func (c Config) PendingGrace() time.Duration {
	return time.Duration(c.Monitor.PendingGraceSeconds) * time.Second
}

// Cooldown returns the re-alert cooldown, defaulting to 3x the check
// interval when unset.
func (c Config) Cooldown() time.Duration {
	if c.Monitor.CooldownSeconds > 0 {
		return time.Duration(c.Monitor.CooldownSeconds) * time.Second
	}
	return 3 * c.CheckInterval()
}

// Retention returns how long resolved state is kept.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Monitor.RetentionSeconds) * time.Second
}

// DiagnosisTimeout returns the per-request reasoning-service timeout.
func (c Config) DiagnosisTimeout() time.Duration {
	return time.Duration(c.Diagnosis.TimeoutSeconds) * time.Second
}
