package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	internalapi "github.com/helmcode/k8s-ai-monitor/internal/api"
	"github.com/helmcode/k8s-ai-monitor/internal/cluster"
	"github.com/helmcode/k8s-ai-monitor/internal/config"
	"github.com/helmcode/k8s-ai-monitor/internal/detector"
	"github.com/helmcode/k8s-ai-monitor/internal/diagnosis"
	"github.com/helmcode/k8s-ai-monitor/internal/notifier"
	"github.com/helmcode/k8s-ai-monitor/internal/scheduler"
	"github.com/helmcode/k8s-ai-monitor/internal/tracker"
)

func main() {
	var (
		configPath string
		statusAddr string
		debug      bool
	)

	flag.StringVar(&configPath, "config", "setup.yaml", "Path to the YAML configuration file.")
	flag.StringVar(&statusAddr, "status-bind-address", "", "The address the status/metrics endpoint binds to. Overrides status_addr from the config file.")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging.")
	flag.Parse()

	// Setup logger
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		logConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := logConfig.Build()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.String("path", configPath), zap.Error(err))
	}
	if statusAddr != "" {
		cfg.StatusAddr = statusAddr
	}

	logger.Info("Starting k8s-ai-monitor",
		zap.String("version", "dev"),
		zap.Int("clusters", len(cfg.Clusters)),
		zap.Duration("check_interval", cfg.CheckInterval()),
		zap.Bool("diagnosis_enabled", cfg.Diagnosis.Enabled),
		zap.Bool("slack_enabled", cfg.Notifications.Slack.Enabled),
	)

	// Build a source per configured cluster. A cluster whose kubeconfig
	// cannot be loaded is fatal at startup; connectivity failures later
	// are per-cycle and isolated.
	var targets []scheduler.Target
	for _, cc := range cfg.Clusters {
		src, err := cluster.New(cc, logger)
		if err != nil {
			logger.Fatal("Failed to build cluster source",
				zap.String("cluster", cc.Name),
				zap.Error(err),
			)
		}
		targets = append(targets, scheduler.Target{
			Source:     src,
			Namespaces: cc.Namespaces,
		})
	}

	det := detector.New(detector.Config{
		PendingGrace:      cfg.PendingGrace(),
		RestartThreshold:  cfg.Monitor.RestartThreshold,
		RestartHighWater:  cfg.Monitor.RestartHighWater,
		ResourceThreshold: cfg.Monitor.ResourceThreshold,
	})

	tr := tracker.New(tracker.Config{
		Cooldown:       cfg.Cooldown(),
		DebounceCycles: cfg.Monitor.DebounceCycles,
		Retention:      cfg.Retention(),
	}, logger)

	// Diagnosis enrichment is optional; without it alerts carry evidence only.
	var enricher scheduler.Enricher
	if cfg.Diagnosis.Enabled {
		reasoner, err := diagnosis.NewClaudeReasoner(diagnosis.ClaudeConfig{
			APIKey:   cfg.Diagnosis.APIKey,
			Model:    cfg.Diagnosis.Model,
			Endpoint: cfg.Diagnosis.Endpoint,
			Timeout:  cfg.DiagnosisTimeout(),
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create reasoner", zap.Error(err))
		}
		enricher = diagnosis.New(reasoner, logger, diagnosis.EnricherOptions{
			Timeout:      cfg.DiagnosisTimeout(),
			LogTailLines: int64(cfg.Monitor.LogTailLines),
			MaxRetries:   1,
		})
	}

	dispatcherOpts := notifier.DefaultDispatcherOptions()
	if cfg.Notifications.Slack.RateLimitPerMinute > 0 {
		dispatcherOpts.RateLimitPerMinute = cfg.Notifications.Slack.RateLimitPerMinute
	}
	if cfg.Notifications.Slack.Enabled {
		slackSender, err := notifier.NewSlackSender(notifier.SlackSenderConfig{
			Token:       cfg.Notifications.Slack.Token,
			Channel:     cfg.Notifications.Slack.Channel,
			MinSeverity: cfg.Notifications.Slack.MinSeverity,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create Slack sender", zap.Error(err))
		}
		dispatcherOpts.Senders = append(dispatcherOpts.Senders, slackSender)
		logger.Info("Slack sender configured", zap.String("channel", cfg.Notifications.Slack.Channel))
	}
	dispatcher := notifier.NewDispatcher(logger, dispatcherOpts)

	sched := scheduler.New(targets, det, tr, enricher, dispatcher, logger, scheduler.Options{
		Interval: cfg.CheckInterval(),
	})

	// Setup signal handler context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Status server: active issues, health probe, Prometheus metrics.
	statusServer := &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           internalapi.NewMux(tr, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Status server listening", zap.String("addr", cfg.StatusAddr))
		if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server exited", zap.Error(err))
		}
	}()

	// Run blocks until the context is cancelled and all in-flight
	// cycles have drained.
	if err := sched.Run(ctx); err != nil {
		logger.Error("Scheduler exited with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Status server shutdown failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
