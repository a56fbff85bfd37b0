package notifier

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/helmcode/k8s-ai-monitor/internal/types"
)

// DispatcherOptions configures the Dispatcher behavior.
type DispatcherOptions struct {
	RateLimitPerMinute int      // per destination; default 10
	Senders            []Sender // external notification channels
}

// DefaultDispatcherOptions returns sensible defaults.
func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		RateLimitPerMinute: 10,
	}
}

// destLimiter tracks rate limits per destination (sender name).
type destLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newDestLimiter(perMinute int) *destLimiter {
	return &destLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(perMinute) / 60.0),
		burst:    max(1, perMinute/2), // allow half a minute's budget in one burst
	}
}

func (d *destLimiter) Allow(dest string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	limiter, exists := d.limiters[dest]
	if !exists {
		limiter = rate.NewLimiter(d.rate, d.burst)
		d.limiters[dest] = limiter
	}
	return limiter.Allow()
}

// Dispatcher renders alerts and sends them through the configured
// destinations, enforcing per-destination rate limits. Over-limit
// alerts are dropped, not queued: a stale alert storm is worth less
// than the next fresh cycle.
type Dispatcher struct {
	logger  *zap.Logger
	opts    DispatcherOptions
	limiter *destLimiter
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(logger *zap.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = DefaultDispatcherOptions().RateLimitPerMinute
	}
	return &Dispatcher{
		logger:  logger.Named("dispatcher"),
		opts:    opts,
		limiter: newDestLimiter(opts.RateLimitPerMinute),
	}
}

// Dispatch sends one alert through every destination whose severity
// threshold and rate budget allow it. Send failures are logged and
// counted, never propagated as pipeline failures; the scheduler must
// survive a broken notification channel.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) {
	key := alert.Issue.Key().String()

	if len(d.opts.Senders) == 0 {
		d.logger.Info("No notification destinations configured, logging alert only",
			zap.String("key", key),
			zap.String("transition", string(alert.Transition)),
			zap.String("summary", alert.Issue.Summary),
		)
		return
	}

	for _, s := range d.opts.Senders {
		if !s.ShouldSend(alert.Issue.Severity) {
			continue
		}
		if !d.limiter.Allow(s.Name()) {
			alertDroppedTotal.WithLabelValues("rate_limited").Inc()
			d.logger.Warn("Alert dropped by destination rate limit",
				zap.String("sender", s.Name()),
				zap.String("key", key),
			)
			continue
		}

		if err := s.Send(ctx, alert); err != nil {
			d.logger.Error("Alert send failed",
				zap.String("sender", s.Name()),
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		d.logger.Info("Alert dispatched",
			zap.String("sender", s.Name()),
			zap.String("key", key),
			zap.String("transition", string(alert.Transition)),
			zap.String("severity", string(alert.Issue.Severity)),
		)
	}
}
