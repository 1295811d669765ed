package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/domprobe/browser"
	"github.com/use-agent/domprobe/config"
	"github.com/use-agent/domprobe/models"
)

// Wait strategies.
const (
	StrategyEvent = "event"
	StrategyPoll  = "poll"
)

// DefaultPollInterval is the loading-flag poll period.
const DefaultPollInterval = 100 * time.Millisecond

// Waiter blocks until a page reports that it is no longer loading.
//
// With StrategyEvent it first waits on the page's load notification when the
// page implements browser.LoadNotifier, then confirms with the loading flag.
// Pages without notifications, and StrategyPoll, fall back to polling the
// flag every PollInterval. Every suspension point honours ctx.
type Waiter struct {
	Strategy     string
	PollInterval time.Duration

	// Timeout bounds one Wait call. Zero waits until ctx is done.
	Timeout time.Duration

	Logger *slog.Logger
}

// NewWaiter builds a Waiter from pipeline configuration.
func NewWaiter(cfg config.PipelineConfig, logger *slog.Logger) *Waiter {
	return &Waiter{
		Strategy:     cfg.WaitStrategy,
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.LoadTimeout,
		Logger:       logger,
	}
}

// Wait returns nil once the page is idle. It returns a LOAD_TIMEOUT
// ProbeError when Timeout expires and a LOAD_FAILED one when the browser
// reports that navigation failed.
func (w *Waiter) Wait(ctx context.Context, page browser.Page) error {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	if w.Strategy != StrategyPoll {
		if n, ok := page.(browser.LoadNotifier); ok {
			if err := n.WaitLoad(ctx); err != nil {
				return w.fail(ctx, err)
			}
		}
	}

	return w.poll(ctx, page)
}

func (w *Waiter) poll(ctx context.Context, page browser.Page) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var ticker *time.Ticker
	for {
		loading, err := page.IsLoading(ctx)
		switch {
		case err != nil && (isTerminal(err) || ctx.Err() != nil):
			return w.fail(ctx, err)
		case err != nil:
			w.logger().Debug("loading flag unavailable, retrying", "op", "wait", "error", err)
		case !loading:
			return nil
		}

		if ticker == nil {
			ticker = time.NewTicker(interval)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return w.fail(ctx, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (w *Waiter) fail(ctx context.Context, err error) error {
	if isTerminal(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg := "page did not become idle before the session deadline"
		if w.Timeout > 0 {
			msg = fmt.Sprintf("page did not become idle within %s", w.Timeout)
		}
		return models.NewProbeError(models.ErrCodeLoadTimeout, msg, err)
	}
	return categorizeError(err, models.ErrCodeLoadFailed, "waiting for page load failed")
}

func (w *Waiter) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
