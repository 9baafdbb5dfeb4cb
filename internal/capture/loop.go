package capture

import (
	"context"
	"log/slog"
	"time"

	"ocr-relay/internal/platform/metrics"
	"ocr-relay/internal/store"
)

// Status values reported through the loop's notify callback.
const (
	StateCapturing = "capturing"
	StateDegraded  = "degraded"
)

// Sink receives captured frames. *store.Store satisfies it.
type Sink interface {
	Put(png []byte) (store.Frame, error)
}

// Loop captures the screen on a fixed interval and stores each frame.
// A single failed tick is logged and retried at the next tick; after
// Threshold consecutive failures the loop reports a degraded state once,
// and reports recovery on the next successful tick. The loop itself never
// terminates on capture or storage errors.
type Loop struct {
	Grabber   Grabber
	Sink      Sink
	Interval  time.Duration
	Timeout   time.Duration
	Threshold int

	Log     *slog.Logger
	Metrics *metrics.Metrics // may be nil
	Notify  func(state string)

	failures int
	degraded bool
}

// Run blocks until ctx is canceled, attempting one capture per tick.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	attempt, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	png, err := l.Grabber.Grab(attempt)
	if err == nil {
		_, err = l.Sink.Put(png)
	}

	if err != nil {
		l.failures++
		l.Log.Warn("capture tick failed",
			slog.Int("consecutive_failures", l.failures),
			slog.String("error", err.Error()))
		if l.Metrics != nil {
			l.Metrics.IncCaptureFailures()
		}
		if l.failures >= l.Threshold && !l.degraded {
			l.degraded = true
			l.Log.Error("capture degraded", slog.Int("threshold", l.Threshold))
			if l.Notify != nil {
				l.Notify(StateDegraded)
			}
		}
		return
	}

	if l.degraded {
		l.Log.Info("capture recovered", slog.Int("failed_ticks", l.failures))
		if l.Notify != nil {
			l.Notify(StateCapturing)
		}
	}
	l.failures = 0
	l.degraded = false
	if l.Metrics != nil {
		l.Metrics.IncCaptures()
	}
}
