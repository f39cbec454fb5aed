package allowlist

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailgate/gate-service/internal/metrics"
)

// Reload triggers, used as metric labels.
const (
	TriggerStartup  = "startup"
	TriggerWatch    = "watch"
	TriggerSignal   = "signal"
	TriggerInterval = "interval"
	TriggerAdmin    = "admin"
)

// Set is the reloadable identity set.
type Set interface {
	Reload(ctx context.Context) error
	Len() int
}

// Reloader funnels every reload trigger through one place so they are
// counted and logged alike.
type Reloader struct {
	set Set
	log zerolog.Logger
}

// NewReloader returns a Reloader for set.
func NewReloader(set Set, log zerolog.Logger) *Reloader {
	return &Reloader{set: set, log: log}
}

// Reload reloads the set. The error is informational: the set keeps its
// previous contents on failure.
func (r *Reloader) Reload(ctx context.Context, trigger string) error {
	err := r.set.Reload(ctx)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.AllowlistReloadsTotal.WithLabelValues(trigger, result).Inc()
	metrics.AllowlistSize.Set(float64(r.set.Len()))
	r.log.Debug().Str("trigger", trigger).Str("result", result).Msg("allow-list reload")
	return err
}

// RunPeriodic reloads every interval until ctx is cancelled. A non-positive
// interval disables it.
func (r *Reloader) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Reload(ctx, TriggerInterval)
		}
	}
}
