package progress

import (
	"context"
	"log/slog"
	"time"
)

const defaultFlushInterval = 30 * time.Second

// Autosaver periodically retries flushing dirty progression to storage.
// Save itself is fire-and-forget; when a write fails the state stays
// dirty and this loop picks it up, so a transient storage outage only
// delays durability instead of losing the session.
type Autosaver struct {
	store    *Store
	interval time.Duration
	log      *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewAutosaver creates an autosaver for the store. A non-positive
// interval falls back to the default.
func NewAutosaver(store *Store, interval time.Duration, log *slog.Logger) *Autosaver {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Autosaver{
		store:    store,
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start runs the flush loop until Stop is called. It blocks; callers
// run it on its own goroutine.
func (a *Autosaver) Start() {
	a.log.Info("Autosaver starting", "interval", a.interval)
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			// Final flush so a clean shutdown never drops progress.
			a.flush()
			a.log.Info("Autosaver stopped")
			return
		case <-ticker.C:
			a.flush()
		}
	}
}

// Stop shuts the loop down and waits for the final flush.
func (a *Autosaver) Stop() {
	a.cancel()
	<-a.done
}

func (a *Autosaver) flush() {
	if !a.store.Dirty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.store.Save(ctx)
	if a.store.Dirty() {
		a.log.Warn("Autosave flush did not stick, will retry")
	}
}
