package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/presence-service/internal/domain"
)

// ExpireFunc handles a connection the watchdog has already removed from the registry.
type ExpireFunc func(ctx context.Context, entry domain.ConnectionEntry) error

type Watchdog struct {
	reg      *Registry
	onExpire ExpireFunc
	period   time.Duration
	timeout  time.Duration
	log      *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

func NewWatchdog(reg *Registry, onExpire ExpireFunc, period, timeout time.Duration, log *slog.Logger) *Watchdog {
	if period <= 0 {
		period = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Watchdog{
		reg:      reg,
		onExpire: onExpire,
		period:   period,
		timeout:  timeout,
		log:      log.With("component", "watchdog"),
		stop:     make(chan struct{}),
	}
}

// Run scans every period until ctx is done or Stop is called.
func (w *Watchdog) Run(ctx context.Context) {
	t := time.NewTicker(w.period)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case now := <-t.C:
			w.ScanOnce(ctx, now)
		}
	}
}

func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// ScanOnce expires silent connections and returns how many were dispatched.
func (w *Watchdog) ScanOnce(ctx context.Context, now time.Time) int {
	expired := w.reg.Expired(now, w.timeout)
	for _, e := range expired {
		if err := w.dispatch(ctx, e); err != nil {
			w.log.Error("expire connection",
				slog.String("conn_id", e.ConnID),
				slog.String("room_id", e.RoomID),
				slog.Any("err", err))
		}
	}
	if len(expired) > 0 {
		w.log.Info("expired connections", slog.Int("count", len(expired)))
	}

	return len(expired)
}

func (w *Watchdog) dispatch(ctx context.Context, e domain.ConnectionEntry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	return w.onExpire(ctx, e)
}
