package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "microsched/pkg/logx"
)

// Replaced in tests.
var (
	sdNotify          = daemon.SdNotify
	sdWatchdogEnabled = daemon.SdWatchdogEnabled
)

// notifier speaks the sd_notify protocol when the daemon runs as a
// Type=notify unit. Outside systemd every call is a no-op.
type notifier struct {
	log     logx.Logger
	enabled atomic.Bool
}

func (n *notifier) send(state string) {
	if !n.enabled.Load() {
		return
	}
	sent, err := sdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if !sent {
		n.log.Debug("sd_notify skipped (NOTIFY_SOCKET unset)", logx.String("state", state))
	}
}

func (n *notifier) ready()    { n.send(daemon.SdNotifyReady) }
func (n *notifier) stopping() { n.send(daemon.SdNotifyStopping) }

func (n *notifier) status(tasks int, held bool) {
	n.send(fmt.Sprintf("STATUS=%d tasks, held=%t", tasks, held))
}

// watchdogInterval returns the ping period (half of WATCHDOG_USEC) or 0.
func watchdogInterval() (time.Duration, error) {
	d, err := sdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0, err
	}
	return d / 2, nil
}

// runWatchdog pings systemd while the tick loop keeps beating. A stalled
// loop stops the pings and lets systemd restart the unit.
func (a *App) runWatchdog(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		last := time.Unix(0, a.beat.Load())
		if age := time.Since(last); age > 2*every {
			a.log.Warn("tick loop stalled; withholding watchdog ping", logx.Duration("age", age))
			continue
		}
		a.sd.send(daemon.SdNotifyWatchdog)
	}
}
