// Package sdnotify reports service readiness and liveness to systemd.
// Every call is a no-op when the process is not run by systemd.
package sdnotify

import (
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	log      *slog.Logger
	watchdog time.Duration
}

// New returns a Notifier. The watchdog interval is read once from the
// environment systemd provides.
func New(log *slog.Logger) *Notifier {
	n := &Notifier{log: log.With(slog.String("component", "sdnotify"))}
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.log.Warn("read watchdog settings", slog.String("error", err.Error()))
	}
	n.watchdog = d
	return n
}

// WatchdogInterval is the interval systemd expects heartbeats at, zero if disabled.
func (n *Notifier) WatchdogInterval() time.Duration { return n.watchdog }

// Ready tells systemd that startup finished.
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

// Stopping tells systemd that an orderly shutdown began.
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Heartbeat pets the watchdog, if one is configured.
func (n *Notifier) Heartbeat() {
	if n.watchdog <= 0 {
		return
	}
	n.send(daemon.SdNotifyWatchdog)
}

func (n *Notifier) send(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", slog.String("state", state), slog.String("error", err.Error()))
		return
	}
	if sent {
		n.log.Debug("sd_notify", slog.String("state", state))
	}
}
