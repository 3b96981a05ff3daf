// Package keepalive provides the anti-idle pinger: a periodic side
// signal that keeps the host (and its supervisor) convinced the bot is
// alive while long stretches pass between deliveries.
package keepalive

import (
	"context"
	"errors"
	"os"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Pinger emits one liveness signal. Workers fire it on their own timer,
// independent of the delivery loop.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Systemd notifies the systemd watchdog. Run the bot as a service with
// WatchdogSec greater than the anti-lock interval and systemd restarts
// the process if the pings stop.
type Systemd struct{}

func (Systemd) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ack, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
	if err != nil {
		return err
	}
	if !ack {
		return errors.New("systemd notification socket unavailable")
	}
	return nil
}

// Noop is the fallback off systemd.
type Noop struct{}

func (Noop) Ping(context.Context) error { return nil }

// New picks Systemd when the notification socket is present, Noop
// otherwise.
func New() Pinger {
	if os.Getenv("NOTIFY_SOCKET") != "" {
		return Systemd{}
	}
	return Noop{}
}
