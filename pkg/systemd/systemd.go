// Package systemd reports service state to systemd via sd_notify.
// Outside systemd (NOTIFY_SOCKET unset) every call is a no-op.
package systemd

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd that startup finished. status is shown by systemctl.
func Ready(status string) (bool, error) {
	return notify(daemon.SdNotifyReady, status)
}

// Stopping tells systemd that shutdown began.
func Stopping(status string) (bool, error) {
	return notify(daemon.SdNotifyStopping, status)
}

// Status updates the free-form status line only.
func Status(status string) (bool, error) {
	return daemon.SdNotify(false, "STATUS="+status)
}

func notify(state, status string) (bool, error) {
	msg := state
	if status != "" {
		msg = fmt.Sprintf("%s\nSTATUS=%s", state, status)
	}
	return daemon.SdNotify(false, msg)
}
