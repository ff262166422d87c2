// Package logind watches systemd-logind for system suspend and resume.
package logind

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	service   = "org.freedesktop.login1"
	path      = "/org/freedesktop/login1"
	iface     = "org.freedesktop.login1.Manager"
	member    = "PrepareForSleep"
	signature = iface + "." + member
)

// WatchResume calls fn every time the system resumes from sleep, until ctx is
// done.
func WatchResume(ctx context.Context, fn func()) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()
	return watch(ctx, conn, fn)
}

func watch(ctx context.Context, conn *dbus.Conn, fn func()) error {
	if err := conn.AddMatchSignalContext(ctx,
		dbus.WithMatchSender(service),
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	); err != nil {
		return fmt.Errorf("subscribe to %s: %w", signature, err)
	}
	ch := make(chan *dbus.Signal, 4)
	conn.Signal(ch)
	defer conn.RemoveSignal(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-ch:
			if !ok {
				return fmt.Errorf("system bus connection closed")
			}
			if IsResume(sig) {
				fn()
			}
		}
	}
}

// IsResume checks whether sig is a PrepareForSleep(false) signal, which logind
// sends once the system has woken up.
func IsResume(sig *dbus.Signal) bool {
	if sig == nil || sig.Name != signature || sig.Path != path || len(sig.Body) != 1 {
		return false
	}
	sleeping, ok := sig.Body[0].(bool)
	return ok && !sleeping
}
