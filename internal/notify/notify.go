// Package notify delivers desktop notifications over the session bus.
package notify

import (
	"fmt"
	"time"

	"github.com/esiqveland/notify"
	"github.com/godbus/dbus/v5"
)

const appName = "scopetray"

// Notifier sends org.freedesktop.Notifications messages. A nil Notifier or a
// Notifier without a connection discards everything, so callers never need an
// existence check.
type Notifier struct {
	conn *dbus.Conn
	icon string
}

// New returns a notifier using conn. conn may be nil.
func New(conn *dbus.Conn) *Notifier {
	return &Notifier{conn: conn, icon: "applications-games"}
}

// Send shows a transient notification. Failures are returned, never fatal.
func (n *Notifier) Send(summary, body string) error {
	if n == nil || n.conn == nil {
		return nil
	}
	_, err := notify.SendNotification(n.conn, notify.Notification{
		AppName:       appName,
		AppIcon:       n.icon,
		Summary:       summary,
		Body:          body,
		ExpireTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
