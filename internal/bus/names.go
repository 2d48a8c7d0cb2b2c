// Package bus exposes the engine on the session bus as the
// org.freedesktop.Notifications service, plus a history interface.
package bus

import "github.com/godbus/dbus/v5"

const (
	Name             = "org.freedesktop.Notifications"
	Path             = dbus.ObjectPath("/org/freedesktop/Notifications")
	Interface        = "org.freedesktop.Notifications"
	HistoryInterface = "org.llehouerou.Notifyd.History"

	SignalNotificationClosed = "NotificationClosed"
	SignalActionInvoked      = "ActionInvoked"
	SignalActivationToken    = "ActivationToken"
)

// Error names returned in method error replies.
const (
	ErrorRateLimited = "org.freedesktop.Notifications.Error.RateLimited"
	ErrorNotFound    = "org.freedesktop.Notifications.Error.NotFound"
	ErrorInvalidArgs = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrorFailed      = "org.freedesktop.DBus.Error.Failed"
)
