// Package errmsg provides consistent error formatting for bus replies and logs.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Notification operations
	OpNotify       Op = "post notification"
	OpClose        Op = "close notification"
	OpDismiss      Op = "dismiss notification"
	OpInvokeAction Op = "invoke action"

	// History operations
	OpHistoryLoad  Op = "load history"
	OpHistoryClear Op = "clear history"
	OpGroupsLoad   Op = "load groups"

	// Configuration
	OpConfigLoad   Op = "load configuration"
	OpConfigReload Op = "reload configuration"
	OpConfigWatch  Op = "watch configuration"

	// Bus operations
	OpBusConnect     Op = "connect to session bus"
	OpBusExport      Op = "export bus interface"
	OpBusRequestName Op = "acquire bus name"

	// Initialization
	OpInitialize Op = "initialize daemon"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
