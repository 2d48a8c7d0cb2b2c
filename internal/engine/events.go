package engine

import "github.com/llehouerou/notifyd/internal/notify"

// Event is one of Posted, Closed, ActionInvoked or ActivationToken.
type Event interface {
	// NotificationID returns the id the event is about.
	NotificationID() uint32
	event()
}

// Posted is emitted when a notification becomes live or is updated in place.
//
// Emitted once enrichment has committed, never for a request whose
// enrichment was superseded by a later replace or close.
type Posted struct {
	Notification notify.Notification
	Replaced     bool
}

// Closed is emitted on every close transition, including requests that
// were closed before their enrichment completed.
type Closed struct {
	ID     uint32
	Reason notify.CloseReason
}

// ActionInvoked is emitted when a consumer activates an action.
type ActionInvoked struct {
	ID     uint32
	Action notify.ActionID
}

// ActivationToken is emitted before ActionInvoked when the consumer
// supplied an activation token.
type ActivationToken struct {
	ID    uint32
	Token string
}

func (p Posted) NotificationID() uint32 { return p.Notification.ID }
func (c Closed) NotificationID() uint32 { return c.ID }
func (a ActionInvoked) NotificationID() uint32 { return a.ID }
func (a ActivationToken) NotificationID() uint32 { return a.ID }

func (Posted) event() {}
func (Closed) event() {}
func (ActionInvoked) event() {}
func (ActivationToken) event() {}
