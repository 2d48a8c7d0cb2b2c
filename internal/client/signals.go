package client

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/llehouerou/notifyd/internal/bus"
	"github.com/llehouerou/notifyd/internal/notify"
)

// EventKind identifies a server signal.
type EventKind int

const (
	EventClosed EventKind = iota + 1
	EventAction
	EventToken
)

// Event is a decoded server signal.
type Event struct {
	Kind   EventKind
	ID     uint32
	Reason notify.CloseReason // EventClosed
	Action string             // EventAction
	Token  string             // EventToken
}

var signalMembers = []string{
	bus.SignalNotificationClosed,
	bus.SignalActionInvoked,
	bus.SignalActivationToken,
}

// Signals delivers server signals until ctx is done. The returned channel
// is closed afterwards.
func (c *Client) Signals(ctx context.Context) (<-chan Event, error) {
	for i, member := range signalMembers {
		if err := c.conn.AddMatchSignal(matchOptions(member)...); err != nil {
			for _, m := range signalMembers[:i] {
				_ = c.conn.RemoveMatchSignal(matchOptions(m)...)
			}
			return nil, err
		}
	}

	raw := make(chan *dbus.Signal, 16)
	c.conn.Signal(raw)
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		defer func() {
			c.conn.RemoveSignal(raw)
			for _, m := range signalMembers {
				_ = c.conn.RemoveMatchSignal(matchOptions(m)...)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-raw:
				if !ok {
					return
				}
				e, ok := decodeSignal(sig)
				if !ok {
					continue
				}
				select {
				case events <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

func matchOptions(member string) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(bus.Path),
		dbus.WithMatchInterface(bus.Interface),
		dbus.WithMatchMember(member),
	}
}

func decodeSignal(sig *dbus.Signal) (Event, bool) {
	if sig.Path != bus.Path || len(sig.Body) != 2 {
		return Event{}, false
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return Event{}, false
	}
	switch sig.Name {
	case bus.Interface + "." + bus.SignalNotificationClosed:
		reason, ok := sig.Body[1].(uint32)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EventClosed, ID: id, Reason: notify.CloseReason(reason)}, true
	case bus.Interface + "." + bus.SignalActionInvoked:
		action, ok := sig.Body[1].(string)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EventAction, ID: id, Action: action}, true
	case bus.Interface + "." + bus.SignalActivationToken:
		token, ok := sig.Body[1].(string)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EventToken, ID: id, Token: token}, true
	}
	return Event{}, false
}
