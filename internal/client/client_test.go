package client

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/notifyd/internal/bus"
	"github.com/llehouerou/notifyd/internal/notify"
)

func TestMessageHints(t *testing.T) {
	progress := 30
	m := Message{
		Urgency:      notify.UrgencyCritical,
		Category:     "email.arrived",
		DesktopEntry: "thunderbird",
		Progress:     &progress,
		Resident:     true,
		Extra:        map[string]dbus.Variant{"category": dbus.MakeVariant("im")},
	}

	h := m.hints()
	assert.Equal(t, byte(2), h["urgency"].Value())
	assert.Equal(t, "im", h["category"].Value(), "extra hints override typed fields")
	assert.Equal(t, "thunderbird", h["desktop-entry"].Value())
	assert.Equal(t, int32(30), h["value"].Value())
	assert.Equal(t, true, h["resident"].Value())
	assert.NotContains(t, h, "transient")
	assert.NotContains(t, h, "image-path")
}

func TestMessageActions(t *testing.T) {
	m := Message{Actions: []notify.Action{{ID: "default", Label: "Open"}, {ID: "reply", Label: "Reply"}}}
	assert.Equal(t, []string{"default", "Open", "reply", "Reply"}, m.actions())
	assert.Empty(t, (&Message{}).actions())
}

func TestDecodeSignal(t *testing.T) {
	tests := []struct {
		name string
		sig  dbus.Signal
		want Event
		ok   bool
	}{
		{
			name: "closed",
			sig:  dbus.Signal{Path: bus.Path, Name: bus.Interface + ".NotificationClosed", Body: []interface{}{uint32(4), uint32(2)}},
			want: Event{Kind: EventClosed, ID: 4, Reason: notify.CloseDismissed},
			ok:   true,
		},
		{
			name: "action",
			sig:  dbus.Signal{Path: bus.Path, Name: bus.Interface + ".ActionInvoked", Body: []interface{}{uint32(5), "reply"}},
			want: Event{Kind: EventAction, ID: 5, Action: "reply"},
			ok:   true,
		},
		{
			name: "token",
			sig:  dbus.Signal{Path: bus.Path, Name: bus.Interface + ".ActivationToken", Body: []interface{}{uint32(5), "tok"}},
			want: Event{Kind: EventToken, ID: 5, Token: "tok"},
			ok:   true,
		},
		{
			name: "other path",
			sig:  dbus.Signal{Path: "/elsewhere", Name: bus.Interface + ".ActionInvoked", Body: []interface{}{uint32(5), "x"}},
		},
		{
			name: "wrong body type",
			sig:  dbus.Signal{Path: bus.Path, Name: bus.Interface + ".NotificationClosed", Body: []interface{}{uint32(4), "2"}},
		},
		{
			name: "unknown member",
			sig:  dbus.Signal{Path: bus.Path, Name: bus.Interface + ".Other", Body: []interface{}{uint32(4), uint32(2)}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeSignal(&tt.sig)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotifyAgainstSessionServer(t *testing.T) {
	// Skip if no D-Bus session (CI environment)
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		t.Skip("no D-Bus session available")
	}

	c, err := New()
	require.NoError(t, err)
	defer c.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.ServerInformation(ctx); err != nil {
		t.Skipf("no notification server on the session bus: %v", err)
	}

	id, err := c.Notify(ctx, Message{
		AppName: "notifyd-test",
		Summary: "Test notification from unit test",
		Timeout: 1000,
		Urgency: notify.UrgencyLow,
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	id2, err := c.Notify(ctx, Message{
		AppName:    "notifyd-test",
		Summary:    "Replaced",
		Timeout:    1000,
		ReplacesID: id,
	})
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	require.NoError(t, c.Close(ctx, id2))
}
