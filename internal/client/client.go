// Package client talks to a notification server over the session bus.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/llehouerou/notifyd/internal/bus"
	"github.com/llehouerou/notifyd/internal/notify"
)

// Message is a notification to send.
type Message struct {
	AppName    string
	ReplacesID uint32
	Icon       string // icon name or path
	Summary    string
	Body       string
	// Actions maps to the flat key/label list of the protocol.
	Actions []notify.Action
	// Timeout in milliseconds. -1 lets the server decide, 0 never expires.
	Timeout int32

	Urgency      notify.Urgency
	Category     string
	DesktopEntry string
	ImagePath    string
	SoundName    string
	Progress     *int
	Resident     bool
	Transient    bool

	// Extra hints are sent as-is and override the typed fields.
	Extra map[string]dbus.Variant
}

func (m *Message) hints() map[string]dbus.Variant {
	h := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(m.Urgency)),
	}
	if m.Category != "" {
		h["category"] = dbus.MakeVariant(m.Category)
	}
	if m.DesktopEntry != "" {
		h["desktop-entry"] = dbus.MakeVariant(m.DesktopEntry)
	}
	if m.ImagePath != "" {
		h["image-path"] = dbus.MakeVariant(m.ImagePath)
	}
	if m.SoundName != "" {
		h["sound-name"] = dbus.MakeVariant(m.SoundName)
	}
	if m.Progress != nil {
		h["value"] = dbus.MakeVariant(int32(*m.Progress))
	}
	if m.Resident {
		h["resident"] = dbus.MakeVariant(true)
	}
	if m.Transient {
		h["transient"] = dbus.MakeVariant(true)
	}
	for k, v := range m.Extra {
		h[k] = v
	}
	return h
}

func (m *Message) actions() []string {
	out := make([]string, 0, len(m.Actions)*2)
	for _, a := range m.Actions {
		out = append(out, string(a.ID), a.Label)
	}
	return out
}

// ServerInfo is the reply of GetServerInformation.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// Client calls a notification server.
type Client struct {
	conn  *dbus.Conn
	obj   dbus.BusObject
	owned bool
}

// New connects to the session bus and targets the standard server name.
func New() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	c := NewWithConn(conn, bus.Name)
	c.owned = true
	return c, nil
}

// NewWithConn targets the server owning name on an existing connection.
// The connection stays owned by the caller.
func NewWithConn(conn *dbus.Conn, name string) *Client {
	return &Client{conn: conn, obj: conn.Object(name, bus.Path)}
}

// Shutdown closes the connection if the client opened it.
func (c *Client) Shutdown() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

// Notify sends a notification and returns its id.
func (c *Client) Notify(ctx context.Context, m Message) (uint32, error) {
	// Notify(app_name, replaces_id, icon, summary, body, actions, hints, timeout) -> id
	call := c.obj.CallWithContext(ctx,
		bus.Interface+".Notify",
		0,
		m.AppName,
		m.ReplacesID,
		m.Icon,
		m.Summary,
		m.Body,
		m.actions(),
		m.hints(),
		m.Timeout,
	)
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Close closes a notification by id.
func (c *Client) Close(ctx context.Context, id uint32) error {
	return c.obj.CallWithContext(ctx, bus.Interface+".CloseNotification", 0, id).Err
}

// Capabilities lists the optional features the server supports.
func (c *Client) Capabilities(ctx context.Context) ([]string, error) {
	var caps []string
	err := c.obj.CallWithContext(ctx, bus.Interface+".GetCapabilities", 0).Store(&caps)
	return caps, err
}

func (c *Client) ServerInformation(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := c.obj.CallWithContext(ctx, bus.Interface+".GetServerInformation", 0).
		Store(&info.Name, &info.Vendor, &info.Version, &info.SpecVersion)
	return info, err
}

// History returns the summary records of retained notifications.
func (c *Client) History(ctx context.Context) ([]bus.HistoryRecord, error) {
	var records []bus.HistoryRecord
	err := c.obj.CallWithContext(ctx, bus.HistoryInterface+".GetHistory", 0).Store(&records)
	return records, err
}

// HistoryFull returns the full retained records.
func (c *Client) HistoryFull(ctx context.Context) ([]bus.HistoryEntry, error) {
	var docs []string
	if err := c.obj.CallWithContext(ctx, bus.HistoryInterface+".GetHistoryFull", 0).Store(&docs); err != nil {
		return nil, err
	}
	entries := make([]bus.HistoryEntry, len(docs))
	for i, doc := range docs {
		if err := json.Unmarshal([]byte(doc), &entries[i]); err != nil {
			return nil, fmt.Errorf("decode history record %d: %w", i, err)
		}
	}
	return entries, nil
}

// ClearAll empties the history.
func (c *Client) ClearAll(ctx context.Context) error {
	return c.obj.CallWithContext(ctx, bus.HistoryInterface+".ClearAll", 0).Err
}

// Dismiss removes a live or retained notification.
func (c *Client) Dismiss(ctx context.Context, id uint32) error {
	return c.obj.CallWithContext(ctx, bus.HistoryInterface+".Dismiss", 0, id).Err
}

// InvokeAction activates an action as if the user clicked it.
func (c *Client) InvokeAction(ctx context.Context, id uint32, key, token string) error {
	return c.obj.CallWithContext(ctx, bus.HistoryInterface+".InvokeAction", 0, id, key, token).Err
}

// Groups returns the live notifications grouped by the server's mode.
func (c *Client) Groups(ctx context.Context) ([]bus.GroupRecord, error) {
	var groups []bus.GroupRecord
	err := c.obj.CallWithContext(ctx, bus.HistoryInterface+".GetGroups", 0).Store(&groups)
	return groups, err
}
