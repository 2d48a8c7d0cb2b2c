//go:build linux

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog"

	"github.com/llehouerou/notifyd/internal/engine"
	"github.com/llehouerou/notifyd/internal/errmsg"
	"github.com/llehouerou/notifyd/internal/hints"
)

// ErrNameTaken is returned when another server owns the bus name.
var ErrNameTaken = errors.New("bus name already owned")

// callTimeout bounds how long a method call waits for the engine.
const callTimeout = 10 * time.Second

// Options configures an Adapter.
type Options struct {
	// Name is the well-known name to own. Defaults to Name.
	Name string
	// Replace takes the name over from a running server.
	Replace bool
}

// Adapter connects the engine Service to the session bus.
type Adapter struct {
	conn    *dbus.Conn
	name    string
	service engine.Service
	sub     *engine.Subscription
	log     zerolog.Logger
	signals chan *dbus.Signal
	lost    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	closing sync.Once
	losing  sync.Once
}

// New exports the Notifications and history interfaces on conn, acquires
// the bus name and starts forwarding engine events as signals. conn stays
// owned by the caller.
func New(conn *dbus.Conn, service engine.Service, log zerolog.Logger, opts Options) (*Adapter, error) {
	if opts.Name == "" {
		opts.Name = Name
	}
	a := &Adapter{
		conn:    conn,
		name:    opts.Name,
		service: service,
		log:     log,
		signals: make(chan *dbus.Signal, 8),
		lost:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if err := a.export(); err != nil {
		return nil, fmt.Errorf("%s: %w", errmsg.OpBusExport, err)
	}

	flags := dbus.NameFlagDoNotQueue | dbus.NameFlagAllowReplacement
	if opts.Replace {
		flags |= dbus.NameFlagReplaceExisting
	}
	reply, err := conn.RequestName(a.name, flags)
	if err != nil {
		a.unexport()
		return nil, fmt.Errorf("%s: %w", errmsg.OpBusRequestName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner && reply != dbus.RequestNameReplyAlreadyOwner {
		a.unexport()
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, a.name)
	}

	if err := conn.AddMatchSignal(nameLostMatch()...); err != nil {
		a.log.Warn().Err(err).Msg("cannot watch for bus name loss")
	}
	conn.Signal(a.signals)

	a.sub = service.Subscribe()
	a.wg.Add(1)
	go a.forward()

	a.log.Info().Str("name", a.name).Msg("bus name acquired")
	return a, nil
}

func (a *Adapter) export() error {
	n := &notifications{a: a}
	h := &history{a: a}
	if err := a.conn.Export(n, Path, Interface); err != nil {
		return err
	}
	if err := a.conn.Export(h, Path, HistoryInterface); err != nil {
		return err
	}
	node := &introspect.Node{
		Name: string(Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			notificationsIntrospection,
			historyIntrospection,
		},
	}
	return a.conn.Export(introspect.NewIntrospectable(node), Path, "org.freedesktop.DBus.Introspectable")
}

func nameLostMatch() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameLost"),
	}
}

// Lost is closed when another server takes the bus name over.
func (a *Adapter) Lost() <-chan struct{} {
	return a.lost
}

func (a *Adapter) unexport() {
	_ = a.conn.Export(nil, Path, Interface)
	_ = a.conn.Export(nil, Path, HistoryInterface)
	_ = a.conn.Export(nil, Path, "org.freedesktop.DBus.Introspectable")
}

// forward turns engine events into bus signals.
func (a *Adapter) forward() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case <-a.sub.Done:
			return
		case sig := <-a.signals:
			if sig.Name == "org.freedesktop.DBus.NameLost" && len(sig.Body) == 1 && sig.Body[0] == a.name {
				a.log.Info().Str("name", a.name).Msg("bus name lost")
				a.losing.Do(func() { close(a.lost) })
			}
		case ev := <-a.sub.Events:
			a.signal(ev)
		}
	}
}

// signal emits the bus signal for ev. Events arrive in engine order, so
// a token precedes its action and the action precedes the close.
func (a *Adapter) signal(ev engine.Event) {
	switch e := ev.(type) {
	case engine.Closed:
		a.emit(SignalNotificationClosed, e.ID, uint32(e.Reason))
	case engine.ActivationToken:
		a.emit(SignalActivationToken, e.ID, e.Token)
	case engine.ActionInvoked:
		a.emit(SignalActionInvoked, e.ID, string(e.Action))
	case engine.Posted:
		a.log.Debug().
			Uint32("id", e.Notification.ID).
			Bool("replaced", e.Replaced).
			Str("app", e.Notification.AppName).
			Msg("notification posted")
	}
}

func (a *Adapter) emit(signal string, values ...interface{}) {
	if err := a.conn.Emit(Path, Interface+"."+signal, values...); err != nil {
		a.log.Warn().Err(err).Str("signal", signal).Msg("emit failed")
	}
}

// Close stops forwarding signals, releases the bus name and unexports the
// interfaces.
func (a *Adapter) Close() error {
	var err error
	a.closing.Do(func() {
		close(a.done)
		a.wg.Wait()
		a.conn.RemoveSignal(a.signals)
		_ = a.conn.RemoveMatchSignal(nameLostMatch()...)
		_, err = a.conn.ReleaseName(a.name)
		a.unexport()
	})
	return err
}

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}

// notifications implements org.freedesktop.Notifications.
type notifications struct {
	a *Adapter
}

func (n *notifications) Notify(
	sender dbus.Sender,
	appName string,
	replacesID uint32,
	appIcon, summary, body string,
	actions []string,
	hintTable map[string]dbus.Variant,
	expireTimeout int32,
) (uint32, *dbus.Error) {
	ctx, cancel := callContext()
	defer cancel()
	id, err := n.a.service.Notify(ctx, engine.Request{
		Sender:        string(sender),
		AppName:       appName,
		ReplacesID:    replacesID,
		AppIcon:       appIcon,
		Summary:       summary,
		Body:          body,
		Actions:       actions,
		Hints:         hints.Parse(hintTable),
		ExpireTimeout: expireTimeout,
	})
	if err != nil {
		return 0, toDBusError(errmsg.OpNotify, err)
	}
	return id, nil
}

func (n *notifications) CloseNotification(id uint32) *dbus.Error {
	ctx, cancel := callContext()
	defer cancel()
	return toDBusError(errmsg.OpClose, n.a.service.CloseNotification(ctx, id))
}

func (n *notifications) GetCapabilities() ([]string, *dbus.Error) {
	return n.a.service.Capabilities(), nil
}

func (n *notifications) GetServerInformation() (name, vendor, version, specVersion string, _ *dbus.Error) {
	info := n.a.service.ServerInfo()
	return info.Name, info.Vendor, info.Version, info.SpecVersion, nil
}

// history implements the history interface.
type history struct {
	a *Adapter
}

func (h *history) GetHistory() ([]HistoryRecord, *dbus.Error) {
	ctx, cancel := callContext()
	defer cancel()
	ns, err := h.a.service.History(ctx)
	if err != nil {
		return nil, toDBusError(errmsg.OpHistoryLoad, err)
	}
	return historyRecords(ns), nil
}

func (h *history) GetHistoryFull() ([]string, *dbus.Error) {
	ctx, cancel := callContext()
	defer cancel()
	ns, err := h.a.service.History(ctx)
	if err != nil {
		return nil, toDBusError(errmsg.OpHistoryLoad, err)
	}
	docs, err := historyJSON(ns)
	if err != nil {
		return nil, toDBusError(errmsg.OpHistoryLoad, err)
	}
	return docs, nil
}

func (h *history) ClearAll() *dbus.Error {
	ctx, cancel := callContext()
	defer cancel()
	n, err := h.a.service.ClearHistory(ctx)
	if err != nil {
		return toDBusError(errmsg.OpHistoryClear, err)
	}
	h.a.log.Debug().Int("records", n).Msg("history cleared")
	return nil
}

func (h *history) Dismiss(id uint32) *dbus.Error {
	ctx, cancel := callContext()
	defer cancel()
	return toDBusError(errmsg.OpDismiss, h.a.service.Dismiss(ctx, id))
}

func (h *history) InvokeAction(id uint32, key, token string) *dbus.Error {
	ctx, cancel := callContext()
	defer cancel()
	return toDBusError(errmsg.OpInvokeAction, h.a.service.InvokeAction(ctx, id, key, token))
}

func (h *history) GetGroups() ([]GroupRecord, *dbus.Error) {
	ctx, cancel := callContext()
	defer cancel()
	gs, err := h.a.service.Groups(ctx)
	if err != nil {
		return nil, toDBusError(errmsg.OpGroupsLoad, err)
	}
	return groupRecords(gs), nil
}
