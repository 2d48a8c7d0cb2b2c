package bus

import "github.com/godbus/dbus/v5/introspect"

func in(name, typ string) introspect.Arg {
	return introspect.Arg{Name: name, Type: typ, Direction: "in"}
}

func out(name, typ string) introspect.Arg {
	return introspect.Arg{Name: name, Type: typ, Direction: "out"}
}

var notificationsIntrospection = introspect.Interface{
	Name: Interface,
	Methods: []introspect.Method{
		{
			Name: "Notify",
			Args: []introspect.Arg{
				in("app_name", "s"),
				in("replaces_id", "u"),
				in("app_icon", "s"),
				in("summary", "s"),
				in("body", "s"),
				in("actions", "as"),
				in("hints", "a{sv}"),
				in("expire_timeout", "i"),
				out("id", "u"),
			},
		},
		{Name: "CloseNotification", Args: []introspect.Arg{in("id", "u")}},
		{Name: "GetCapabilities", Args: []introspect.Arg{out("capabilities", "as")}},
		{
			Name: "GetServerInformation",
			Args: []introspect.Arg{
				out("name", "s"),
				out("vendor", "s"),
				out("version", "s"),
				out("spec_version", "s"),
			},
		},
	},
	Signals: []introspect.Signal{
		{
			Name: SignalNotificationClosed,
			Args: []introspect.Arg{{Name: "id", Type: "u"}, {Name: "reason", Type: "u"}},
		},
		{
			Name: SignalActionInvoked,
			Args: []introspect.Arg{{Name: "id", Type: "u"}, {Name: "action_key", Type: "s"}},
		},
		{
			Name: SignalActivationToken,
			Args: []introspect.Arg{{Name: "id", Type: "u"}, {Name: "activation_token", Type: "s"}},
		},
	},
}

var historyIntrospection = introspect.Interface{
	Name: HistoryInterface,
	Methods: []introspect.Method{
		{Name: "GetHistory", Args: []introspect.Arg{out("records", "a(usssx)")}},
		{Name: "GetHistoryFull", Args: []introspect.Arg{out("records", "as")}},
		{Name: "ClearAll"},
		{Name: "Dismiss", Args: []introspect.Arg{in("id", "u")}},
		{
			Name: "InvokeAction",
			Args: []introspect.Arg{in("id", "u"), in("action_key", "s"), in("activation_token", "s")},
		},
		{Name: "GetGroups", Args: []introspect.Arg{out("groups", "a(ssau)")}},
	},
}
