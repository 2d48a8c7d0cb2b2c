// notifyctl sends test notifications to a running server and inspects
// its history.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/llehouerou/notifyd/internal/client"
	"github.com/llehouerou/notifyd/internal/notify"
)

const callTimeout = 10 * time.Second

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *client.Client, args []string, out io.Writer) error
}

var commands = []command{
	{"send", "send a notification", runSend},
	{"close", "close a notification by id", runClose},
	{"history", "list retained notifications", runHistory},
	{"clear", "empty the history", runClear},
	{"invoke", "invoke an action of a notification", runInvoke},
	{"info", "print server information and capabilities", runInfo},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "notifyctl: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: notifyctl <command> [flags]")
	fmt.Fprintln(w)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	c, err := client.New()
	if err != nil {
		return fmt.Errorf("connect to session bus: %w", err)
	}
	defer c.Shutdown()

	return cmd.run(context.Background(), c, args[1:], out)
}

// sendOptions holds the flags of the send command.
type sendOptions struct {
	app       string
	icon      string
	image     string
	replaces  uint32
	timeout   int32
	urgency   string
	category  string
	entry     string
	actions   []string
	progress  int
	resident  bool
	transient bool
	sound     string
	wait      bool
}

func parseSend(args []string) (client.Message, sendOptions, error) {
	var o sendOptions
	fs := pflag.NewFlagSet("send", pflag.ContinueOnError)
	fs.StringVarP(&o.app, "app", "a", "notifyctl", "application name")
	fs.StringVarP(&o.icon, "icon", "i", "", "icon name or path")
	fs.StringVar(&o.image, "image", "", "image path hint")
	fs.Uint32VarP(&o.replaces, "replaces", "r", 0, "id of the notification to replace")
	fs.Int32VarP(&o.timeout, "timeout", "t", -1, "expiry in milliseconds (-1 server default, 0 never)")
	fs.StringVarP(&o.urgency, "urgency", "u", "normal", "low, normal or critical")
	fs.StringVarP(&o.category, "category", "c", "", "category hint")
	fs.StringVar(&o.entry, "desktop-entry", "", "desktop entry hint")
	fs.StringArrayVarP(&o.actions, "action", "A", nil, "action as key=label (repeatable)")
	fs.IntVarP(&o.progress, "progress", "p", -1, "progress value 0-100")
	fs.BoolVar(&o.resident, "resident", false, "keep the notification after an action")
	fs.BoolVar(&o.transient, "transient", false, "never keep the notification in history")
	fs.StringVar(&o.sound, "sound", "", "sound name hint")
	fs.BoolVarP(&o.wait, "wait", "w", false, "print signals for the notification until it closes")
	if err := fs.Parse(args); err != nil {
		return client.Message{}, o, err
	}
	rest := fs.Args()
	if len(rest) < 1 || len(rest) > 2 {
		return client.Message{}, o, fmt.Errorf("%w: send SUMMARY [BODY]", errUsage)
	}

	urgency, ok := notify.ParseUrgencyName(o.urgency)
	if !ok {
		return client.Message{}, o, fmt.Errorf("unknown urgency %q", o.urgency)
	}

	m := client.Message{
		AppName:      o.app,
		ReplacesID:   o.replaces,
		Icon:         o.icon,
		Summary:      rest[0],
		Timeout:      o.timeout,
		Urgency:      urgency,
		Category:     o.category,
		DesktopEntry: o.entry,
		ImagePath:    o.image,
		SoundName:    o.sound,
		Resident:     o.resident,
		Transient:    o.transient,
	}
	if len(rest) == 2 {
		m.Body = rest[1]
	}
	if o.progress >= 0 {
		m.Progress = &o.progress
	}
	for _, a := range o.actions {
		key, label, found := strings.Cut(a, "=")
		if !found {
			label = key
		}
		m.Actions = append(m.Actions, notify.Action{ID: notify.ActionID(key), Label: label})
	}
	return m, o, nil
}

func runSend(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	m, o, err := parseSend(args)
	if err != nil {
		return err
	}

	var events <-chan client.Event
	if o.wait {
		waitCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		// Subscribe before sending so a fast close is not missed.
		if events, err = c.Signals(waitCtx); err != nil {
			return err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	id, err := c.Notify(callCtx, m)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id)

	if !o.wait {
		return nil
	}
	for e := range events {
		if e.ID != id {
			continue
		}
		switch e.Kind {
		case client.EventAction:
			fmt.Fprintf(out, "action %s\n", e.Action)
		case client.EventToken:
			fmt.Fprintf(out, "token %s\n", e.Token)
		case client.EventClosed:
			fmt.Fprintf(out, "closed %s\n", e.Reason)
			return nil
		}
	}
	return nil
}

func parseID(args []string, name string) (uint32, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: %s ID", errUsage, name)
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return uint32(id), nil
}

func runClose(ctx context.Context, c *client.Client, args []string, _ io.Writer) error {
	fs := pflag.NewFlagSet("close", pflag.ContinueOnError)
	dismiss := fs.BoolP("dismiss", "d", false, "dismiss as the user would, including history records")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args(), "close")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if *dismiss {
		return c.Dismiss(ctx, id)
	}
	return c.Close(ctx, id)
}

func runHistory(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("history", pflag.ContinueOnError)
	full := fs.BoolP("full", "f", false, "include hints and actions")
	groups := fs.BoolP("groups", "g", false, "list live notification groups instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	switch {
	case *groups:
		gs, err := c.Groups(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "GROUP\tIDS")
		for _, g := range gs {
			ids := make([]string, len(g.IDs))
			for i, id := range g.IDs {
				ids[i] = strconv.FormatUint(uint64(id), 10)
			}
			fmt.Fprintf(tw, "%s\t%s\n", g.Label, strings.Join(ids, ","))
		}
	case *full:
		entries, err := c.HistoryFull(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "ID\tAGE\tAPP\tURGENCY\tSUMMARY\tACTIONS")
		for _, e := range entries {
			actions := make([]string, len(e.Actions))
			for i, a := range e.Actions {
				actions[i] = string(a.ID)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				e.ID, humanize.Time(e.CreatedAt), e.AppName, e.Urgency, e.Summary, strings.Join(actions, ","))
		}
	default:
		records, err := c.History(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "ID\tAGE\tAPP\tSUMMARY")
		for _, r := range records {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, humanize.Time(time.Unix(r.Timestamp, 0)), r.AppName, r.Summary)
		}
	}
	return nil
}

func runClear(ctx context.Context, c *client.Client, _ []string, _ io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.ClearAll(ctx)
}

func runInvoke(ctx context.Context, c *client.Client, args []string, _ io.Writer) error {
	fs := pflag.NewFlagSet("invoke", pflag.ContinueOnError)
	token := fs.String("token", "", "activation token to pass along")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args(), "invoke")
	if err != nil {
		return err
	}
	key := "default"
	if rest := fs.Args(); len(rest) > 1 {
		key = rest[1]
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.InvokeAction(ctx, id, key, *token)
}

func runInfo(ctx context.Context, c *client.Client, _ []string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	info, err := c.ServerInformation(ctx)
	if err != nil {
		return err
	}
	caps, err := c.Capabilities(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s (%s), protocol %s\n", info.Name, info.Version, info.Vendor, info.SpecVersion)
	fmt.Fprintf(out, "capabilities: %s\n", strings.Join(caps, " "))
	return nil
}
