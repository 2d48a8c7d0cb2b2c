package notify

import (
	"fmt"
	"strings"
)

// GroupingMode selects how live notifications are grouped for presentation.
type GroupingMode string

const (
	GroupNone     GroupingMode = "none"
	GroupApp      GroupingMode = "app"
	GroupCategory GroupingMode = "category"
)

// Group is a set of notifications sharing an application or category.
// Notifications are ordered newest first.
type Group struct {
	Key           string
	Name          string
	Notifications []Notification
}

// Label returns the display name, with a count when the group holds more
// than one notification.
func (g *Group) Label() string {
	if len(g.Notifications) > 1 {
		return fmt.Sprintf("%s (%d)", g.Name, len(g.Notifications))
	}
	return g.Name
}

const uncategorized = "uncategorized"

// categoryKey folds related category prefixes together.
func categoryKey(category string) (key, name string) {
	switch {
	case category == "":
		return uncategorized, "Other"
	case category == "email" || strings.HasPrefix(category, "email."):
		return "email", "Email"
	case category == "im" || strings.HasPrefix(category, "im."):
		return "im", "Messages"
	case category == "network" || strings.HasPrefix(category, "network."):
		return "network", "Network"
	case category == "device" || strings.HasPrefix(category, "device."):
		return "device", "Devices"
	default:
		return category, category
	}
}

// GroupKey returns the group key and display name of n under mode.
func GroupKey(n *Notification, mode GroupingMode) (key, name string) {
	switch mode {
	case GroupApp:
		if n.AppName == "" {
			return "", "Unknown"
		}
		return n.AppName, n.AppName
	case GroupCategory:
		return categoryKey(n.Hints.Category)
	default:
		return fmt.Sprintf("#%d", n.ID), n.AppName
	}
}

// GroupNotifications groups ns, which must be ordered newest first. Groups are
// ordered by their newest member.
func GroupNotifications(ns []Notification, mode GroupingMode) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, n := range ns {
		key, name := GroupKey(&n, mode)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, Name: name})
		}
		groups[i].Notifications = append(groups[i].Notifications, n)
	}
	return groups
}
