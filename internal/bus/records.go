package bus

import (
	"encoding/json"
	"time"

	"github.com/llehouerou/notifyd/internal/notify"
)

// HistoryRecord is one GetHistory entry, marshalled as (usssx).
type HistoryRecord struct {
	ID        uint32
	AppName   string
	Summary   string
	Body      string
	AppIcon   string
	Timestamp int64 // unix seconds
}

// GroupRecord is one GetGroups entry, marshalled as (ssau).
type GroupRecord struct {
	Key   string
	Label string
	IDs   []uint32
}

// HistoryEntry is the JSON form returned by GetHistoryFull.
type HistoryEntry struct {
	ID           uint32          `json:"id"`
	AppName      string          `json:"app_name"`
	AppIcon      string          `json:"app_icon,omitempty"`
	Summary      string          `json:"summary"`
	Body         string          `json:"body"`
	Actions      []notify.Action `json:"actions,omitempty"`
	Links        []notify.Link   `json:"links,omitempty"`
	Urgency      string          `json:"urgency"`
	Category     string          `json:"category,omitempty"`
	DesktopEntry string          `json:"desktop_entry,omitempty"`
	Progress     *int            `json:"progress,omitempty"`
	Image        *ImageInfo      `json:"image,omitempty"`
	Frames       int             `json:"frames,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ImageInfo describes a notification image without its pixels.
type ImageInfo struct {
	Kind   string `json:"kind"`
	Name   string `json:"name,omitempty"`
	Path   string `json:"path,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

func historyRecords(ns []notify.Notification) []HistoryRecord {
	out := make([]HistoryRecord, len(ns))
	for i := range ns {
		n := &ns[i]
		out[i] = HistoryRecord{
			ID:        n.ID,
			AppName:   n.AppName,
			Summary:   n.Summary,
			Body:      n.Body,
			AppIcon:   n.AppIcon,
			Timestamp: n.CreatedAt.Unix(),
		}
	}
	return out
}

func historyEntry(n *notify.Notification) HistoryEntry {
	e := HistoryEntry{
		ID:           n.ID,
		AppName:      n.AppName,
		AppIcon:      n.AppIcon,
		Summary:      n.Summary,
		Body:         n.Body,
		Actions:      n.Actions,
		Links:        n.Links,
		Urgency:      n.Hints.Urgency.String(),
		Category:     n.Hints.Category,
		DesktopEntry: n.Hints.DesktopEntry,
		Progress:     n.Hints.Progress,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
	if img := n.Hints.Image; img != nil {
		e.Image = &ImageInfo{Kind: img.Kind.String(), Name: img.Name, Path: img.Path}
		if img.Raw != nil {
			e.Image.Width, e.Image.Height = img.Raw.Width, img.Raw.Height
		}
	}
	if anim := n.Hints.Animation; anim != nil {
		e.Frames = len(anim.Frames)
	}
	return e
}

// historyJSON encodes each record as one JSON document.
func historyJSON(ns []notify.Notification) ([]string, error) {
	out := make([]string, 0, len(ns))
	for i := range ns {
		b, err := json.Marshal(historyEntry(&ns[i]))
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

func groupRecords(gs []notify.Group) []GroupRecord {
	out := make([]GroupRecord, len(gs))
	for i := range gs {
		g := &gs[i]
		ids := make([]uint32, len(g.Notifications))
		for j := range g.Notifications {
			ids[j] = g.Notifications[j].ID
		}
		out[i] = GroupRecord{Key: g.Key, Label: g.Label(), IDs: ids}
	}
	return out
}
