// Package notify holds the notification record and the typed values attached to it.
package notify

import "time"

// Urgency represents notification priority levels per freedesktop spec.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// ParseUrgency maps a wire urgency byte to an Urgency.
// Unknown values are treated as normal.
func ParseUrgency(v int64) Urgency {
	switch v {
	case 0:
		return UrgencyLow
	case 2:
		return UrgencyCritical
	default:
		return UrgencyNormal
	}
}

// ParseUrgencyName parses "low", "normal" or "critical".
func ParseUrgencyName(s string) (Urgency, bool) {
	switch s {
	case "low":
		return UrgencyLow, true
	case "normal":
		return UrgencyNormal, true
	case "critical":
		return UrgencyCritical, true
	}
	return UrgencyNormal, false
}

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyCritical:
		return "critical"
	default:
		return "normal"
	}
}

// ActionID identifies an action. DefaultAction is the reserved key invoked
// when the notification body itself is activated.
type ActionID string

const DefaultAction ActionID = "default"

// IsDefault reports whether the id is the reserved default action.
func (a ActionID) IsDefault() bool {
	return a == DefaultAction
}

// Action is a caller-defined (id, label) pair.
type Action struct {
	ID    ActionID `json:"id"`
	Label string   `json:"label"`
}

// CloseReason is the reason code carried by the NotificationClosed signal.
type CloseReason uint32

const (
	CloseExpired      CloseReason = 1
	CloseDismissed    CloseReason = 2
	CloseCallerClosed CloseReason = 3
	CloseUndelivered  CloseReason = 4
)

func (r CloseReason) String() string {
	switch r {
	case CloseExpired:
		return "expired"
	case CloseDismissed:
		return "dismissed"
	case CloseCallerClosed:
		return "closed"
	case CloseUndelivered:
		return "undelivered"
	default:
		return "unknown"
	}
}

// Retained reports whether a notification closed for this reason is kept
// in history.
func (r CloseReason) Retained() bool {
	return r == CloseExpired || r == CloseUndelivered
}

// Point is an on-screen position hint.
type Point struct {
	X, Y int32
}

// Link is a detected URL and the byte range of its text in Notification.Body.
type Link struct {
	URL   string `json:"url"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Hints is the typed form of the protocol hint table.
type Hints struct {
	Urgency       Urgency
	Category      string
	DesktopEntry  string
	Resident      bool
	Transient     bool
	ActionIcons   bool
	SoundFile     string
	SoundName     string
	SuppressSound bool
	SenderPID     int64
	Progress      *int
	Position      *Point
	Image         *Image
	Animation     *Animation
}

// HasSound reports whether the caller asked for a sound to be played.
func (h *Hints) HasSound() bool {
	return !h.SuppressSound && (h.SoundFile != "" || h.SoundName != "")
}

// Notification is the canonical notification record.
type Notification struct {
	ID      uint32
	Sender  string // bus unique name of the caller
	AppName string
	AppIcon string
	Summary string
	Body    string // sanitized markup
	Actions []Action
	Hints   Hints
	Links   []Link

	// RequestedTimeout is the caller's expire_timeout in milliseconds.
	RequestedTimeout int32
	// Timeout is the resolved expiry; zero means the notification never expires.
	Timeout time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time

	Quiet     bool // delivered while do-not-disturb was on
	PlaySound bool
}

const (
	recordOverhead = 200
	imageOverhead  = 32
)

// EstimatedSize approximates the memory held by the record in bytes.
func (n *Notification) EstimatedSize() int {
	size := recordOverhead
	size += len(n.AppName) + len(n.AppIcon) + len(n.Summary) + len(n.Body)
	for _, a := range n.Actions {
		size += len(a.ID) + len(a.Label)
	}
	for _, l := range n.Links {
		size += len(l.URL) + 16
	}
	h := &n.Hints
	size += len(h.Category) + len(h.DesktopEntry) + len(h.SoundFile) + len(h.SoundName)
	if h.Image != nil {
		size += h.Image.Size() + imageOverhead
	}
	if h.Animation != nil {
		size += h.Animation.Size() + imageOverhead
	}
	return size
}

// DefaultActionLabel returns the label of the default action, if any.
func (n *Notification) DefaultActionLabel() (string, bool) {
	for _, a := range n.Actions {
		if a.ID.IsDefault() {
			return a.Label, true
		}
	}
	return "", false
}

// ResolveAction picks the action to report for an activation key: the exact
// key when present, else the default action, else the first action.
func (n *Notification) ResolveAction(key ActionID) (ActionID, bool) {
	if len(n.Actions) == 0 {
		return "", false
	}
	for _, a := range n.Actions {
		if a.ID == key {
			return a.ID, true
		}
	}
	if _, ok := n.DefaultActionLabel(); ok {
		return DefaultAction, true
	}
	return n.Actions[0].ID, true
}
