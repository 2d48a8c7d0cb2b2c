// Package hints turns the protocol's loosely typed hint table into typed
// notification fields and enriches notification content.
package hints

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/llehouerou/notifyd/internal/imaging"
	"github.com/llehouerou/notifyd/internal/notify"
)

// SourceKind selects the variant of an ImageSource.
type SourceKind uint8

const (
	SourceRaw SourceKind = iota
	SourcePath
	SourceName
)

// ImageSource is an undecoded image hint.
type ImageSource struct {
	Kind SourceKind
	Raw  imaging.RawData
	Path string
	Name string
}

// Table is the parsed hint table. Image sources are kept undecoded, in
// precedence order: raw data, file path, icon name.
type Table struct {
	Hints  notify.Hints
	Images []ImageSource
	// Invalid lists keys whose values had the wrong type.
	Invalid []string
}

// Parse converts a raw hint table. Unknown keys are ignored. A malformed
// value drops that hint only.
func Parse(raw map[string]dbus.Variant) Table {
	var (
		t                  Table
		rawImage, pathHint *ImageSource
		x, y               *int32
	)
	t.Hints.Urgency = notify.UrgencyNormal
	for key, v := range raw {
		ok := safely(func() bool {
			switch key {
			case "urgency":
				n, ok := asInt(v)
				if ok {
					t.Hints.Urgency = notify.ParseUrgency(n)
				}
				return ok
			case "category":
				return asString(v, &t.Hints.Category)
			case "desktop-entry":
				return asString(v, &t.Hints.DesktopEntry)
			case "resident":
				return asBool(v, &t.Hints.Resident)
			case "transient":
				return asBool(v, &t.Hints.Transient)
			case "action-icons":
				return asBool(v, &t.Hints.ActionIcons)
			case "sound-file":
				return asString(v, &t.Hints.SoundFile)
			case "sound-name":
				return asString(v, &t.Hints.SoundName)
			case "suppress-sound":
				return asBool(v, &t.Hints.SuppressSound)
			case "sender-pid":
				n, ok := asInt(v)
				if ok {
					t.Hints.SenderPID = n
				}
				return ok
			case "value":
				n, ok := asInt(v)
				if ok {
					p := int(min(max(n, 0), 100))
					t.Hints.Progress = &p
				}
				return ok
			case "x", "y":
				n, ok := asInt(v)
				if ok {
					c := int32(n)
					if key == "x" {
						x = &c
					} else {
						y = &c
					}
				}
				return ok
			case "image-data", "image_data", "icon_data":
				// image-data wins over its deprecated spellings.
				if rawImage != nil && key != "image-data" {
					return true
				}
				d, ok := asImageData(v)
				if ok {
					rawImage = &ImageSource{Kind: SourceRaw, Raw: d}
				}
				return ok
			case "image-path", "image_path":
				if pathHint != nil && key != "image-path" {
					return true
				}
				var s string
				if !asString(v, &s) {
					return false
				}
				pathHint = imagePathSource(s)
				return true
			}
			return true
		})
		if !ok {
			t.Invalid = append(t.Invalid, key)
		}
	}
	if x != nil && y != nil {
		t.Hints.Position = &notify.Point{X: *x, Y: *y}
	}
	if rawImage != nil {
		t.Images = append(t.Images, *rawImage)
	}
	if pathHint != nil {
		// A file path outranks an icon name; both come from the same hint.
		t.Images = append(t.Images, *pathHint)
	}
	return t
}

// safely runs fn, treating a panic as a malformed value.
func safely(fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return fn()
}

// imagePathSource interprets an image-path value: a file:// URL or an
// absolute path is a file, anything else is an icon name.
func imagePathSource(s string) *ImageSource {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "file://") {
		u, err := url.Parse(s)
		if err != nil || u.Path == "" {
			return nil
		}
		return &ImageSource{Kind: SourcePath, Path: filepath.Clean(u.Path)}
	}
	if filepath.IsAbs(s) {
		return &ImageSource{Kind: SourcePath, Path: filepath.Clean(s)}
	}
	return &ImageSource{Kind: SourceName, Name: s}
}

// ResolveIcon interprets an app_icon value the same way as image-path.
func ResolveIcon(s string) (ImageSource, bool) {
	src := imagePathSource(s)
	if src == nil {
		return ImageSource{}, false
	}
	return *src, true
}

func asInt(v dbus.Variant) (int64, bool) {
	switch n := v.Value().(type) {
	case byte:
		return int64(n), true
	case int16:
		return int64(n), true
	case uint16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > 1<<62 {
			return 1 << 62, true
		}
		return int64(n), true //nolint:gosec // bounded above
	case int:
		return int64(n), true
	}
	return 0, false
}

func asBool(v dbus.Variant, dst *bool) bool {
	switch b := v.Value().(type) {
	case bool:
		*dst = b
		return true
	default:
		if n, ok := asInt(v); ok {
			*dst = n != 0
			return true
		}
	}
	return false
}

func asString(v dbus.Variant, dst *string) bool {
	s, ok := v.Value().(string)
	if ok {
		*dst = s
	}
	return ok
}

// asImageData decodes an (iiibiiay) struct.
func asImageData(v dbus.Variant) (imaging.RawData, bool) {
	fields, ok := v.Value().([]interface{})
	if !ok || len(fields) != 7 {
		return imaging.RawData{}, false
	}
	var d imaging.RawData
	ints := []*int32{&d.Width, &d.Height, &d.RowStride}
	for i, dst := range ints {
		n, ok := fields[i].(int32)
		if !ok {
			return imaging.RawData{}, false
		}
		*dst = n
	}
	if d.HasAlpha, ok = fields[3].(bool); !ok {
		return imaging.RawData{}, false
	}
	if d.BitsPerSample, ok = fields[4].(int32); !ok {
		return imaging.RawData{}, false
	}
	if d.Channels, ok = fields[5].(int32); !ok {
		return imaging.RawData{}, false
	}
	if d.Data, ok = fields[6].([]byte); !ok {
		return imaging.RawData{}, false
	}
	return d, true
}

// ParseActions pairs a flat [id, label, id, label, ...] list. A trailing
// unpaired entry is dropped, as are empty and duplicate ids. At most
// MaxActions are kept.
func ParseActions(flat []string) []notify.Action {
	var actions []notify.Action
	seen := make(map[string]bool)
	for i := 0; i+1 < len(flat) && len(actions) < MaxActions; i += 2 {
		id := flat[i]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		actions = append(actions, notify.Action{ID: notify.ActionID(id), Label: flat[i+1]})
	}
	return actions
}

// String describes the source for logs.
func (s ImageSource) String() string {
	switch s.Kind {
	case SourceRaw:
		return fmt.Sprintf("raw %dx%d", s.Raw.Width, s.Raw.Height)
	case SourcePath:
		return "file " + s.Path
	default:
		return "icon " + s.Name
	}
}
