package notify

import "time"

// ImageKind selects the variant held by an Image.
type ImageKind uint8

const (
	ImageNone ImageKind = iota
	ImageNamed
	ImageFile
	ImageRaw
)

func (k ImageKind) String() string {
	switch k {
	case ImageNamed:
		return "named"
	case ImageFile:
		return "file"
	case ImageRaw:
		return "raw"
	default:
		return "none"
	}
}

// Image is a notification image. Named images are resolved by the
// presentation layer. File images carry the decoded pixels in Raw.
type Image struct {
	Kind ImageKind
	Name string
	Path string
	Raw  *RawImage
}

// Size returns the number of pixel bytes held by the image.
func (i *Image) Size() int {
	if i == nil || i.Raw == nil {
		return 0
	}
	return len(i.Raw.Pix)
}

// RawImage is tightly packed, non-premultiplied RGBA. len(Pix) == Width*Height*4.
type RawImage struct {
	Width  int
	Height int
	Pix    []byte
}

// Valid reports whether the buffer length matches the dimensions.
func (r *RawImage) Valid() bool {
	return r != nil && r.Width > 0 && r.Height > 0 && len(r.Pix) == r.Width*r.Height*4
}

// Frame is one animation frame and how long it stays on screen.
type Frame struct {
	Image    RawImage
	Duration time.Duration
}

// Animation is an ordered sequence of frames.
type Animation struct {
	Frames []Frame
}

// TotalDuration is the sum of all frame durations.
func (a *Animation) TotalDuration() time.Duration {
	var d time.Duration
	for _, f := range a.Frames {
		d += f.Duration
	}
	return d
}

// Size returns the number of pixel bytes across all frames.
func (a *Animation) Size() int {
	if a == nil {
		return 0
	}
	n := 0
	for _, f := range a.Frames {
		n += len(f.Image.Pix)
	}
	return n
}

// FrameAt returns the frame shown at elapsed time t, looping.
func (a *Animation) FrameAt(t time.Duration) *Frame {
	if len(a.Frames) == 0 {
		return nil
	}
	total := a.TotalDuration()
	if total <= 0 {
		return &a.Frames[0]
	}
	t %= total
	for i := range a.Frames {
		if t < a.Frames[i].Duration {
			return &a.Frames[i]
		}
		t -= a.Frames[i].Duration
	}
	return &a.Frames[len(a.Frames)-1]
}
