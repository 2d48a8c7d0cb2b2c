// Package animation decodes animated GIF, APNG and WebP images under frame
// count and playback duration caps. Decoding stops at the first cap reached,
// so the rest of the source is never decoded.
package animation

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/draw"
	"time"

	"github.com/llehouerou/notifyd/internal/imaging"
	"github.com/llehouerou/notifyd/internal/notify"
)

var (
	ErrNoFrames    = errors.New("no frames decoded")
	ErrUnsupported = errors.New("unsupported animation format")
)

const (
	MaxFrames   = 100
	MaxDuration = 30 * time.Second

	// Source delays under MinFrameDelay play at DefaultFrameDelay.
	MinFrameDelay     = 20 * time.Millisecond
	DefaultFrameDelay = 100 * time.Millisecond
)

// Format is a recognized animated container.
type Format int

const (
	FormatUnknown Format = iota
	FormatGIF
	FormatAPNG
	FormatWebP
)

func (f Format) String() string {
	switch f {
	case FormatGIF:
		return "gif"
	case FormatAPNG:
		return "apng"
	case FormatWebP:
		return "webp"
	default:
		return "unknown"
	}
}

// Options controls decoding.
type Options struct {
	MaxDimension int
	// Animate false decodes only the first frame.
	Animate bool
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Sniff reports which animated format data is. Every GIF is reported; PNG and
// WebP are only reported when they carry animation chunks.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF
	case bytes.HasPrefix(data, pngSignature):
		if isAPNG(data) {
			return FormatAPNG
		}
	case len(data) >= 21 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		if string(data[12:16]) == "VP8X" && data[20]&webpAnimationFlag != 0 {
			return FormatWebP
		}
	}
	return FormatUnknown
}

// Decode decodes an animated image. Each frame is fitted to
// opts.MaxDimension. A source that yields no frame returns ErrNoFrames.
func Decode(ctx context.Context, data []byte, opts Options) (*notify.Animation, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = imaging.DefaultMaxDimension
	}
	d := &decoder{ctx: ctx, opts: opts, budget: newBudget(opts.Animate)}
	var err error
	switch Sniff(data) {
	case FormatGIF:
		err = d.decodeGIF(data)
	case FormatAPNG:
		err = d.decodeAPNG(data)
	case FormatWebP:
		err = d.decodeWebP(data)
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, err
	}
	if len(d.frames) == 0 {
		return nil, ErrNoFrames
	}
	return &notify.Animation{Frames: d.frames}, nil
}

// DecodeFile reads path and decodes it.
func DecodeFile(ctx context.Context, path string, opts Options) (*notify.Animation, error) {
	data, err := imaging.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(ctx, data, opts)
}

// budget tracks the caps while frames are admitted.
type budget struct {
	limit  int
	frames int
	total  time.Duration
}

func newBudget(animate bool) budget {
	if !animate {
		return budget{limit: 1}
	}
	return budget{limit: MaxFrames}
}

// take admits one more frame with the given source delay and returns its
// display duration. The last frame is shortened to fit MaxDuration.
func (b *budget) take(delay time.Duration) (time.Duration, bool) {
	if b.frames >= b.limit || b.total >= MaxDuration {
		return 0, false
	}
	if delay < MinFrameDelay {
		delay = DefaultFrameDelay
	}
	if b.total+delay > MaxDuration {
		delay = MaxDuration - b.total
	}
	b.frames++
	b.total += delay
	return delay, true
}

type decoder struct {
	ctx    context.Context
	opts   Options
	budget budget
	frames []notify.Frame
	canvas *canvas
}

func (d *decoder) emit(dur time.Duration) {
	img := imaging.Fit(d.canvas.img, d.opts.MaxDimension)
	d.frames = append(d.frames, notify.Frame{Image: *img, Duration: dur})
}

// canvas is the composition surface frames are drawn onto.
type canvas struct {
	img   *image.RGBA
	saved *image.RGBA
}

func newCanvas(w, h int) *canvas {
	return &canvas{img: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (c *canvas) save() {
	if c.saved == nil {
		c.saved = image.NewRGBA(c.img.Rect)
	}
	copy(c.saved.Pix, c.img.Pix)
}

func (c *canvas) restore() {
	if c.saved != nil {
		copy(c.img.Pix, c.saved.Pix)
	}
}

func (c *canvas) clear(r image.Rectangle) {
	draw.Draw(c.img, r, image.Transparent, image.Point{}, draw.Src)
}

func (c *canvas) draw(r image.Rectangle, src image.Image, blend bool) {
	op := draw.Src
	if blend {
		op = draw.Over
	}
	draw.Draw(c.img, r, src, src.Bounds().Min, op)
}

func uint24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

func be32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
