// Package imaging decodes notification images and fits them to a size budget.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"math"
	"os"
	"syscall"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/llehouerou/notifyd/internal/notify"
)

// ErrUnavailable is returned for any image that cannot be used.
var ErrUnavailable = errors.New("image unavailable")

const (
	DefaultMaxDimension = 128

	// MaxSourcePixels bounds the decode cost of a single source image.
	MaxSourcePixels = 4096 * 4096
	// MaxFileSize bounds how much of an image file is read.
	MaxFileSize = 32 << 20
)

// RawData is the image-data hint payload: (iiibiiay).
type RawData struct {
	Width         int32
	Height        int32
	RowStride     int32
	HasAlpha      bool
	BitsPerSample int32
	Channels      int32
	Data          []byte
}

// FromRaw converts raw protocol pixels to canonical RGBA and fits them to maxDim.
func FromRaw(d RawData, maxDim int) (*notify.RawImage, error) {
	w, h := int(d.Width), int(d.Height)
	channels, stride := int(d.Channels), int(d.RowStride)
	if w <= 0 || h <= 0 || w*h > MaxSourcePixels {
		return nil, fmt.Errorf("%w: bad dimensions %dx%d", ErrUnavailable, w, h)
	}
	if d.BitsPerSample != 8 || (channels != 3 && channels != 4) {
		return nil, fmt.Errorf("%w: unsupported format %d bits, %d channels", ErrUnavailable, d.BitsPerSample, channels)
	}
	if stride < w*channels {
		return nil, fmt.Errorf("%w: row stride %d shorter than row", ErrUnavailable, stride)
	}
	if need := stride*(h-1) + w*channels; len(d.Data) < need {
		return nil, fmt.Errorf("%w: %d bytes of pixel data, need %d", ErrUnavailable, len(d.Data), need)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		src := d.Data[y*stride : y*stride+w*channels]
		dst := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			s, o := x*channels, x*4
			dst[o], dst[o+1], dst[o+2] = src[s], src[s+1], src[s+2]
			if channels == 4 && d.HasAlpha {
				dst[o+3] = src[s+3]
			} else {
				dst[o+3] = 0xff
			}
		}
	}
	return Fit(img, maxDim), nil
}

// FromBytes decodes an encoded image (PNG, JPEG, GIF, WebP, BMP) and fits it to maxDim.
// Animated formats yield their first frame.
func FromBytes(data []byte, maxDim int) (*notify.RawImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := CheckDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return Fit(img, maxDim), nil
}

// FromFile reads and decodes an image file.
func FromFile(path string, maxDim int) (*notify.RawImage, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromBytes(data, maxDim)
}

// ReadFile reads an image file, refusing files larger than MaxFileSize.
func ReadFile(path string) ([]byte, error) {
	f, info, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data := make([]byte, info.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return data, nil
}

// OpenFile opens path for reading if it is a regular file of at most
// MaxFileSize bytes. The open never blocks, so a FIFO or device swapped
// in after the check is refused too.
func OpenFile(path string) (*os.File, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := checkRegular(path, info); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	opened, err := f.Stat()
	if err == nil {
		err = checkRegular(path, opened)
	}
	if err == nil && !os.SameFile(info, opened) {
		err = fmt.Errorf("%w: %s changed while opening", ErrUnavailable, path)
	}
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, opened, nil
}

func checkRegular(path string, info os.FileInfo) error {
	if !info.Mode().IsRegular() || info.Size() > MaxFileSize {
		return fmt.Errorf("%w: %s is not a regular file under %d bytes", ErrUnavailable, path, MaxFileSize)
	}
	return nil
}

// CheckDimensions rejects empty images and images over MaxSourcePixels.
func CheckDimensions(w, h int) error {
	if w <= 0 || h <= 0 || int64(w)*int64(h) > MaxSourcePixels {
		return fmt.Errorf("%w: bad dimensions %dx%d", ErrUnavailable, w, h)
	}
	return nil
}

// FitDimensions returns the size of a w x h image scaled so its larger side
// is at most maxDim. Images already within bounds are not scaled.
func FitDimensions(w, h, maxDim int) (int, int) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		nh := int(math.Round(float64(h) * float64(maxDim) / float64(w)))
		return maxDim, max(nh, 1)
	}
	nw := int(math.Round(float64(w) * float64(maxDim) / float64(h)))
	return max(nw, 1), maxDim
}

// Fit scales img to fit maxDim with a Lanczos filter and returns tightly
// packed non-premultiplied RGBA.
func Fit(img image.Image, maxDim int) *notify.RawImage {
	b := img.Bounds()
	w, h := FitDimensions(b.Dx(), b.Dy(), maxDim)
	if w == b.Dx() && h == b.Dy() {
		return toRaw(img)
	}

	// Resample premultiplied pixels so transparent areas do not bleed color.
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	resized := resize.Resize(uint(w), uint(h), rgba, resize.Lanczos3)
	return toRaw(resized)
}

// ToImage wraps a RawImage as an image.NRGBA without copying.
func ToImage(r *notify.RawImage) *image.NRGBA {
	return &image.NRGBA{
		Pix:    r.Pix,
		Stride: r.Width * 4,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}

func toRaw(img image.Image) *notify.RawImage {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return &notify.RawImage{Width: b.Dx(), Height: b.Dy(), Pix: out.Pix}
}
