package animation

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/gif"
	"time"

	"github.com/llehouerou/notifyd/internal/imaging"
)

const (
	gifExtension  = 0x21
	gifImage      = 0x2C
	gifTrailer    = 0x3B
	gifGraphicExt = 0xF9
)

// decodeGIF scans the block structure to find where the caps are reached,
// truncates the stream there and decodes only the admitted frames. A frame
// that fails to decode ends the animation; the frames before it are kept.
func (d *decoder) decodeGIF(data []byte) error {
	if len(data) < 13 {
		return ErrNoFrames
	}
	w := int(binary.LittleEndian.Uint16(data[6:]))
	h := int(binary.LittleEndian.Uint16(data[8:]))
	if err := imaging.CheckDimensions(w, h); err != nil {
		return err
	}

	pos := 13
	if flags := data[10]; flags&0x80 != 0 {
		pos += 3 << ((flags & 7) + 1)
	}

	var (
		delays  []time.Duration
		ends    []int // stream offset after each admitted frame
		pending time.Duration
	)
scan:
	for pos < len(data) {
		switch data[pos] {
		case gifExtension:
			if pos+2 > len(data) {
				break scan
			}
			body := pos + 2
			if data[pos+1] == gifGraphicExt && body+5 <= len(data) && data[body] == 4 {
				pending = time.Duration(binary.LittleEndian.Uint16(data[body+2:])) * 10 * time.Millisecond
			}
			next, ok := skipSubBlocks(data, body)
			if !ok {
				break scan
			}
			pos = next
		case gifImage:
			if pos+11 > len(data) {
				break scan
			}
			p := pos + 10
			if flags := data[pos+9]; flags&0x80 != 0 {
				p += 3 << ((flags & 7) + 1)
			}
			next, ok := skipSubBlocks(data, p+1) // skip LZW minimum code size
			if !ok {
				break scan
			}
			dur, ok := d.budget.take(pending)
			if !ok {
				break scan
			}
			delays = append(delays, dur)
			ends = append(ends, next)
			pending = 0
			pos = next
		default:
			break scan
		}
	}
	if len(delays) == 0 {
		return ErrNoFrames
	}

	g, err := decodeGIFPrefix(data, ends[len(ends)-1])
	if err != nil {
		// Decoding is sequential, so if n frames decode so do fewer. Search
		// for the longest prefix that still decodes.
		lo, hi := 0, len(ends)
		for hi-lo > 1 {
			if err := d.ctx.Err(); err != nil {
				return err
			}
			mid := (lo + hi) / 2
			if prefix, perr := decodeGIFPrefix(data, ends[mid-1]); perr == nil {
				lo, g = mid, prefix
			} else {
				hi = mid
			}
		}
		if lo == 0 {
			return fmt.Errorf("%w: %w", ErrNoFrames, err)
		}
	}

	d.canvas = newCanvas(w, h)
	for i, frame := range g.Image {
		if i >= len(delays) {
			break
		}
		if err := d.ctx.Err(); err != nil {
			return err
		}
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			d.canvas.save()
		}
		d.canvas.draw(frame.Bounds(), frame, true)
		d.emit(delays[i])
		switch disposal {
		case gif.DisposalBackground:
			d.canvas.clear(frame.Bounds())
		case gif.DisposalPrevious:
			d.canvas.restore()
		}
	}
	return nil
}

// decodeGIFPrefix decodes data cut at offset, terminated with a trailer.
func decodeGIFPrefix(data []byte, cut int) (*gif.GIF, error) {
	stream := make([]byte, cut+1)
	copy(stream, data[:cut])
	stream[cut] = gifTrailer
	return gif.DecodeAll(bytes.NewReader(stream))
}

// skipSubBlocks returns the offset after the data sub-block chain at pos.
func skipSubBlocks(data []byte, pos int) (int, bool) {
	for pos < len(data) {
		n := int(data[pos])
		pos++
		if n == 0 {
			return pos, true
		}
		pos += n
	}
	return 0, false
}
