package animation

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"time"

	"github.com/llehouerou/notifyd/internal/imaging"
)

const (
	apngDisposeNone       = 0
	apngDisposeBackground = 1
	apngDisposePrevious   = 2
	apngBlendOver         = 1
)

type pngChunk struct {
	typ  string
	data []byte
}

type apngFrame struct {
	rect    image.Rectangle
	delay   time.Duration
	dispose byte
	blend   byte
	data    [][]byte
}

// readChunk reads the chunk at pos and returns it with the next offset.
func readChunk(data []byte, pos int) (pngChunk, int, bool) {
	if pos+12 > len(data) {
		return pngChunk{}, 0, false
	}
	n := int(be32(data[pos:]))
	end := pos + 12 + n
	if n < 0 || end > len(data) || end < pos {
		return pngChunk{}, 0, false
	}
	return pngChunk{typ: string(data[pos+4 : pos+8]), data: data[pos+8 : pos+8+n]}, end, true
}

// isAPNG reports whether an acTL chunk precedes the first IDAT. Only chunk
// headers are read, so a prefix of the file is enough.
func isAPNG(data []byte) bool {
	pos := len(pngSignature)
	for pos+8 <= len(data) {
		switch string(data[pos+4 : pos+8]) {
		case "acTL":
			return true
		case "IDAT":
			return false
		}
		pos += 12 + int(be32(data[pos:]))
	}
	return false
}

// decodeAPNG walks the chunk stream, re-assembling each admitted frame into
// a standalone PNG. The budget is taken at each fcTL, before the frame data
// is decoded.
func (d *decoder) decodeAPNG(data []byte) error {
	var (
		ihdr     []byte
		shared   []pngChunk
		cur      *apngFrame
		seenIDAT bool
		pos      = len(pngSignature)
	)
	flush := func() bool {
		if cur == nil {
			return true
		}
		f := cur
		cur = nil
		if len(f.data) == 0 {
			return true
		}
		img, err := decodeAPNGFrame(ihdr, shared, f)
		if err != nil {
			return false
		}
		d.renderAPNG(f, img)
		return true
	}

scan:
	for {
		ch, next, ok := readChunk(data, pos)
		if !ok {
			break
		}
		pos = next
		switch ch.typ {
		case "IHDR":
			if len(ch.data) != 13 {
				return ErrUnsupported
			}
			w, h := int(be32(ch.data)), int(be32(ch.data[4:]))
			if err := imaging.CheckDimensions(w, h); err != nil {
				return err
			}
			ihdr = ch.data
			d.canvas = newCanvas(w, h)
		case "acTL":
		case "fcTL":
			if d.canvas == nil {
				break scan
			}
			if err := d.ctx.Err(); err != nil {
				return err
			}
			if !flush() {
				break scan
			}
			f, ok := parseFrameControl(ch.data, d.canvas.img.Rect)
			if !ok {
				break scan
			}
			dur, ok := d.budget.take(f.delay)
			if !ok {
				break scan
			}
			f.delay = dur
			cur = f
		case "IDAT":
			seenIDAT = true
			if cur != nil {
				cur.data = append(cur.data, ch.data)
			}
		case "fdAT":
			if cur != nil && len(ch.data) > 4 {
				cur.data = append(cur.data, ch.data[4:])
			}
		case "IEND":
			break scan
		default:
			if ihdr != nil && !seenIDAT {
				shared = append(shared, ch)
			}
		}
	}
	flush()
	return nil
}

func parseFrameControl(b []byte, bounds image.Rectangle) (*apngFrame, bool) {
	if len(b) != 26 {
		return nil, false
	}
	w, h := uint64(be32(b[4:])), uint64(be32(b[8:]))
	x, y := uint64(be32(b[12:])), uint64(be32(b[16:]))
	if w == 0 || h == 0 || x+w > uint64(bounds.Dx()) || y+h > uint64(bounds.Dy()) {
		return nil, false
	}
	num := time.Duration(binary.BigEndian.Uint16(b[20:]))
	den := time.Duration(binary.BigEndian.Uint16(b[22:]))
	if den == 0 {
		den = 100
	}
	return &apngFrame{
		rect:    image.Rect(int(x), int(y), int(x+w), int(y+h)),
		delay:   num * time.Second / den,
		dispose: b[24],
		blend:   b[25],
	}, true
}

func decodeAPNGFrame(ihdr []byte, shared []pngChunk, f *apngFrame) (image.Image, error) {
	var buf bytes.Buffer
	buf.Write(pngSignature)

	header := make([]byte, len(ihdr))
	copy(header, ihdr)
	binary.BigEndian.PutUint32(header, uint32(f.rect.Dx()))
	binary.BigEndian.PutUint32(header[4:], uint32(f.rect.Dy()))
	writeChunk(&buf, "IHDR", header)
	for _, ch := range shared {
		writeChunk(&buf, ch.typ, ch.data)
	}
	writeChunk(&buf, "IDAT", bytes.Join(f.data, nil))
	writeChunk(&buf, "IEND", nil)
	return png.Decode(&buf)
}

func writeChunk(buf *bytes.Buffer, typ string, data []byte) {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], typ)
	buf.Write(hdr[:])
	buf.Write(data)

	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	buf.Write(sum[:])
}

func (d *decoder) renderAPNG(f *apngFrame, img image.Image) {
	dispose := f.dispose
	if dispose == apngDisposePrevious && len(d.frames) == 0 {
		dispose = apngDisposeBackground
	}
	if dispose == apngDisposePrevious {
		d.canvas.save()
	}
	d.canvas.draw(f.rect, img, f.blend == apngBlendOver)
	d.emit(f.delay)
	switch dispose {
	case apngDisposeBackground:
		d.canvas.clear(f.rect)
	case apngDisposePrevious:
		d.canvas.restore()
	case apngDisposeNone:
	}
}
