package animation

import (
	"bytes"
	"encoding/binary"
	"image"
	"time"

	"golang.org/x/image/webp"

	"github.com/llehouerou/notifyd/internal/imaging"
)

const (
	webpAnimationFlag = 0x02
	webpAlphaFlag     = 0x10

	anmfDispose = 0x01
	anmfNoBlend = 0x02
)

type riffChunk struct {
	fourCC  string
	payload []byte
	raw     []byte // header, payload and padding
}

// readRIFFChunk reads the chunk at pos and returns it with the next offset.
func readRIFFChunk(data []byte, pos int) (riffChunk, int, bool) {
	if pos+8 > len(data) {
		return riffChunk{}, 0, false
	}
	n := int(binary.LittleEndian.Uint32(data[pos+4:]))
	end := pos + 8 + n
	if n < 0 || end > len(data) || end < pos {
		return riffChunk{}, 0, false
	}
	next := end + n&1
	raw := data[pos:min(next, len(data))]
	if len(raw)&1 != 0 {
		raw = append(raw[:len(raw):len(raw)], 0)
	}
	return riffChunk{fourCC: string(data[pos : pos+4]), payload: data[pos+8 : end], raw: raw}, next, true
}

// decodeWebP walks the ANMF chunks of an animated WebP. Each admitted frame's
// bitstream is wrapped as a standalone WebP file and decoded on its own.
func (d *decoder) decodeWebP(data []byte) error {
	pos := 12
	for {
		ch, next, ok := readRIFFChunk(data, pos)
		if !ok {
			return nil
		}
		pos = next
		switch ch.fourCC {
		case "VP8X":
			if len(ch.payload) < 10 {
				return ErrUnsupported
			}
			w, h := 1+uint24(ch.payload[4:]), 1+uint24(ch.payload[7:])
			if err := imaging.CheckDimensions(w, h); err != nil {
				return err
			}
			d.canvas = newCanvas(w, h)
		case "ANMF":
			if d.canvas == nil || len(ch.payload) < 16 {
				return nil
			}
			if err := d.ctx.Err(); err != nil {
				return err
			}
			p := ch.payload
			x, y := 2*uint24(p[0:]), 2*uint24(p[3:])
			fw, fh := 1+uint24(p[6:]), 1+uint24(p[9:])
			rect := image.Rect(x, y, x+fw, y+fh)
			if !rect.In(d.canvas.img.Rect) {
				return nil
			}
			dur, ok := d.budget.take(time.Duration(uint24(p[12:])) * time.Millisecond)
			if !ok {
				return nil
			}
			frame, ok := wrapWebPFrame(p[16:], fw, fh)
			if !ok {
				return nil
			}
			img, err := webp.Decode(bytes.NewReader(frame))
			if err != nil {
				return nil //nolint:nilerr // keep the frames decoded so far
			}
			flags := p[15]
			d.canvas.draw(rect, img, flags&anmfNoBlend == 0)
			d.emit(dur)
			if flags&anmfDispose != 0 {
				d.canvas.clear(rect)
			}
		}
	}
}

// wrapWebPFrame builds a standalone WebP file from ANMF frame data.
func wrapWebPFrame(frameData []byte, w, h int) ([]byte, bool) {
	var alpha, bitstream riffChunk
	pos := 0
	for bitstream.raw == nil {
		ch, next, ok := readRIFFChunk(frameData, pos)
		if !ok {
			return nil, false
		}
		pos = next
		switch ch.fourCC {
		case "ALPH":
			alpha = ch
		case "VP8 ", "VP8L":
			bitstream = ch
		}
	}

	var body bytes.Buffer
	body.WriteString("WEBP")
	if alpha.raw != nil && bitstream.fourCC == "VP8 " {
		var vp8x [10]byte
		vp8x[0] = webpAlphaFlag
		putUint24(vp8x[4:], w-1)
		putUint24(vp8x[7:], h-1)
		writeRIFFChunk(&body, "VP8X", vp8x[:])
		body.Write(alpha.raw)
	}
	body.Write(bitstream.raw)

	out := make([]byte, 8, 8+body.Len())
	copy(out, "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(body.Len()))
	return append(out, body.Bytes()...), true
}

func writeRIFFChunk(buf *bytes.Buffer, fourCC string, payload []byte) {
	var hdr [8]byte
	copy(hdr[:4], fourCC)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payload)))
	buf.Write(hdr[:])
	buf.Write(payload)
	if len(payload)&1 != 0 {
		buf.WriteByte(0)
	}
}

func putUint24(b []byte, v int) {
	b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
}
