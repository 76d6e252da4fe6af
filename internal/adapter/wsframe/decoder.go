package wsframe

import "encoding/binary"

// Decoder turns an arbitrary byte stream into frames. It keeps partial
// frames between calls, so callers may feed whatever a socket read returned.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	maxPayload int64

	buf []byte

	// Fragment reassembly state for a data message split over frames.
	fragOp  Opcode
	fragBuf []byte
	inFrag  bool
}

// NewDecoder returns a Decoder that rejects messages larger than maxPayload
// bytes. A non-positive limit selects DefaultMaxPayload.
func NewDecoder(maxPayload int64) *Decoder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Decoder{maxPayload: maxPayload}
}

// Buffered reports how many bytes of an incomplete frame are held.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Feed appends p to the internal buffer and returns every frame that became
// complete, in stream order. Control frames interleaved with a fragmented
// message are returned as soon as they are complete. After an error the
// Decoder must not be used again.
func (d *Decoder) Feed(p []byte) ([]Frame, error) {
	d.buf = append(d.buf, p...)

	var out []Frame
	off := 0
	for {
		hdr, n, err := d.parseHeader(d.buf[off:])
		if err != nil {
			return out, err
		}
		if n == 0 {
			break
		}
		total := n + int(hdr.length)
		if len(d.buf)-off < total {
			break
		}

		payload := make([]byte, hdr.length)
		copy(payload, d.buf[off+n:off+total])
		if hdr.masked {
			applyMask(payload, hdr.key)
		}
		off += total

		f, ok, err := d.assemble(hdr, payload)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, f)
		}
	}

	if off > 0 {
		rest := copy(d.buf, d.buf[off:])
		d.buf = d.buf[:rest]
	}
	return out, nil
}

type header struct {
	fin    bool
	op     Opcode
	masked bool
	key    [4]byte
	length int64
}

// parseHeader decodes a frame header from b. It returns n == 0 when b does
// not yet hold a complete header.
func (d *Decoder) parseHeader(b []byte) (header, int, error) {
	var h header
	if len(b) < 2 {
		return h, 0, nil
	}
	if b[0]&rsvBits != 0 {
		return h, 0, protocolErr("reserved bits set 0x%x", b[0]&rsvBits)
	}
	h.fin = b[0]&finBit != 0
	h.op = Opcode(b[0] & 0x0F)
	if !h.op.valid() {
		return h, 0, protocolErr("unknown opcode 0x%x", byte(h.op))
	}
	h.masked = b[1]&maskBit != 0
	h.length = int64(b[1] & 0x7F)
	n := 2

	switch h.length {
	case 126:
		if len(b) < n+2 {
			return h, 0, nil
		}
		h.length = int64(binary.BigEndian.Uint16(b[n:]))
		n += 2
	case 127:
		if len(b) < n+8 {
			return h, 0, nil
		}
		l := binary.BigEndian.Uint64(b[n:])
		if l > 1<<62 {
			return h, 0, ErrFrameTooLarge
		}
		h.length = int64(l)
		n += 8
	}

	if h.op.IsControl() {
		if !h.fin {
			return h, 0, protocolErr("fragmented %s frame", h.op)
		}
		if h.length > MaxControlPayload {
			return h, 0, protocolErr("%s payload of %d bytes", h.op, h.length)
		}
	}
	if h.length > d.maxPayload {
		return h, 0, ErrFrameTooLarge
	}

	if h.masked {
		if len(b) < n+4 {
			return h, 0, nil
		}
		copy(h.key[:], b[n:n+4])
		n += 4
	}
	return h, n, nil
}

// assemble applies fragmentation rules to one decoded frame. ok is false
// while a fragmented message is still incomplete.
func (d *Decoder) assemble(h header, payload []byte) (Frame, bool, error) {
	if h.op.IsControl() {
		return Frame{Opcode: h.op, Payload: payload}, true, nil
	}

	if h.op == OpContinuation {
		if !d.inFrag {
			return Frame{}, false, protocolErr("continuation without a started message")
		}
		if int64(len(d.fragBuf)+len(payload)) > d.maxPayload {
			return Frame{}, false, ErrFrameTooLarge
		}
		d.fragBuf = append(d.fragBuf, payload...)
		if !h.fin {
			return Frame{}, false, nil
		}
		f := Frame{Opcode: d.fragOp, Payload: d.fragBuf}
		d.inFrag, d.fragBuf = false, nil
		return f, true, nil
	}

	if d.inFrag {
		return Frame{}, false, protocolErr("new %s message inside a fragmented message", h.op)
	}
	if !h.fin {
		d.inFrag = true
		d.fragOp = h.op
		d.fragBuf = payload
		return Frame{}, false, nil
	}
	return Frame{Opcode: h.op, Payload: payload}, true, nil
}

func applyMask(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i&3]
	}
}
