package wsframe

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Encode serializes f as a single final frame. Client frames must be masked
// (RFC 6455 Section 5.3); a fresh random key is drawn for every frame. The
// caller's payload is never modified.
func Encode(f Frame, masked bool) ([]byte, error) {
	if !f.Opcode.valid() || f.Opcode == OpContinuation {
		return nil, fmt.Errorf("encode: %w", protocolErr("cannot encode %s frame", f.Opcode))
	}
	plen := len(f.Payload)
	if f.Opcode.IsControl() && plen > MaxControlPayload {
		return nil, fmt.Errorf("encode: %w", protocolErr("%s payload of %d bytes", f.Opcode, plen))
	}

	size := 2 + plen
	switch {
	case plen > 0xFFFF:
		size += 8
	case plen > 125:
		size += 2
	}
	if masked {
		size += 4
	}

	out := make([]byte, 0, size)
	out = append(out, finBit|byte(f.Opcode))

	var mb byte
	if masked {
		mb = maskBit
	}
	switch {
	case plen <= 125:
		out = append(out, mb|byte(plen))
	case plen <= 0xFFFF:
		out = append(out, mb|126)
		out = binary.BigEndian.AppendUint16(out, uint16(plen))
	default:
		out = append(out, mb|127)
		out = binary.BigEndian.AppendUint64(out, uint64(plen))
	}

	if !masked {
		return append(out, f.Payload...), nil
	}

	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("encode: mask key: %w", err)
	}
	out = append(out, key[:]...)
	start := len(out)
	out = append(out, f.Payload...)
	applyMask(out[start:], key)
	return out, nil
}
