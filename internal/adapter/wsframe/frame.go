// Package wsframe implements the RFC 6455 frame layer used by the
// remote-debugging transport: incremental decoding of an arbitrary byte
// stream into frames, fragment reassembly, and client-side encoding.
package wsframe

import (
	"errors"
	"fmt"
)

// Opcode identifies the type of a frame.
type Opcode byte

// Frame opcodes as defined in RFC 6455 Section 5.2.
const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsControl reports whether o is a control opcode (close, ping, pong).
func (o Opcode) IsControl() bool { return o&0x08 != 0 }

func (o Opcode) valid() bool {
	switch o {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	default:
		return false
	}
}

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(0x%x)", byte(o))
	}
}

// Frame is one logical frame. Fragmented data messages are surfaced by the
// Decoder as a single Frame carrying the first fragment's opcode.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// Text returns a text frame carrying p.
func Text(p []byte) Frame { return Frame{Opcode: OpText, Payload: p} }

// Binary returns a binary frame carrying p.
func Binary(p []byte) Frame { return Frame{Opcode: OpBinary, Payload: p} }

const (
	finBit  = 0x80
	rsvBits = 0x70
	maskBit = 0x80

	// MaxControlPayload is the largest payload a control frame may carry.
	MaxControlPayload = 125

	// DefaultMaxPayload bounds a single reassembled message.
	DefaultMaxPayload = 64 << 20
)

var (
	// ErrProtocol marks a frame stream that violates RFC 6455.
	ErrProtocol = errors.New("websocket protocol violation")
	// ErrFrameTooLarge is returned when a message exceeds the payload limit.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrProtocol)
)

func protocolErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// Close status codes used by the transport (RFC 6455 Section 7.4.1).
const (
	CloseNormal        uint16 = 1000
	CloseGoingAway     uint16 = 1001
	CloseProtocolError uint16 = 1002
	CloseNoStatus      uint16 = 1005
)

// ClosePayload builds a close frame body: a big-endian status code followed
// by an optional UTF-8 reason.
func ClosePayload(code uint16, reason string) []byte {
	if len(reason) > MaxControlPayload-2 {
		reason = reason[:MaxControlPayload-2]
	}
	p := make([]byte, 2+len(reason))
	p[0] = byte(code >> 8)
	p[1] = byte(code)
	copy(p[2:], reason)
	return p
}

// ParseClose splits a close frame body into status code and reason.
// An empty body yields CloseNoStatus.
func ParseClose(p []byte) (uint16, string) {
	if len(p) < 2 {
		return CloseNoStatus, ""
	}
	return uint16(p[0])<<8 | uint16(p[1]), string(p[2:])
}
