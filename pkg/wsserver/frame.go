package wsserver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WebSocket opcodes (RFC 6455 §5.2).
type opcode byte

const (
	opContinuation opcode = 0x0
	opText         opcode = 0x1
	opBinary       opcode = 0x2
	opClose        opcode = 0x8
	opPing         opcode = 0x9
	opPong         opcode = 0xA
)

func (o opcode) control() bool { return o >= opClose }

// Close status codes.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1002
	CloseTooBig        = 1009
	// CloseAbnormal is never written to the wire; it is the status recorded
	// when the peer vanishes or fails the ping/pong liveness check.
	CloseAbnormal = 1006
)

var errProtocol = errors.New("websocket protocol violation")

type frame struct {
	fin     bool
	op      opcode
	payload []byte
}

// readFrame parses one frame from r, unmasking the payload. Frames from
// clients must be masked; unmasked data frames are a protocol violation.
func readFrame(r io.Reader, maxPayload int64) (frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return frame{}, err
	}
	fin := hdr[0]&0x80 != 0
	if hdr[0]&0x70 != 0 {
		return frame{}, fmt.Errorf("%w: nonzero RSV bits", errProtocol)
	}
	op := opcode(hdr[0] & 0x0F)
	switch op {
	case opContinuation, opText, opBinary, opClose, opPing, opPong:
	default:
		return frame{}, fmt.Errorf("%w: opcode %#x", errProtocol, byte(op))
	}

	masked := hdr[1]&0x80 != 0
	length := int64(hdr[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return frame{}, err
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return frame{}, err
		}
		v := binary.BigEndian.Uint64(ext[:])
		if v > uint64(maxPayload) {
			return frame{}, fmt.Errorf("%w: payload of %d bytes too large", errProtocol, v)
		}
		length = int64(v)
	}
	if length > maxPayload {
		return frame{}, fmt.Errorf("%w: payload of %d bytes too large", errProtocol, length)
	}
	if op.control() {
		if !fin {
			return frame{}, fmt.Errorf("%w: fragmented control frame", errProtocol)
		}
		if length > 125 {
			return frame{}, fmt.Errorf("%w: control frame payload %d > 125", errProtocol, length)
		}
	}
	if !masked {
		// masking is required client->server
		return frame{}, fmt.Errorf("%w: unmasked client frame", errProtocol)
	}

	var key [4]byte
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return frame{}, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return frame{}, err
	}
	for i := range payload {
		payload[i] ^= key[i&3]
	}
	return frame{fin: fin, op: op, payload: payload}, nil
}

// writeFrame writes one unfragmented, unmasked (server->client) frame.
func writeFrame(w io.Writer, op opcode, payload []byte) error {
	var hdr [10]byte
	hdr[0] = 0x80 | byte(op)
	n := 2
	switch l := len(payload); {
	case l <= 125:
		hdr[1] = byte(l)
	case l <= 0xFFFF:
		hdr[1] = 126
		binary.BigEndian.PutUint16(hdr[2:4], uint16(l))
		n = 4
	default:
		hdr[1] = 127
		binary.BigEndian.PutUint64(hdr[2:10], uint64(l))
		n = 10
	}
	if _, err := w.Write(hdr[:n]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// closePayload encodes a close frame body: status code plus optional reason.
func closePayload(code int, reason string) []byte {
	b := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(b[:2], uint16(code))
	copy(b[2:], reason)
	return b
}

// parseClosePayload extracts the status code from a received close body.
func parseClosePayload(p []byte) int {
	if len(p) < 2 {
		return CloseNormal
	}
	return int(binary.BigEndian.Uint16(p[:2]))
}
