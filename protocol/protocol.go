// Package protocol implements the call frame envelope shared by requests and responses.
//
// A frame is a text header terminated by a single NUL byte, followed by the raw argument
// blocks back to back. The header lists the size of every block, so the receiver knows
// exactly how many payload bytes follow once it has parsed the header.
//
// Frame format:
//
//	┌──────────────────────────────┬────┬─────────┬─────────┬─────┐
//	│ header (YAML or JSON text)   │ \0 │ block 0 │ block 1 │ ... │
//	│ service / successful /       │    │ blocks[0] bytes   │     │
//	│ status / blocks              │    │         │ blocks[1] bytes │
//	└──────────────────────────────┴────┴─────────┴─────────┴─────┘
//
// Request headers carry service and blocks. Response headers add successful and status.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	"mini-soa/argument"
	"mini-soa/codec"
	"mini-soa/signature"
)

const (
	// Terminator separates the header from the payload. It never appears in a header.
	Terminator byte = 0x00
	// MaxHeaderSize bounds the header text a receiver is willing to buffer.
	MaxHeaderSize = 64 << 10
	// DefaultMaxPayload bounds the sum of all blocks of one frame.
	DefaultMaxPayload int64 = 64 << 20
)

// ErrProtocol marks frames that are well-formed bytes but violate the envelope rules.
var ErrProtocol = errors.New("protocol error")

// Header is the text part of a frame.
// Successful is nil on requests and always set on responses.
type Header struct {
	Service    string `yaml:"service" json:"service"`
	Successful *bool  `yaml:"successful,omitempty" json:"successful,omitempty"`
	Status     string `yaml:"status,omitempty" json:"status,omitempty"`
	Blocks     []int  `yaml:"blocks,flow" json:"blocks"`
}

// RequestHeader creates the header of a call frame.
func RequestHeader(service string) *Header {
	return &Header{Service: service}
}

// ResponseHeader creates the header of a response frame.
func ResponseHeader(service string, successful bool, status string) *Header {
	return &Header{Service: service, Successful: &successful, Status: status}
}

// IsResponse reports whether the header carries a success flag.
func (h *Header) IsResponse() bool { return h.Successful != nil }

// IsSuccessful reports the success flag. A missing flag counts as failure.
func (h *Header) IsSuccessful() bool { return h.Successful != nil && *h.Successful }

// PayloadSize is the sum of all declared blocks.
func (h *Header) PayloadSize() int64 {
	var n int64
	for _, b := range h.Blocks {
		n += int64(b)
	}
	return n
}

// WriteFrame fills in h.Blocks from args and writes header, terminator and payload
// in a single gathered write.
func WriteFrame(w io.Writer, c codec.Codec, h *Header, args []*argument.Argument) error {
	if c == nil {
		c = codec.Default
	}
	h.Blocks = make([]int, len(args))
	for i, a := range args {
		h.Blocks[i] = a.Size()
	}

	text, err := c.Encode(h)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if bytes.IndexByte(text, Terminator) >= 0 {
		return fmt.Errorf("%w: header contains a NUL byte", ErrProtocol)
	}
	if len(text) > MaxHeaderSize {
		return fmt.Errorf("%w: header of %d bytes exceeds %d", ErrProtocol, len(text), MaxHeaderSize)
	}

	bufs := make(net.Buffers, 0, len(args)+2)
	bufs = append(bufs, text, []byte{Terminator})
	for _, a := range args {
		if a.Size() > 0 {
			bufs = append(bufs, a.Bytes())
		}
	}
	_, err = bufs.WriteTo(w)
	return err
}

// WriteText writes a terminated text frame without payload.
func WriteText(w io.Writer, text []byte) error {
	if bytes.IndexByte(text, Terminator) >= 0 {
		return fmt.Errorf("%w: text contains a NUL byte", ErrProtocol)
	}
	bufs := net.Buffers{text, []byte{Terminator}}
	_, err := bufs.WriteTo(w)
	return err
}

// ReadText consumes bytes up to and including the terminator and returns the text before
// it. Texts longer than limit are rejected. Bytes after the terminator stay buffered in r.
func ReadText(r *bufio.Reader, limit int) ([]byte, error) {
	var text []byte
	for {
		chunk, err := r.ReadSlice(Terminator)
		text = append(text, chunk...)
		if len(text) > limit+1 {
			return nil, fmt.Errorf("%w: text exceeds %d bytes", ErrProtocol, limit)
		}
		if err == nil {
			break
		}
		if err != bufio.ErrBufferFull {
			return nil, err
		}
	}
	return text[:len(text)-1], nil
}

// ReadHeader reads the header text and parses it. Bytes after the terminator stay
// buffered in r for ReadPayload.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	text, err := ReadText(r, MaxHeaderSize)
	if err != nil {
		return nil, err
	}

	h := new(Header)
	// YAML reads both codecs' output.
	if err := codec.Default.Decode(text, h); err != nil {
		return nil, fmt.Errorf("%w: malformed header: %v", ErrProtocol, err)
	}
	if h.Service == "" {
		return nil, fmt.Errorf("%w: header has no service", ErrProtocol)
	}
	return h, nil
}

// CheckBlocks validates the declared blocks against the expected parameter types
// without touching the payload.
func CheckBlocks(h *Header, types []signature.ParamType, maxPayload int64) error {
	if len(h.Blocks) != len(types) {
		return fmt.Errorf("%w: expected %d block(s) instead of %d", ErrProtocol, len(types), len(h.Blocks))
	}
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	var total int64
	for i, n := range h.Blocks {
		if err := argument.CheckSize(types[i], n); err != nil {
			return err
		}
		total += int64(n)
		if total > maxPayload {
			return fmt.Errorf("%w: payload exceeds %d bytes", ErrProtocol, maxPayload)
		}
	}
	return nil
}

// ReadPayload reads all blocks declared by h in one batch and returns one argument per
// block. Any bytes already buffered in r are consumed first.
func ReadPayload(r io.Reader, h *Header, types []signature.ParamType, maxPayload int64) ([]*argument.Argument, error) {
	if err := CheckBlocks(h, types, maxPayload); err != nil {
		return nil, err
	}

	payload := make([]byte, h.PayloadSize())
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	args := make([]*argument.Argument, len(types))
	offset := 0
	for i, n := range h.Blocks {
		a, err := argument.Wrap(types[i], payload[offset:offset+n:offset+n])
		if err != nil {
			return nil, err
		}
		args[i] = a
		offset += n
	}
	return args, nil
}
