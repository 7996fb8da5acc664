package message

import (
	"bufio"
	"io"

	"mini-soa/argument"
	"mini-soa/codec"
	"mini-soa/protocol"
	"mini-soa/signature"
)

// Encode writes c as a request frame. Every input must have been pushed.
func (c *Call) Encode(w io.Writer, cd codec.Codec) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return protocol.WriteFrame(w, cd, protocol.RequestHeader(c.sig.String()), c.Arguments())
}

// DecodeCall reads the payload announced by h into a complete call for sig.
func DecodeCall(r io.Reader, sig signature.Signature, h *protocol.Header, maxPayload int64) (*Call, error) {
	args, err := protocol.ReadPayload(r, h, sig.Inputs(), maxPayload)
	if err != nil {
		return nil, err
	}
	c := NewCall(sig)
	c.adopt(args)
	return c, nil
}

// ReadCall reads a whole request frame.
func ReadCall(r *bufio.Reader, maxPayload int64) (*Call, error) {
	h, err := protocol.ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return DecodeCall(r, signature.Parse(h.Service), h, maxPayload)
}

// Encode writes r as a response frame. Successful responses need every output pushed,
// failures are written without payload.
func (r *Response) Encode(w io.Writer, cd codec.Codec) error {
	h := protocol.ResponseHeader(r.sig.String(), r.successful, r.status)
	if !r.successful {
		return protocol.WriteFrame(w, cd, h, nil)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	return protocol.WriteFrame(w, cd, h, r.Arguments())
}

// ReadResponse reads a whole response frame.
func ReadResponse(r *bufio.Reader, maxPayload int64) (*Response, error) {
	h, err := protocol.ReadHeader(r)
	if err != nil {
		return nil, err
	}
	sig := signature.Parse(h.Service)
	if !h.IsSuccessful() {
		return Failure(sig, h.Status), nil
	}

	args, err := protocol.ReadPayload(r, h, sig.Outputs(), maxPayload)
	if err != nil {
		return nil, err
	}
	resp := NewResponse(sig)
	if h.Status != "" {
		resp.SetStatus(h.Status)
	}
	resp.adopt(args)
	return resp, nil
}

// adopt installs arguments already checked against the declared types.
func (l *argList) adopt(args []*argument.Argument) {
	l.args = append(l.args[:0], args...)
	l.popped = 0
}
