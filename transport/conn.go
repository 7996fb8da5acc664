// Package transport implements the connection-per-call exchange used by stubs and the
// registry client.
//
// Every exchange owns exactly one TCP connection:
//
//	Dial ──→ write request ──→ CloseWrite (half-close) ──→ read reply ──→ Close
//
// The half-close tells the peer that no more request bytes follow. Failures at any step
// are reported as *Error, which callers distinguish from an unsuccessful reply.
package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Error is a connection-level failure: the peer could not be reached, or the exchange
// broke before a complete reply was read.
type Error struct {
	Op   string // "dial", "write", "read"
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return "transport: " + e.Op + " " + e.Addr + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op, addr string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Addr: addr, Err: errors.WithStack(err)}
}

// Conn is one accepted or dialed connection with a buffered reader. The reader keeps
// bytes that arrive together with a frame header for the following payload read.
type Conn struct {
	net.Conn
	r *bufio.Reader
}

// NewConn wraps an established connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c, r: bufio.NewReader(c)}
}

// Reader is the buffered side of the connection. All reads must go through it.
func (c *Conn) Reader() *bufio.Reader { return c.r }

// CloseWrite half-closes the connection when the underlying transport supports it.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// ArmReadDeadline sets a read deadline d from now. A zero d clears it.
func (c *Conn) ArmReadDeadline(d time.Duration) error {
	if d <= 0 {
		return c.SetReadDeadline(time.Time{})
	}
	return c.SetReadDeadline(time.Now().Add(d))
}

// Linger discards whatever the peer still sends until it half-closes or d elapses.
// Closing with unread input resets the connection and can discard a reply the peer has
// not read yet.
func (c *Conn) Linger(d time.Duration) {
	if d <= 0 {
		return
	}
	if err := c.SetReadDeadline(time.Now().Add(d)); err != nil {
		return
	}
	io.Copy(io.Discard, c.r)
}

// Dial opens a TCP connection to host:port. timeout bounds connection setup only.
func Dial(ctx context.Context, host, port string, timeout time.Duration) (*Conn, error) {
	addr := net.JoinHostPort(host, port)
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, wrap("dial", addr, err)
	}
	return NewConn(c), nil
}

// Exchange runs one request/reply round trip on a fresh connection: write is called
// with the connection, the write side is half-closed, then read consumes the reply.
// Cancelling ctx aborts the exchange by closing the connection.
func Exchange(ctx context.Context, host, port string, timeout time.Duration,
	write func(io.Writer) error, read func(*bufio.Reader) error) error {
	c, err := Dial(ctx, host, port, timeout)
	if err != nil {
		return err
	}
	defer c.Close()

	addr := c.RemoteAddr().String()
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if err := write(c); err != nil {
		if ctx.Err() != nil {
			return wrap("write", addr, ctx.Err())
		}
		if !isConnError(err) {
			// Encoding failures are the caller's, not the connection's.
			return err
		}
		// The peer may have answered early and stopped reading; its reply can still be
		// waiting in the receive buffer.
		if rerr := read(c.r); rerr == nil {
			return nil
		}
		return wrap("write", addr, err)
	}
	if err := c.CloseWrite(); err != nil {
		return wrap("write", addr, err)
	}
	if err := read(c.r); err != nil {
		if ctx.Err() != nil {
			return wrap("read", addr, ctx.Err())
		}
		if isConnError(err) {
			return wrap("read", addr, err)
		}
		return err
	}
	return nil
}

func isConnError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}

// IsTransport reports whether err is a connection-level failure.
func IsTransport(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
