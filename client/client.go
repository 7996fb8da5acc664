// Package client implements the calling side: a Stub drives one call against a known
// provider, and a Client first asks the registry which provider to use.
package client

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mini-soa/argument"
	"mini-soa/codec"
	"mini-soa/message"
	"mini-soa/protocol"
	"mini-soa/registry"
	"mini-soa/signature"
	"mini-soa/transport"
)

type options struct {
	dialTimeout time.Duration
	codec       codec.Codec
	maxPayload  int64
	logger      *zap.Logger
}

type Option func(*options)

// WithDialTimeout bounds connection setup. The reply wait is bounded by the call's context.
func WithDialTimeout(d time.Duration) Option { return func(o *options) { o.dialTimeout = d } }
func WithCodec(c codec.Codec) Option { return func(o *options) { o.codec = c } }
func WithMaxPayload(n int64) Option { return func(o *options) { o.maxPayload = n } }
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

func newOptions(opts []Option) options {
	o := options{dialTimeout: 5 * time.Second, codec: codec.Default, maxPayload: protocol.DefaultMaxPayload}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Stub is a single call to one provider. Push the inputs in declared order, then Submit.
type Stub struct {
	call *message.Call
	ep   registry.Endpoint
	opts options
}

func NewStub(sig signature.Signature, host, port string, opts ...Option) *Stub {
	return &Stub{
		call: message.NewCall(sig),
		ep:   registry.Endpoint{Host: host, Port: port},
		opts: newOptions(opts),
	}
}

// PushArgument appends the next input. It fails when a's type is not the next declared
// input type or when every input has been pushed already.
func (s *Stub) PushArgument(a *argument.Argument) error {
	return s.call.PushArgument(a)
}

// Call exposes the request being built.
func (s *Stub) Call() *message.Call { return s.call }

// Submit sends the call on a fresh connection and waits for the reply. An incomplete call
// fails before anything is dialed. Connection failures are *transport.Error; a reply with
// successful=false is returned with a nil error.
func (s *Stub) Submit(ctx context.Context) (*message.Response, error) {
	if err := s.call.Validate(); err != nil {
		return nil, err
	}

	var resp *message.Response
	start := time.Now()
	err := transport.Exchange(ctx, s.ep.Host, s.ep.Port, s.opts.dialTimeout,
		func(w io.Writer) error { return s.call.Encode(w, s.opts.codec) },
		func(r *bufio.Reader) error {
			var err error
			resp, err = message.ReadResponse(r, s.opts.maxPayload)
			return err
		})
	if err != nil {
		s.opts.logger.Debug("call failed", zap.Stringer("service", s.call.Signature()),
			zap.Stringer("provider", s.ep), zap.Error(err))
		return nil, err
	}
	if !resp.Signature().Equal(s.call.Signature()) && resp.Successful() {
		return nil, errors.Errorf("reply for '%s' answers '%s'", resp.Signature(), s.call.Signature())
	}

	s.opts.logger.Debug("call", zap.Stringer("service", s.call.Signature()), zap.Stringer("provider", s.ep),
		zap.Bool("successful", resp.Successful()), zap.String("status", resp.Status()),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// Client resolves a provider through the registry for every call.
type Client struct {
	registry *registry.Client
	opts     []Option
	logger   *zap.Logger
}

// NewClient creates a client that locates providers through reg.
func NewClient(reg *registry.Client, opts ...Option) *Client {
	o := newOptions(opts)
	return &Client{registry: reg, opts: opts, logger: o.logger}
}

// Lookup asks the registry for the provider the next call to sig would use.
func (c *Client) Lookup(ctx context.Context, sig signature.Signature) (registry.Endpoint, error) {
	return c.registry.Lookup(ctx, sig)
}

// Call resolves a provider of sig, pushes args in order and submits the call.
func (c *Client) Call(ctx context.Context, sig signature.Signature, args ...*argument.Argument) (*message.Response, error) {
	if !sig.Valid() {
		return nil, errors.Errorf("invalid service signature '%s'", sig)
	}
	ep, err := c.registry.Lookup(ctx, sig)
	if err != nil {
		return nil, errors.WithMessagef(err, "resolve %s", sig.Name())
	}
	c.logger.Debug("resolved", zap.Stringer("service", sig), zap.Stringer("provider", ep))

	stub := NewStub(sig, ep.Host, ep.Port, c.opts...)
	for _, a := range args {
		if err := stub.PushArgument(a); err != nil {
			return nil, err
		}
	}
	return stub.Submit(ctx)
}
