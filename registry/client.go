package registry

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mini-soa/codec"
	"mini-soa/signature"
	"mini-soa/transport"
)

// ErrUnexpectedReply is returned when the registry answers with the wrong message kind.
var ErrUnexpectedReply = errors.New("unexpected registry reply")

// StatusError is an unsuccessful reply from the registry. Its text is the registry's status.
type StatusError struct {
	Status string
}

func (e *StatusError) Error() string { return e.Status }

// Is lets callers test registry failures against the directory sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == StatusNoProvider
	case ErrInvalidSignature:
		return e.Status == StatusInvalidSignature
	case ErrInvalidEndpoint:
		return e.Status == StatusInvalidEndpoint
	case ErrConflict:
		return strings.HasPrefix(e.Status, statusConflictPrefix)
	}
	return false
}

// Client talks to a registry server. Each call opens its own connection.
type Client struct {
	addr        Endpoint
	dialTimeout time.Duration
	codec       codec.Codec
	logger      *zap.Logger
}

var _ Registrar = (*Client)(nil)

// NewClient creates a client for the registry at addr. A zero dialTimeout means no limit.
func NewClient(addr Endpoint, dialTimeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{addr: addr, dialTimeout: dialTimeout, codec: codec.Default, logger: logger}
}

// WithCodec selects the codec used for outgoing messages.
func (c *Client) WithCodec(cd codec.Codec) *Client {
	c.codec = cd
	return c
}

// Submit sends one message and returns the registry's reply.
func (c *Client) Submit(ctx context.Context, m Message) (Message, error) {
	var reply Message
	err := transport.Exchange(ctx, c.addr.Host, c.addr.Port, c.dialTimeout,
		func(w io.Writer) error { return WriteMessage(w, c.codec, m) },
		func(r *bufio.Reader) error {
			var err error
			reply, err = ReadMessage(r)
			return err
		})
	if err != nil {
		return nil, errors.Wrapf(err, "registry %s", m.Type())
	}
	if e, ok := reply.(*ErrorMessage); ok {
		return nil, &StatusError{Status: e.Status}
	}
	return reply, nil
}

// Lookup asks for the next provider of sig.
func (c *Client) Lookup(ctx context.Context, sig signature.Signature) (Endpoint, error) {
	reply, err := c.Submit(ctx, &ServiceRequest{Service: sig.String()})
	if err != nil {
		return Endpoint{}, err
	}
	resp, ok := reply.(*ServiceResponse)
	if !ok {
		return Endpoint{}, errors.Wrapf(ErrUnexpectedReply, "%s", reply.Type())
	}
	if !resp.Successful {
		return Endpoint{}, &StatusError{Status: resp.Status}
	}
	return resp.Endpoint(), nil
}

// Register announces ep as a provider of sig. Registering twice succeeds.
func (c *Client) Register(ctx context.Context, sig signature.Signature, ep Endpoint) error {
	return c.registration(ctx, &RegistrationRequest{Service: sig.String(), Host: ep.Host, Port: ep.Port})
}

// Deregister withdraws ep from sig. signature.Any withdraws ep from every service.
func (c *Client) Deregister(ctx context.Context, sig signature.Signature, ep Endpoint) error {
	return c.registration(ctx, &RegistrationRequest{Service: sig.String(), Host: ep.Host, Port: ep.Port, Deregister: true})
}

// DeregisterProvider withdraws ep from every service.
func (c *Client) DeregisterProvider(ctx context.Context, ep Endpoint) error {
	return c.Deregister(ctx, signature.Any, ep)
}

func (c *Client) registration(ctx context.Context, req *RegistrationRequest) error {
	reply, err := c.Submit(ctx, req)
	if err != nil {
		return err
	}
	resp, ok := reply.(*RegistrationResponse)
	if !ok {
		return errors.Wrapf(ErrUnexpectedReply, "%s", reply.Type())
	}
	if !resp.Successful {
		return &StatusError{Status: resp.Status}
	}
	c.logger.Debug("registry", zap.String("service", req.Service), zap.Bool("deregister", req.Deregister),
		zap.String("status", resp.Status))
	return nil
}
