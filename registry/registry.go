// Package registry implements service discovery: an in-memory directory that maps service
// names to providers, the message protocol spoken with it, and its TCP server and client.
//
//	provider ──registration-request──→ ┌───────────┐
//	         ←─registration-response── │ Directory │  name → (signature, [providers], cursor)
//	client   ──service-request───────→ │           │
//	         ←─service-response─────── └───────────┘
//
// Every exchange uses its own connection: one message in, one message out.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net"

	"mini-soa/signature"
)

var (
	ErrInvalidSignature = errors.New("invalid service signature")
	ErrConflict         = errors.New("service signature conflict")
	ErrNotFound         = errors.New("no provider available")
	ErrInvalidEndpoint  = errors.New("invalid provider endpoint")
)

// ConflictError reports a signature that disagrees with the one registered under its name.
type ConflictError struct {
	Registered signature.Signature
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("service signature conflict: registered as '%s'", e.Registered)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Endpoint is the host and port a provider accepts calls on.
type Endpoint struct {
	Host string `yaml:"host" json:"host"`
	Port string `yaml:"port" json:"port"`
}

func (e Endpoint) String() string { return net.JoinHostPort(e.Host, e.Port) }

// Valid reports whether both parts are set.
func (e Endpoint) Valid() bool { return e.Host != "" && e.Port != "" }

// ParseEndpoint splits "host:port".
func ParseEndpoint(addr string) (Endpoint, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Host: host, Port: port}, nil
}

// Registrar announces providers somewhere clients can find them.
// Deregister with signature.Any withdraws every service of the endpoint.
type Registrar interface {
	Register(ctx context.Context, sig signature.Signature, ep Endpoint) error
	Deregister(ctx context.Context, sig signature.Signature, ep Endpoint) error
}
