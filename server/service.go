package server

import (
	"context"
	"errors"
	"fmt"

	"mini-soa/message"
	"mini-soa/signature"
)

// Implementation is one invocation of a service, built from a complete call.
// Invoke must return a response; returning nil is reported to the caller as an internal error.
type Implementation interface {
	Invoke(ctx context.Context) *message.Response
}

// Factory builds an Implementation for a call whose inputs have all been read.
// A factory error becomes a failed response carrying the error text.
type Factory func(call *message.Call) (Implementation, error)

// InvokeFunc is a stateless service written as a single function.
type InvokeFunc func(ctx context.Context, call *message.Call) *message.Response

// Factory adapts f to the Factory form expected by Register.
func (f InvokeFunc) Factory() Factory {
	return func(call *message.Call) (Implementation, error) {
		return &funcImplementation{fn: f, call: call}, nil
	}
}

type funcImplementation struct {
	fn   InvokeFunc
	call *message.Call
}

func (i *funcImplementation) Invoke(ctx context.Context) *message.Response {
	return i.fn(ctx, i.call)
}

var (
	ErrStarted          = errors.New("server already started")
	ErrInvalidSignature = errors.New("invalid service signature")
	ErrDuplicateService = errors.New("service already registered")
)

// service is one row of the implementation table: the contract and how to serve it.
type service struct {
	sig     signature.Signature
	factory Factory
}

func newService(sig signature.Signature, factory Factory) (*service, error) {
	if !sig.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSignature, sig.String())
	}
	if factory == nil {
		return nil, fmt.Errorf("service %s: nil factory", sig)
	}
	return &service{sig: sig, factory: factory}, nil
}
