package main

import (
	"context"

	"mini-soa/argument"
	"mini-soa/message"
	"mini-soa/server"
	"mini-soa/signature"
)

var (
	echoSig    = signature.New("Echo", []signature.ParamType{signature.String}, []signature.ParamType{signature.String})
	addSig     = signature.New("Add", []signature.ParamType{signature.Int, signature.Int}, []signature.ParamType{signature.Int})
	scaleSig   = signature.New("Scale", []signature.ParamType{signature.Double, signature.Double}, []signature.ParamType{signature.Double})
	reverseSig = signature.New("Reverse", []signature.ParamType{signature.Buffer}, []signature.ParamType{signature.Buffer})
)

// reverse is the one service with per-call state: it is built by a factory from the call.
type reverse struct {
	call *message.Call
	data []byte
}

func newReverse(call *message.Call) (server.Implementation, error) {
	data, err := call.PopBuffer()
	if err != nil {
		return nil, err
	}
	return &reverse{call: call, data: data}, nil
}

func (r *reverse) Invoke(ctx context.Context) *message.Response {
	out := make([]byte, len(r.data))
	for i, b := range r.data {
		out[len(out)-1-i] = b
	}
	resp := message.NewResponse(r.call.Signature())
	resp.PushArgument(argument.Buffer(out))
	return resp
}

func echo(ctx context.Context, call *message.Call) *message.Response {
	s, err := call.PopString()
	if err != nil {
		return message.FailureFromError(call.Signature(), err)
	}
	resp := message.NewResponse(call.Signature())
	resp.PushArgument(argument.String(s))
	return resp
}

func add(ctx context.Context, call *message.Call) *message.Response {
	a, err := call.PopInt32()
	if err != nil {
		return message.FailureFromError(call.Signature(), err)
	}
	b, err := call.PopInt32()
	if err != nil {
		return message.FailureFromError(call.Signature(), err)
	}
	resp := message.NewResponse(call.Signature())
	resp.PushArgument(argument.Int32(a + b))
	return resp
}

func scale(ctx context.Context, call *message.Call) *message.Response {
	x, err := call.PopDouble()
	if err != nil {
		return message.FailureFromError(call.Signature(), err)
	}
	f, err := call.PopDouble()
	if err != nil {
		return message.FailureFromError(call.Signature(), err)
	}
	resp := message.NewResponse(call.Signature())
	resp.PushArgument(argument.Double(x * f))
	return resp
}

func registerServices(svr *server.Server) error {
	for _, s := range []struct {
		sig signature.Signature
		fn  server.InvokeFunc
	}{
		{echoSig, echo},
		{addSig, add},
		{scaleSig, scale},
	} {
		if err := svr.RegisterFunc(s.sig, s.fn); err != nil {
			return err
		}
	}
	return svr.Register(reverseSig, newReverse)
}
