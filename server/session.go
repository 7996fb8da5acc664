package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"mini-soa/message"
	"mini-soa/protocol"
	"mini-soa/signature"
	"mini-soa/transport"
)

// StatusNotAvailable is returned when no implementation is registered under the requested name.
const StatusNotAvailable = "Service not available."

// StatusInvalidSignature is returned when the requested signature does not parse.
const StatusInvalidSignature = "Invalid service signature."

// StatusNoResponse is returned when an implementation yields no response.
const StatusNoResponse = "Internal error: service returned no response."

// state is a step of the per-connection skeleton:
//
//	AwaitingHeader ──→ ValidatingSignature ──→ AwaitingPayload ──→ Invoking ──→ SendingResponse ──→ Closed
//	      │                   │                       │                              ▲
//	      └───────────────────┴───────────────────────┴──── failure response ────────┘
//
// Every failure before Invoking jumps straight to SendingResponse with a failed Response.
type state int

const (
	stateAwaitingHeader state = iota
	stateValidatingSignature
	stateAwaitingPayload
	stateInvoking
	stateSendingResponse
	stateClosed
)

var stateNames = [...]string{
	stateAwaitingHeader:      "AwaitingHeader",
	stateValidatingSignature: "ValidatingSignature",
	stateAwaitingPayload:     "AwaitingPayload",
	stateInvoking:            "Invoking",
	stateSendingResponse:     "SendingResponse",
	stateClosed:              "Closed",
}

func (s state) String() string { return stateNames[s] }

// session serves exactly one request on one connection. It is owned by a single goroutine.
type session struct {
	srv    *Server
	conn   *transport.Conn
	logger *zap.Logger

	state  state
	header *protocol.Header
	sig    signature.Signature
	svc    *service
	call   *message.Call
	resp   *message.Response
}

func newSession(srv *Server, conn *transport.Conn) *session {
	return &session{
		srv:  srv,
		conn: conn,
		logger: srv.logger.With(
			zap.String("conn", uuid.NewV4().String()),
			zap.Stringer("remote", conn.RemoteAddr()),
		),
		state: stateAwaitingHeader,
		sig:   signature.Any,
	}
}

// run drives the state machine until the connection is closed.
func (s *session) run(ctx context.Context) {
	start := time.Now()
	for s.state != stateClosed {
		s.state = s.step(ctx)
	}
	s.logger.Debug("session closed", zap.Stringer("service", s.sig), zap.Duration("duration", time.Since(start)))
}

func (s *session) step(ctx context.Context) state {
	switch s.state {
	case stateAwaitingHeader:
		return s.readHeader()
	case stateValidatingSignature:
		return s.validate()
	case stateAwaitingPayload:
		return s.readPayload()
	case stateInvoking:
		return s.invoke(ctx)
	case stateSendingResponse:
		return s.send()
	}
	return stateClosed
}

// fail records a failed response and moves to SendingResponse.
func (s *session) fail(status string) state {
	s.logger.Info("request rejected",
		zap.Stringer("state", s.state), zap.Stringer("service", s.sig), zap.String("status", status))
	s.resp = message.Failure(s.sig, status)
	return stateSendingResponse
}

func (s *session) readHeader() state {
	s.conn.ArmReadDeadline(s.srv.opts.ReadTimeout)
	h, err := protocol.ReadHeader(s.conn.Reader())
	if err != nil {
		return s.fail(err.Error())
	}
	s.header = h
	return stateValidatingSignature
}

// validate resolves the implementation by name before a single payload byte is read.
func (s *session) validate() state {
	s.sig = s.srv.sigs.Parse(s.header.Service)
	svc, ok := s.srv.services[s.sig.Name()]
	if !ok {
		return s.fail(StatusNotAvailable)
	}
	if !s.sig.Valid() {
		return s.fail(StatusInvalidSignature)
	}
	if !svc.sig.Equal(s.sig) {
		return s.fail(fmt.Sprintf("Service signature mismatch (must be '%s').", svc.sig))
	}
	if err := protocol.CheckBlocks(s.header, svc.sig.Inputs(), s.srv.opts.MaxPayload); err != nil {
		return s.fail(err.Error())
	}
	s.svc = svc
	return stateAwaitingPayload
}

func (s *session) readPayload() state {
	s.conn.ArmReadDeadline(s.srv.opts.ReadTimeout)
	call, err := message.DecodeCall(s.conn.Reader(), s.svc.sig, s.header, s.srv.opts.MaxPayload)
	if err != nil {
		return s.fail(err.Error())
	}
	s.call = call
	return stateInvoking
}

func (s *session) invoke(ctx context.Context) state {
	resp := s.srv.handler(ctx, s.call)
	if resp == nil {
		return s.fail(StatusNoResponse)
	}
	s.resp = resp
	return stateSendingResponse
}

// lingerTimeout bounds how long a closing session drains request bytes it never read.
const lingerTimeout = time.Second

// send writes the response, then half-closes regardless of the outcome. Request bytes
// left unread, such as the payload of an unknown service, are drained before the
// connection closes so the client can finish writing and read the reply.
func (s *session) send() state {
	err := s.resp.Encode(s.conn, s.srv.opts.Codec)
	if errors.Is(err, message.ErrValidation) {
		// Nothing was written: the implementation left outputs missing.
		s.logger.Warn("response incomplete", zap.Stringer("service", s.sig), zap.Error(err))
		s.resp = message.FailureFromError(s.sig, err)
		err = s.resp.Encode(s.conn, s.srv.opts.Codec)
	}
	if err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
	s.conn.CloseWrite()
	s.conn.Linger(lingerTimeout)
	return stateClosed
}
