package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mini-soa/codec"
	"mini-soa/signature"
	"mini-soa/transport"
)

// Statuses returned to registry clients.
const (
	StatusRegistered        = "Registered."
	StatusAlreadyRegistered = "Already registered."
	StatusDeregistered      = "Deregistered."
	StatusNotRegistered     = "Not registered."
	StatusNoProvider        = "No provider available for the requested service."
	StatusInvalidSignature  = "Invalid service signature."
	StatusInvalidEndpoint   = "Invalid provider endpoint."
	StatusRateLimited       = "Rate limit exceeded."

	statusConflictPrefix = "Service signature conflict"
)

// ServerOptions tunes a registry Server. The zero value has no limits.
type ServerOptions struct {
	Codec       codec.Codec
	Workers     int           // max concurrently served connections, 0 = unbounded
	ReadTimeout time.Duration // 0 = wait forever
	RateLimit   float64       // requests per second, 0 = unlimited
	Burst       int
	Logger      *zap.Logger

	// Mirror receives every successful (de)registration, best effort.
	Mirror Registrar
}

// Server answers registry messages from a Directory, one message per connection.
type Server struct {
	dir      *Directory
	opts     ServerOptions
	sigs     *signature.Cache
	limiter  *rate.Limiter
	sem      chan struct{}
	logger   *zap.Logger
	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	shutdown atomic.Bool
	ctx      context.Context // Cancelled by Shutdown; releases connections queued for a slot
	cancel   context.CancelFunc
}

func NewServer(dir *Directory, opts ServerOptions) *Server {
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	s := &Server{dir: dir, opts: opts, logger: opts.Logger}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if opts.Workers > 0 {
		s.sem = make(chan struct{}, opts.Workers)
	}
	s.sigs, _ = signature.NewCache(signature.DefaultCacheSize)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Directory is the table this server answers from.
func (s *Server) Directory() *Directory { return s.dir }

func (s *Server) ListenAndServe(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Info("registry serving", zap.Stringer("addr", listener.Addr()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown closes the listener and waits up to timeout for open connections.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdown.Store(true)
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}

func (s *Server) serveConn(nc net.Conn) {
	defer s.wg.Done()
	defer nc.Close()
	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-s.ctx.Done():
			return
		}
	}

	conn := transport.NewConn(nc)
	logger := s.logger.With(zap.String("conn", uuid.NewV4().String()), zap.Stringer("remote", nc.RemoteAddr()))

	conn.ArmReadDeadline(s.opts.ReadTimeout)
	var reply Message
	req, err := ReadMessage(conn.Reader())
	if err != nil {
		reply = &ErrorMessage{Status: err.Error()}
	} else {
		reply = s.Handle(context.Background(), req)
	}
	logger.Debug("registry request", zap.Any("request", req), zap.Any("reply", reply))

	if err := WriteMessage(conn, s.opts.Codec, reply); err != nil {
		logger.Debug("failed to write reply", zap.Error(err))
	}
	conn.CloseWrite()
	conn.Linger(time.Second)
}

// Handle computes the reply to one request.
func (s *Server) Handle(ctx context.Context, req Message) Message {
	if s.limiter != nil && !s.limiter.Allow() {
		return &ErrorMessage{Status: StatusRateLimited}
	}
	switch m := req.(type) {
	case *ServiceRequest:
		return s.lookup(m)
	case *RegistrationRequest:
		if m.Deregister {
			return s.deregister(ctx, m)
		}
		return s.register(ctx, m)
	}
	return &ErrorMessage{Status: fmt.Sprintf("Unexpected message type '%s'.", req.Type())}
}

func (s *Server) lookup(m *ServiceRequest) Message {
	ep, err := s.dir.Lookup(s.sigs.Parse(m.Service))
	if err != nil {
		return &ServiceResponse{Status: statusOf(err)}
	}
	return &ServiceResponse{Successful: true, Host: ep.Host, Port: ep.Port}
}

func (s *Server) register(ctx context.Context, m *RegistrationRequest) Message {
	sig := s.sigs.Parse(m.Service)
	res, err := s.dir.Register(sig, m.Endpoint())
	if err != nil {
		s.logger.Info("registration refused", zap.String("service", m.Service),
			zap.Stringer("provider", m.Endpoint()), zap.Error(err))
		return &RegistrationResponse{Status: statusOf(err)}
	}
	if res == NoOp {
		return &RegistrationResponse{Successful: true, Status: StatusAlreadyRegistered}
	}
	s.logger.Info("provider registered", zap.Stringer("service", sig), zap.Stringer("provider", m.Endpoint()))
	s.mirror(func(r Registrar) error { return r.Register(ctx, sig, m.Endpoint()) })
	return &RegistrationResponse{Successful: true, Status: StatusRegistered}
}

func (s *Server) deregister(ctx context.Context, m *RegistrationRequest) Message {
	sig := s.sigs.Parse(m.Service)
	res, err := s.dir.Deregister(sig, m.Endpoint())
	if err != nil {
		return &RegistrationResponse{Status: statusOf(err)}
	}
	if res == NoOp {
		return &RegistrationResponse{Successful: true, Status: StatusNotRegistered}
	}
	s.logger.Info("provider deregistered", zap.Stringer("service", sig), zap.Stringer("provider", m.Endpoint()))
	s.mirror(func(r Registrar) error { return r.Deregister(ctx, sig, m.Endpoint()) })
	return &RegistrationResponse{Successful: true, Status: StatusDeregistered}
}

func (s *Server) mirror(fn func(Registrar) error) {
	if s.opts.Mirror == nil {
		return
	}
	if err := fn(s.opts.Mirror); err != nil {
		s.logger.Warn("mirror update failed", zap.Error(err))
	}
}

// statusOf maps directory errors to the statuses sent on the wire.
func statusOf(err error) string {
	var ce *ConflictError
	switch {
	case errors.As(err, &ce):
		return fmt.Sprintf("%s (registered as '%s').", statusConflictPrefix, ce.Registered)
	case errors.Is(err, ErrNotFound):
		return StatusNoProvider
	case errors.Is(err, ErrInvalidSignature):
		return StatusInvalidSignature
	case errors.Is(err, ErrInvalidEndpoint):
		return StatusInvalidEndpoint
	}
	return err.Error()
}
