// Package server implements the provider side: an implementation table, a listener and
// the per-connection skeleton that serves one call per connection.
//
// Request processing pipeline:
//
//	Accept conn → go session.run (one goroutine per connection, Accept re-arms immediately)
//	  → ReadHeader → resolve service by name → ReadPayload (one batched read)
//	    → Middleware Chain → Factory(call).Invoke → Response.Encode → CloseWrite → Close
//
// The implementation table is filled with Register before Serve and is read-only afterwards,
// so sessions read it without locking.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mini-soa/codec"
	"mini-soa/message"
	"mini-soa/middleware"
	"mini-soa/protocol"
	"mini-soa/registry"
	"mini-soa/signature"
	"mini-soa/transport"
)

// Options tunes a Server. The zero value serves without limits or timeouts.
type Options struct {
	Codec       codec.Codec   // header codec for responses (YAML by default)
	Workers     int           // max concurrently served connections, 0 = unbounded
	ReadTimeout time.Duration // per read state, 0 = wait forever
	MaxPayload  int64         // max sum of request blocks, 0 = protocol.DefaultMaxPayload
	Logger      *zap.Logger

	// Registrar, when set, receives every registered service at Serve and loses them at
	// Shutdown. Advertise is the endpoint announced; an empty host is derived from the listener.
	Registrar registry.Registrar
	Advertise registry.Endpoint
}

type Option func(*Options)

func WithCodec(c codec.Codec) Option { return func(o *Options) { o.Codec = c } }
func WithWorkers(n int) Option { return func(o *Options) { o.Workers = n } }
func WithReadTimeout(d time.Duration) Option { return func(o *Options) { o.ReadTimeout = d } }
func WithMaxPayload(n int64) Option { return func(o *Options) { o.MaxPayload = n } }
func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }
func WithAdvertise(ep registry.Endpoint) Option { return func(o *Options) { o.Advertise = ep } }
func WithRegistrar(r registry.Registrar) Option { return func(o *Options) { o.Registrar = r } }

// Server is the provider listener.
type Server struct {
	opts        Options
	services    map[string]*service     // Implementation table: "Echo" → *service
	sigs        *signature.Cache        // Parsed request signatures
	mu          sync.Mutex              // Guards listener and announcer
	listener    net.Listener            // TCP listener
	wg          sync.WaitGroup          // Tracks live sessions for graceful shutdown
	started     atomic.Bool             // Set by Serve; freezes the implementation table
	shutdown    atomic.Bool             // Set during shutdown to suppress Accept errors
	middlewares []middleware.Middleware // Registered middlewares (applied in order)
	handler     middleware.HandlerFunc  // middleware(middleware(...(businessHandler)))
	sem         chan struct{}           // Session slots when Workers > 0
	announcer   *registry.Announcer
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer creates a server with an empty implementation table.
func NewServer(opts ...Option) *Server {
	s := new(Server)
	for _, opt := range opts {
		opt(&s.opts)
	}
	if s.opts.Codec == nil {
		s.opts.Codec = codec.Default
	}
	if s.opts.MaxPayload <= 0 {
		s.opts.MaxPayload = protocol.DefaultMaxPayload
	}
	s.logger = s.opts.Logger
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.services = make(map[string]*service)
	s.sigs, _ = signature.NewCache(signature.DefaultCacheSize)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Register adds an implementation for sig. Names are unique per server, and the table
// cannot change once Serve has been called.
func (svr *Server) Register(sig signature.Signature, factory Factory) error {
	if svr.started.Load() {
		return ErrStarted
	}
	svc, err := newService(sig, factory)
	if err != nil {
		return err
	}
	if _, ok := svr.services[sig.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateService, sig.Name())
	}
	svr.services[sig.Name()] = svc
	return nil
}

// RegisterFunc is Register for a stateless function.
func (svr *Server) RegisterFunc(sig signature.Signature, fn InvokeFunc) error {
	return svr.Register(sig, fn.Factory())
}

// Use registers a middleware. Middlewares are applied in the order they are added, and
// the chain is fixed once Serve has been called.
func (svr *Server) Use(mw middleware.Middleware) error {
	if svr.started.Load() {
		return ErrStarted
	}
	svr.middlewares = append(svr.middlewares, mw)
	return nil
}

// Signatures lists the registered services.
func (svr *Server) Signatures() []signature.Signature {
	sigs := make([]signature.Signature, 0, len(svr.services))
	for _, svc := range svr.services {
		sigs = append(sigs, svc.sig)
	}
	return sigs
}

// ListenAndServe listens on address and calls Serve.
func (svr *Server) ListenAndServe(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.Serve(listener)
}

// Serve announces the registered services (if a Registrar is configured) and accepts
// connections until Shutdown. Each connection is handed to its own session goroutine
// right away, so a slow client never delays Accept.
func (svr *Server) Serve(listener net.Listener) error {
	if svr.started.Swap(true) {
		listener.Close()
		return ErrStarted
	}
	svr.mu.Lock()
	svr.listener = listener
	svr.mu.Unlock()

	// The recover middleware sits innermost so it also covers implementations that run
	// inside the timeout middleware's goroutine.
	mws := append(append([]middleware.Middleware{}, svr.middlewares...), middleware.RecoverMiddleware(svr.logger))
	svr.handler = middleware.Chain(mws...)(svr.businessHandler)

	if svr.opts.Workers > 0 {
		svr.sem = make(chan struct{}, svr.opts.Workers)
	}

	if svr.opts.Registrar != nil {
		ann := registry.NewAnnouncer(svr.opts.Registrar, svr.advertise(), svr.Signatures(), svr.logger)
		if err := ann.Announce(svr.ctx); err != nil {
			listener.Close()
			return fmt.Errorf("announce services: %w", err)
		}
		svr.mu.Lock()
		svr.announcer = ann
		svr.mu.Unlock()
	}

	svr.logger.Info("serving", zap.Stringer("addr", listener.Addr()), zap.Int("services", len(svr.services)))

	// Accept loop: one goroutine per connection
	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		svr.wg.Add(1)
		go svr.serveConn(conn)
	}
}

// Addr is the listening address, or nil before Serve.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

func (svr *Server) serveConn(conn net.Conn) {
	defer svr.wg.Done()
	defer conn.Close()

	if svr.sem != nil {
		select {
		case svr.sem <- struct{}{}:
			defer func() { <-svr.sem }()
		case <-svr.ctx.Done():
			return
		}
	}
	newSession(svr, transport.NewConn(conn)).run(svr.ctx)
}

// advertise fills in the announced host from the listener when none was configured.
func (svr *Server) advertise() registry.Endpoint {
	ep := svr.opts.Advertise
	host, port, err := net.SplitHostPort(svr.Addr().String())
	if err != nil {
		return ep
	}
	if ep.Port == "" {
		ep.Port = port
	}
	if ep.Host == "" {
		ep.Host = host
		if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
			ep.Host = "127.0.0.1"
		}
	}
	return ep
}

// Shutdown performs graceful shutdown:
//  1. Withdraw all services from the registry (clients stop being routed here)
//  2. Set shutdown flag (so Accept error is recognized as intentional)
//  3. Close the listener (stop accepting new connections)
//  4. Wait for in-flight sessions to finish, abandoning them after timeout
func (svr *Server) Shutdown(timeout time.Duration) error {
	var err error
	svr.mu.Lock()
	ann := svr.announcer
	svr.mu.Unlock()
	if ann != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err = ann.Withdraw(ctx)
		cancel()
	}

	svr.shutdown.Store(true)
	svr.mu.Lock()
	if svr.listener != nil {
		svr.listener.Close()
	}
	svr.mu.Unlock()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		err = multierr.Append(err, fmt.Errorf("timeout waiting for ongoing requests to finish"))
	}
	svr.cancel()
	return err
}

// businessHandler builds the implementation for a complete call and invokes it.
// It is wrapped by the middleware chain and has the HandlerFunc signature.
func (svr *Server) businessHandler(ctx context.Context, call *message.Call) *message.Response {
	svc, ok := svr.services[call.Signature().Name()]
	if !ok {
		return message.Failure(call.Signature(), StatusNotAvailable)
	}
	impl, err := svc.factory(call)
	if err != nil {
		return message.FailureFromError(call.Signature(), err)
	}
	if impl == nil {
		return message.Failure(call.Signature(), StatusNoResponse)
	}
	return impl.Invoke(ctx)
}
