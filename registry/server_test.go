package registry

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"mini-soa/signature"
	"mini-soa/transport"
)

func startRegistry(t *testing.T, opts ServerOptions) (*Server, *Client) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(NewDirectory(), opts)
	go s.Serve(ln)
	t.Cleanup(func() { s.Shutdown(time.Second) })

	ep, err := ParseEndpoint(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return s, NewClient(ep, time.Second, nil)
}

func TestRegistryServerRegisterAndLookup(t *testing.T) {
	_, c := startRegistry(t, ServerOptions{})
	ctx := context.Background()

	if err := c.Register(ctx, echoSig, p1); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(ctx, echoSig, p2); err != nil {
		t.Fatal(err)
	}
	// Registering again is accepted and changes nothing.
	if err := c.Register(ctx, echoSig, p1); err != nil {
		t.Fatal(err)
	}

	for _, want := range []Endpoint{p1, p2, p1} {
		got, err := c.Lookup(ctx, signature.Parse("Echo"))
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("expect %s, got %s", want, got)
		}
	}
}

func TestRegistryServerLookupMissing(t *testing.T) {
	_, c := startRegistry(t, ServerOptions{})

	_, err := c.Lookup(context.Background(), echoSig)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect not found, got %v", err)
	}
	if err.Error() != StatusNoProvider {
		t.Fatalf("expect %q, got %q", StatusNoProvider, err.Error())
	}
}

func TestRegistryServerConflictAndInvalid(t *testing.T) {
	s, c := startRegistry(t, ServerOptions{})
	ctx := context.Background()

	if err := c.Register(ctx, echoSig, p1); err != nil {
		t.Fatal(err)
	}
	err := c.Register(ctx, signature.Parse("Echo(in int, out int)"), p2)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expect status error, got %v", err)
	}
	if want := "Service signature conflict (registered as 'Echo(in string, out string)')."; se.Status != want {
		t.Fatalf("expect %q, got %q", want, se.Status)
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expect conflict, got %v", err)
	}
	if _, err := c.Lookup(ctx, signature.Parse("Echo(in int, out int)")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expect conflict on lookup, got %v", err)
	}

	if err := c.Register(ctx, signature.Parse("Echo(in)"), p2); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expect invalid signature, got %v", err)
	}
	if n := len(s.Directory().Services()[0].Providers); n != 1 {
		t.Fatalf("expect 1 provider, got %d", n)
	}
}

func TestRegistryServerDeregisterProvider(t *testing.T) {
	s, c := startRegistry(t, ServerOptions{})
	ctx := context.Background()

	for _, sig := range []signature.Signature{echoSig, addSig} {
		if err := c.Register(ctx, sig, p1); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Register(ctx, echoSig, p2); err != nil {
		t.Fatal(err)
	}

	if err := c.DeregisterProvider(ctx, p1); err != nil {
		t.Fatal(err)
	}
	services := s.Directory().Services()
	if len(services) != 1 || services[0].Providers[0] != p2 {
		t.Fatalf("unexpected directory %+v", services)
	}
	// Withdrawing an unknown provider still succeeds.
	if err := c.Deregister(ctx, addSig, p3); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryServerAnswersGarbageWithError(t *testing.T) {
	s, _ := startRegistry(t, ServerOptions{})
	ep, _ := ParseEndpoint(s.Addr().String())

	conn, err := transport.Dial(context.Background(), ep.Host, ep.Port, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("type: gossip\n\x00")); err != nil {
		t.Fatal(err)
	}
	conn.CloseWrite()

	reply, err := ReadMessage(conn.Reader())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reply.(*ErrorMessage); !ok {
		t.Fatalf("expect error message, got %#v", reply)
	}
}

func TestRegistryServerShutdownReleasesQueuedConnections(t *testing.T) {
	s, _ := startRegistry(t, ServerOptions{Workers: 1})
	ep, _ := ParseEndpoint(s.Addr().String())

	// The first connection takes the only slot and never sends a request.
	busy, err := transport.Dial(context.Background(), ep.Host, ep.Port, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	queued, err := transport.Dial(context.Background(), ep.Host, ep.Port, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer queued.Close()
	time.Sleep(50 * time.Millisecond)

	if err := s.Shutdown(50 * time.Millisecond); err == nil {
		t.Fatal("expect shutdown timeout while the slot is held")
	}
	queued.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = queued.Reader().ReadByte()
	var ne net.Error
	if err == nil || (errors.As(err, &ne) && ne.Timeout()) {
		t.Fatalf("expect the queued connection to be closed, got %v", err)
	}
}

func TestRegistryServerUnexpectedKind(t *testing.T) {
	s := NewServer(NewDirectory(), ServerOptions{})
	reply := s.Handle(context.Background(), &ServiceResponse{Successful: true})
	e, ok := reply.(*ErrorMessage)
	if !ok || e.Status != "Unexpected message type 'service-response'." {
		t.Fatalf("unexpected reply %#v", reply)
	}
}

func TestRegistryServerRateLimit(t *testing.T) {
	s := NewServer(NewDirectory(), ServerOptions{RateLimit: 0.001, Burst: 1})
	ctx := context.Background()

	s.Handle(ctx, &ServiceRequest{Service: "Echo"})
	reply := s.Handle(ctx, &ServiceRequest{Service: "Echo"})
	if e, ok := reply.(*ErrorMessage); !ok || e.Status != StatusRateLimited {
		t.Fatalf("expect rate limit, got %#v", reply)
	}
}

func TestRegistryClientUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ep, _ := ParseEndpoint(ln.Addr().String())
	ln.Close()

	_, err = NewClient(ep, time.Second, nil).Lookup(context.Background(), echoSig)
	if !transport.IsTransport(err) {
		t.Fatalf("expect transport error, got %v", err)
	}
}

// recordingRegistrar remembers calls and fails registrations of the named services.
type recordingRegistrar struct {
	mu           sync.Mutex
	fail         map[string]bool
	registered   []string
	deregistered []string
}

func (r *recordingRegistrar) Register(_ context.Context, sig signature.Signature, _ Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[sig.Name()] {
		return errors.New("refused " + sig.Name())
	}
	r.registered = append(r.registered, sig.Name())
	return nil
}

func (r *recordingRegistrar) Deregister(_ context.Context, sig signature.Signature, _ Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deregistered = append(r.deregistered, sig.Name())
	return nil
}

func TestRegistryServerMirror(t *testing.T) {
	mirror := &recordingRegistrar{}
	_, c := startRegistry(t, ServerOptions{Mirror: mirror})
	ctx := context.Background()

	c.Register(ctx, echoSig, p1)
	c.Register(ctx, echoSig, p1)
	c.Deregister(ctx, echoSig, p1)

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.registered) != 1 || len(mirror.deregistered) != 1 {
		t.Fatalf("expect one mirrored registration and one removal, got %v / %v", mirror.registered, mirror.deregistered)
	}
}

func TestAnnouncerAnnounceAndWithdraw(t *testing.T) {
	s, c := startRegistry(t, ServerOptions{})
	ctx := context.Background()

	a := NewAnnouncer(c, p1, []signature.Signature{echoSig, addSig}, nil)
	if err := a.Announce(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(s.Directory().Services()); n != 2 {
		t.Fatalf("expect 2 services, got %d", n)
	}
	if n := len(a.Announced()); n != 2 {
		t.Fatalf("expect 2 announced, got %d", n)
	}

	if err := a.Withdraw(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(s.Directory().Services()); n != 0 {
		t.Fatalf("expect empty directory, got %d", n)
	}
	if err := a.Withdraw(ctx); err != nil {
		t.Fatalf("second withdraw: %v", err)
	}
}

func TestAnnouncerRollsBack(t *testing.T) {
	reg := &recordingRegistrar{fail: map[string]bool{"Add": true}}
	a := NewAnnouncer(reg, p1, []signature.Signature{echoSig, addSig}, nil)

	if err := a.Announce(context.Background()); err == nil {
		t.Fatal("expect error")
	}
	if len(reg.deregistered) != 1 || reg.deregistered[0] != "Echo" {
		t.Fatalf("expect Echo rolled back, got %v", reg.deregistered)
	}
	if len(a.Announced()) != 0 {
		t.Fatal("expect nothing announced")
	}
}

func TestMultiRegistrar(t *testing.T) {
	ok := &recordingRegistrar{}
	bad := &recordingRegistrar{fail: map[string]bool{"Echo": true}}
	m := MultiRegistrar{ok, bad}

	if err := m.Register(context.Background(), echoSig, p1); err == nil {
		t.Fatal("expect error")
	}
	if len(ok.registered) != 1 {
		t.Fatal("expect the healthy registrar to be updated")
	}
	if err := m.Deregister(context.Background(), echoSig, p1); err != nil {
		t.Fatal(err)
	}
}
