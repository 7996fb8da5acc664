package registry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"mini-soa/signature"
)

// newTestEtcd connects to a local etcd, skipping the test when none is running.
func newTestEtcd(t *testing.T) *EtcdRegistry {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "localhost:2379", 200*time.Millisecond)
	if err != nil {
		t.Skip("etcd not reachable on localhost:2379")
	}
	conn.Close()

	reg, err := NewEtcdRegistry([]string{"localhost:2379"}, time.Second, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg := newTestEtcd(t)
	ctx := context.Background()
	sig := signature.Parse("EtcdEcho(in string, out string)")
	a := Endpoint{Host: "127.0.0.1", Port: "8001"}
	b := Endpoint{Host: "127.0.0.1", Port: "8002"}

	if err := reg.Register(ctx, sig, a); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, sig, b); err != nil {
		t.Fatal(err)
	}

	eps, err := reg.Discover(ctx, sig)
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 2 {
		t.Fatalf("expect 2 endpoints, got %d", len(eps))
	}

	// Discovery with another contract under the same name finds nothing.
	eps, err = reg.Discover(ctx, signature.Parse("EtcdEcho(in int, out int)"))
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 0 {
		t.Fatalf("expect no endpoints, got %v", eps)
	}

	if err := reg.Deregister(ctx, sig, a); err != nil {
		t.Fatal(err)
	}
	eps, err = reg.Discover(ctx, sig)
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 || eps[0] != b {
		t.Fatalf("expect [%s], got %v", b, eps)
	}

	if err := reg.Deregister(ctx, signature.Any, b); err != nil {
		t.Fatal(err)
	}
	eps, _ = reg.Discover(ctx, sig)
	if len(eps) != 0 {
		t.Fatalf("expect no endpoints, got %v", eps)
	}
}

func TestEtcdKeepAliveFailureLeavesNothing(t *testing.T) {
	reg := newTestEtcd(t)
	ctx := context.Background()
	sig := signature.Parse("EtcdLost(in int, out int)")
	reg.keepAlive = func(context.Context, clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
		return nil, errors.New("keepalive refused")
	}

	if err := reg.Register(ctx, sig, Endpoint{Host: "127.0.0.1", Port: "8003"}); err == nil {
		t.Fatal("expect error")
	}
	eps, err := reg.Discover(ctx, sig)
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 0 {
		t.Fatalf("expect no endpoints, got %v", eps)
	}
	if len(reg.leases) != 0 {
		t.Fatalf("expect no tracked leases, got %d", len(reg.leases))
	}
}

func TestEtcdWatch(t *testing.T) {
	reg := newTestEtcd(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sig := signature.Parse("EtcdWatch(in int, out int)")
	ep := Endpoint{Host: "127.0.0.1", Port: "8003"}

	ch := reg.Watch(ctx, sig)
	// Give the watch a moment to be established.
	time.Sleep(100 * time.Millisecond)
	if err := reg.Register(ctx, sig, ep); err != nil {
		t.Fatal(err)
	}
	defer reg.Deregister(context.Background(), sig, ep)

	select {
	case eps := <-ch:
		if len(eps) != 1 || eps[0] != ep {
			t.Fatalf("expect [%s], got %v", ep, eps)
		}
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
}

func TestEtcdRejectsInvalid(t *testing.T) {
	reg := newTestEtcd(t)
	if err := reg.Register(context.Background(), signature.Parse("Bad("), p1); err != ErrInvalidSignature {
		t.Fatalf("expect invalid signature, got %v", err)
	}
}
