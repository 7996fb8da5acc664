package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mini-soa/signature"
)

// EtcdPrefix roots every key written by EtcdRegistry.
//
//	Key:   /mini-soa/services/{name}/{host:port}
//	Value: YAML record with the full signature and the endpoint
const EtcdPrefix = "/mini-soa/services/"

// DefaultLeaseTTL is the lease lifetime in seconds when none is configured.
const DefaultLeaseTTL int64 = 10

// EtcdRecord is the value stored for one provider of one service.
type EtcdRecord struct {
	Service string `yaml:"service"`
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
}

// EtcdRegistry mirrors registrations into etcd under TTL leases, so providers of a
// crashed registry or provider disappear once their lease expires.
type EtcdRegistry struct {
	client *clientv3.Client
	ttl    int64
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease kept alive for it

	keepAlive func(context.Context, clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error)
}

var _ Registrar = (*EtcdRegistry)(nil)

// NewEtcdRegistry connects to the given etcd endpoints. ttl ≤ 0 selects DefaultLeaseTTL.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, ttl int64, logger *zap.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect etcd")
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdRegistry{
		client:    c,
		ttl:       ttl,
		logger:    logger,
		leases:    make(map[string]clientv3.LeaseID),
		keepAlive: c.KeepAlive,
	}, nil
}

func etcdServicePrefix(name string) string { return EtcdPrefix + name + "/" }

func etcdKey(name string, ep Endpoint) string { return etcdServicePrefix(name) + ep.String() }

// Register writes the record under a fresh lease and keeps the lease alive until
// Deregister or Close. Registering an existing key replaces its lease.
func (r *EtcdRegistry) Register(ctx context.Context, sig signature.Signature, ep Endpoint) error {
	if !sig.Valid() {
		return ErrInvalidSignature
	}
	if !ep.Valid() {
		return ErrInvalidEndpoint
	}
	val, err := yaml.Marshal(EtcdRecord{Service: sig.String(), Host: ep.Host, Port: ep.Port})
	if err != nil {
		return err
	}

	lease, err := r.client.Grant(ctx, r.ttl)
	if err != nil {
		return errors.Wrap(err, "grant lease")
	}
	key := etcdKey(sig.Name(), ep)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		r.revoke(ctx, lease.ID)
		return errors.Wrapf(err, "put %s", key)
	}

	// The keepalive outlives ctx; it stops when the lease is revoked or the client closes.
	ch, err := r.keepAlive(context.Background(), lease.ID)
	if err != nil {
		// Revoking the lease also deletes the key just put.
		r.revoke(ctx, lease.ID)
		return errors.Wrap(err, "keep lease alive")
	}
	go func() {
		for range ch {
		}
	}()

	r.mu.Lock()
	old, had := r.leases[key]
	r.leases[key] = lease.ID
	r.mu.Unlock()
	if had {
		r.revoke(ctx, old)
	}
	return nil
}

// Deregister deletes the provider's key for sig. signature.Any deletes the provider's
// key under every service.
func (r *EtcdRegistry) Deregister(ctx context.Context, sig signature.Signature, ep Endpoint) error {
	if sig.IsAny() {
		return r.deregisterProvider(ctx, ep)
	}
	return r.delete(ctx, etcdKey(sig.Name(), ep))
}

func (r *EtcdRegistry) deregisterProvider(ctx context.Context, ep Endpoint) error {
	resp, err := r.client.Get(ctx, EtcdPrefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return errors.Wrap(err, "list services")
	}
	suffix := "/" + ep.String()
	var errs error
	for _, kv := range resp.Kvs {
		if key := string(kv.Key); strings.HasSuffix(key, suffix) {
			errs = multierr.Append(errs, r.delete(ctx, key))
		}
	}
	return errs
}

func (r *EtcdRegistry) delete(ctx context.Context, key string) error {
	r.mu.Lock()
	id, had := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if _, err := r.client.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	if had {
		r.revoke(ctx, id)
	}
	return nil
}

func (r *EtcdRegistry) revoke(ctx context.Context, id clientv3.LeaseID) {
	if _, err := r.client.Revoke(ctx, id); err != nil {
		r.logger.Debug("revoke lease", zap.Int64("lease", int64(id)), zap.Error(err))
	}
}

// Discover returns the endpoints currently stored for sig's name. Records whose signature
// differs from a valid sig are skipped, and malformed records are ignored.
func (r *EtcdRegistry) Discover(ctx context.Context, sig signature.Signature) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, etcdServicePrefix(sig.Name()), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrap(err, "discover")
	}
	eps := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec EtcdRecord
		if err := yaml.Unmarshal(kv.Value, &rec); err != nil {
			continue
		}
		if sig.Valid() && !signature.Parse(rec.Service).Equal(sig) {
			continue
		}
		eps = append(eps, Endpoint{Host: rec.Host, Port: rec.Port})
	}
	return eps, nil
}

// Watch emits the full endpoint list of sig's name after every change under its prefix.
// The channel is closed when ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, sig signature.Signature) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, etcdServicePrefix(sig.Name()), clientv3.WithPrefix()) {
			eps, err := r.Discover(ctx, sig)
			if err != nil {
				r.logger.Debug("watch discover", zap.Error(err))
				continue
			}
			select {
			case ch <- eps:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Close revokes every lease held by this registry and closes the etcd client.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	leases := r.leases
	r.leases = make(map[string]clientv3.LeaseID)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var err error
	for _, id := range leases {
		_, e := r.client.Revoke(ctx, id)
		err = multierr.Append(err, e)
	}
	return multierr.Append(err, r.client.Close())
}
