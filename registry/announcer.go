package registry

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mini-soa/signature"
)

// Announcer registers a fixed set of services for one endpoint and withdraws them later.
type Announcer struct {
	reg       Registrar
	ep        Endpoint
	sigs      []signature.Signature
	logger    *zap.Logger
	mu        sync.Mutex
	announced []signature.Signature
}

func NewAnnouncer(reg Registrar, ep Endpoint, sigs []signature.Signature, logger *zap.Logger) *Announcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Announcer{reg: reg, ep: ep, sigs: sigs, logger: logger}
}

// Announce registers every service. If any registration fails, the ones that succeeded
// are withdrawn again and the combined error is returned.
func (a *Announcer) Announce(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var done []signature.Signature
	for _, sig := range a.sigs {
		if err := a.reg.Register(ctx, sig, a.ep); err != nil {
			a.logger.Warn("announce failed", zap.Stringer("service", sig), zap.Error(err))
			for _, d := range done {
				err = multierr.Append(err, a.reg.Deregister(ctx, d, a.ep))
			}
			return err
		}
		a.logger.Info("announced", zap.Stringer("service", sig), zap.Stringer("provider", a.ep))
		done = append(done, sig)
	}
	a.announced = done
	return nil
}

// Withdraw deregisters everything Announce registered. It is safe to call more than once.
func (a *Announcer) Withdraw(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	for _, sig := range a.announced {
		if e := a.reg.Deregister(ctx, sig, a.ep); e != nil {
			err = multierr.Append(err, e)
			continue
		}
		a.logger.Info("withdrawn", zap.Stringer("service", sig), zap.Stringer("provider", a.ep))
	}
	a.announced = nil
	return err
}

// Announced lists the services currently registered by this announcer.
func (a *Announcer) Announced() []signature.Signature {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]signature.Signature(nil), a.announced...)
}

// MultiRegistrar fans every call out to all of its registrars.
type MultiRegistrar []Registrar

func (m MultiRegistrar) Register(ctx context.Context, sig signature.Signature, ep Endpoint) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Register(ctx, sig, ep))
	}
	return multierr.Combine(errs...)
}

func (m MultiRegistrar) Deregister(ctx context.Context, sig signature.Signature, ep Endpoint) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Deregister(ctx, sig, ep))
	}
	return multierr.Combine(errs...)
}
