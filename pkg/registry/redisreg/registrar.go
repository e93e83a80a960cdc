package redisreg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
	"github.com/nautkit/anchor/pkg/xlog"
)

// opTimeout bounds individual redis operations inside the refresh loop.
const opTimeout = 3 * time.Second

// Registrar registers a service instance in redis and keeps the registration
// alive. It implements registry.Registrar.
//
// Redis has no leases; liveness comes from key TTLs. With a dynamic endpoint
// (the default) the instance key is SET with the endpoint's session TTL and
// refreshed at a third of it, so a dead process expires within one session.
// With dynamic disabled the key is written without expiry and stays until
// removed manually.
type Registrar struct {
	log      *xlog.Logger
	client   redis.UniversalClient
	instance *registry.Instance

	dynamic bool
	session time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// done is closed when the refresh goroutine has stopped.
	done chan struct{}
}

// NewRegistrar creates a Registrar for instance against the given endpoint.
// It returns registry.ErrRegisterDisabled when the endpoint opts out of
// registration.
func NewRegistrar(log *xlog.Logger, cfg *endpoint.Config, client redis.UniversalClient, instance *registry.Instance) (*Registrar, error) {
	if err := instance.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service instance: %w", err)
	}
	if !cfg.RegisterEnabled() {
		return nil, registry.ErrRegisterDisabled
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Registrar{
		log:      log,
		client:   client,
		instance: instance,
		dynamic:  cfg.DynamicEnabled(),
		session:  cfg.SessionOrDefault(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Register starts the registration and returns immediately.
func (r *Registrar) Register() {
	go r.run()
}

// Unregister deletes the instance key and stops the refresh goroutine.
func (r *Registrar) Unregister() {
	r.log.Info("start unregistering service", "key", r.instance.Key())
	r.cancel()

	select {
	case <-r.done:
	case <-time.After(opTimeout):
		r.log.Error("failed to unregister service", "error", "timeout")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := r.client.Del(ctx, r.instance.Key()).Err(); err != nil {
		r.log.Error("failed to delete instance key", "error", err)
	}
}

// run writes the instance and, for dynamic endpoints, keeps refreshing the
// TTL until the registrar stops. Failed writes are retried with exponential
// backoff.
func (r *Registrar) run() {
	defer close(r.done)

	backoff := time.Second
	refresh := r.session / 3
	if refresh < time.Second {
		refresh = time.Second
	}

	registered := false
	for {
		if err := r.putInstance(); err == nil {
			if !registered {
				r.log.Info("service registered", "key", r.instance.Key(), "ttl", r.ttl())
				registered = true
			}
			backoff = time.Second

			if !r.dynamic {
				// No TTL to refresh; hold until unregistered.
				<-r.ctx.Done()
				return
			}

			select {
			case <-time.After(refresh):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		registered = false
		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > opTimeout {
				backoff = opTimeout
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// putInstance SETs the serialized instance, with the session TTL for dynamic
// endpoints and without expiry otherwise.
func (r *Registrar) putInstance() error {
	data, err := json.Marshal(r.instance)
	if err != nil {
		r.log.Error("failed to marshal instance", "instance", r.instance, "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.instance.Key(), data, r.ttl()).Err(); err != nil {
		r.log.Error("failed to set instance key", "error", err)
		return err
	}
	return nil
}

// ttl returns the key expiry: the session for dynamic registrations, none
// otherwise.
func (r *Registrar) ttl() time.Duration {
	if r.dynamic {
		return r.session
	}
	return 0
}
