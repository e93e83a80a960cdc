package etcdreg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
	"github.com/nautkit/anchor/pkg/xlog"
)

// opTimeout bounds individual etcd operations inside the register loop.
const opTimeout = 3 * time.Second

// Registrar registers a service instance with etcd and keeps the
// registration alive. It implements registry.Registrar.
//
// With a dynamic endpoint (the default) the instance key is bound to a lease
// with the endpoint's session TTL and refreshed via keepalive; when the
// process dies, the registration expires with the lease. With dynamic
// disabled the key is written without a lease and stays until removed
// manually.
type Registrar struct {
	log        *xlog.Logger
	etcdClient *clientv3.Client
	instance   *registry.Instance

	dynamic    bool
	sessionTTL int64

	ctx    context.Context
	cancel context.CancelFunc

	// done is closed when the register goroutine has stopped.
	done chan struct{}
}

// NewRegistrar creates a Registrar for instance against the given endpoint.
// It returns registry.ErrRegisterDisabled when the endpoint or the service
// opts out of registration.
func NewRegistrar(log *xlog.Logger, cfg *endpoint.Config, etcdClient *clientv3.Client, instance *registry.Instance) (*Registrar, error) {
	if err := instance.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service instance: %w", err)
	}
	if !cfg.RegisterEnabled() {
		return nil, registry.ErrRegisterDisabled
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Registrar{
		log:        log,
		etcdClient: etcdClient,
		instance:   instance,
		dynamic:    cfg.DynamicEnabled(),
		sessionTTL: int64(cfg.SessionOrDefault() / time.Second),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}, nil
}

// Register starts the registration and returns immediately. The registration
// is maintained by a background goroutine until Unregister.
func (r *Registrar) Register() {
	go r.register()
}

// Unregister removes the instance and stops the background goroutine. It
// waits for the goroutine with a timeout and does not block beyond it.
func (r *Registrar) Unregister() {
	r.log.Info("start unregistering service", "key", r.instance.Key())
	r.cancel()

	select {
	case <-r.done:
	case <-time.After(opTimeout):
		r.log.Error("failed to unregister service", "error", "timeout")
	}

	if !r.dynamic {
		// Non-dynamic keys carry no lease; delete explicitly.
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if _, err := r.etcdClient.Delete(ctx, r.instance.Key()); err != nil {
			r.log.Error("failed to delete instance key", "error", err)
		}
	}
}

// register runs the registration loop. For dynamic endpoints it grants a
// lease, writes the instance and blocks in keepalive, re-registering with
// exponential backoff after failures. For non-dynamic endpoints it writes the
// instance once without a lease and waits for cancellation.
func (r *Registrar) register() {
	defer close(r.done)

	if !r.dynamic {
		r.registerStatic()
		return
	}

	backoff := time.Second
	maxBackoff := opTimeout

	for {
		leaseID, err := r.grantLease()
		if err == nil {
			if err = r.putInstance(leaseID); err == nil {
				// Keepalive blocks until it fails or context is canceled.
				r.keepalive(leaseID)
				backoff = time.Second
			}
			// Always revoke after keepalive or a failed registration.
			r.revokeLease(leaseID)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// registerStatic writes the instance without a lease, retrying with backoff
// until it succeeds or the registrar stops.
func (r *Registrar) registerStatic() {
	backoff := time.Second

	for {
		if err := r.putInstance(clientv3.NoLease); err == nil {
			r.log.Info("service registered statically", "key", r.instance.Key())
			<-r.ctx.Done()
			return
		}

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

// grantLease grants a lease with the endpoint's session TTL.
func (r *Registrar) grantLease() (clientv3.LeaseID, error) {
	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	resp, err := r.etcdClient.Grant(ctx, r.sessionTTL)
	if err != nil {
		r.log.Error("failed to grant lease", "error", err)
		return 0, err
	}
	return resp.ID, nil
}

// putInstance stores the serialized instance under its key, bound to leaseID
// unless it is NoLease.
func (r *Registrar) putInstance(leaseID clientv3.LeaseID) error {
	data, err := json.Marshal(r.instance)
	if err != nil {
		r.log.Error("failed to marshal instance", "instance", r.instance, "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	var opts []clientv3.OpOption
	if leaseID != clientv3.NoLease {
		opts = append(opts, clientv3.WithLease(leaseID))
	}

	if _, err := r.etcdClient.Put(ctx, r.instance.Key(), string(data), opts...); err != nil {
		r.log.Error("failed to put instance", "error", err)
		return err
	}

	return nil
}

// keepalive maintains the lease until the channel closes, an error occurs or
// the context is canceled.
func (r *Registrar) keepalive(leaseID clientv3.LeaseID) {
	kaChannel, err := r.etcdClient.KeepAlive(r.ctx, leaseID)
	if err != nil {
		r.log.Error("failed to start keepalive", "error", err)
		return
	}

	r.log.Info("service registered", "key", r.instance.Key(), "lease", leaseID, "ttl", r.sessionTTL)

	for {
		select {
		case resp, ok := <-kaChannel:
			if !ok {
				r.log.Info("keepalive channel closed")
				return
			} else if resp == nil {
				r.log.Error("keepalive response is nil")
				return
			}
		case <-r.ctx.Done():
			r.log.Info("keepalive stopped", "error", r.ctx.Err())
			return
		}
	}
}

// revokeLease revokes the given lease.
func (r *Registrar) revokeLease(leaseID clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.etcdClient.Revoke(ctx, leaseID); err != nil {
		r.log.Error("failed to revoke lease", "error", err)
	}
}
