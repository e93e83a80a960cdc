package resolver

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/attributes"
	grpcresolver "google.golang.org/grpc/resolver"

	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
	"github.com/nautkit/anchor/pkg/registry/factory"
	"github.com/nautkit/anchor/pkg/xlog"
)

// WeightAttrKey is the resolver address attribute carrying the instance
// weight, for balancers that honor it.
const WeightAttrKey = "anchor.weight"

// refreshInterval is how often the resolver re-reads the discovery snapshot.
const refreshInterval = 3 * time.Second

// Builder implements grpcresolver.Builder over a registry endpoint. Each
// built resolver opens its own Discovery for the target service.
type Builder struct {
	log *xlog.Logger
	cfg *endpoint.Config

	// newDiscovery is swapped by tests.
	newDiscovery func(*xlog.Logger, *endpoint.Config) (registry.Discovery, error)
}

// NewBuilder creates a resolver builder for the given registry endpoint.
// Use it with grpc.WithResolvers; targets look like registry:///orders.
func NewBuilder(log *xlog.Logger, cfg *endpoint.Config) *Builder {
	return &Builder{
		log:          log,
		cfg:          cfg,
		newDiscovery: factory.NewDiscovery,
	}
}

// Scheme returns the resolver scheme used in gRPC target URLs.
func (b *Builder) Scheme() string {
	return SchemeRegistry
}

// Build opens a Discovery for the target service and starts pushing address
// updates to the client connection.
func (b *Builder) Build(target grpcresolver.Target, cc grpcresolver.ClientConn, opts grpcresolver.BuildOptions) (grpcresolver.Resolver, error) {
	serviceName := strings.TrimPrefix(target.Endpoint(), "/")
	log := &xlog.Logger{Logger: b.log.With("component", "resolver", "service", serviceName)}

	discovery, err := b.newDiscovery(b.log, b.cfg)
	if err != nil {
		log.Error("failed to open discovery", "error", err)
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &registryResolver{
		cc:        cc,
		discovery: discovery,
		log:       log,
		cancel:    cancel,
	}

	if err := discovery.Watch(ctx, serviceName); err != nil {
		cancel()
		discovery.Close()
		log.Error("failed to watch service", "error", err)
		return nil, err
	}

	r.push()
	go r.refresh(ctx)

	return r, nil
}

// registryResolver implements grpcresolver.Resolver on top of a Discovery
// snapshot, re-reading it periodically and pushing on change.
type registryResolver struct {
	cc        grpcresolver.ClientConn
	discovery registry.Discovery
	log       *xlog.Logger
	cancel    context.CancelFunc

	mu        sync.Mutex
	lastAddrs string
}

// ResolveNow pushes the current snapshot immediately.
func (r *registryResolver) ResolveNow(grpcresolver.ResolveNowOptions) {
	r.push()
}

// Close stops the refresh loop and releases the discovery.
func (r *registryResolver) Close() {
	r.cancel()
	r.discovery.Close()
	r.log.Info("resolver closed")
}

func (r *registryResolver) refresh(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.push()
		case <-ctx.Done():
			return
		}
	}
}

// push converts the discovery snapshot into resolver addresses and updates
// the client connection when the address set changed.
func (r *registryResolver) push() {
	instances := r.discovery.GetInstances()

	addrs := make([]grpcresolver.Address, 0, len(instances))
	keys := make([]string, 0, len(instances))
	for _, inst := range instances {
		addrs = append(addrs, grpcresolver.Address{
			Addr:       inst.HostPort(),
			Attributes: attributes.New(WeightAttrKey, inst.Weight),
		})
		keys = append(keys, inst.HostPort())
	}

	sort.Strings(keys)
	fingerprint := strings.Join(keys, ",")

	r.mu.Lock()
	unchanged := fingerprint == r.lastAddrs
	r.lastAddrs = fingerprint
	r.mu.Unlock()
	if unchanged {
		return
	}

	if err := r.cc.UpdateState(grpcresolver.State{Addresses: addrs}); err != nil {
		r.log.Warn("failed to update resolver state", "error", err)
	}
	r.log.Info("resolver state updated", "addresses", len(addrs))
}
