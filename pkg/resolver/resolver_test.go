package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"

	grpcresolver "google.golang.org/grpc/resolver"

	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
	"github.com/nautkit/anchor/pkg/xlog"
)

func newTestLogger() *xlog.Logger {
	return &xlog.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// fakeClientConn records every pushed state. The embedded interface covers
// the methods the resolvers never call.
type fakeClientConn struct {
	grpcresolver.ClientConn

	mu     sync.Mutex
	states []grpcresolver.State
}

func (c *fakeClientConn) UpdateState(state grpcresolver.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, state)
	return nil
}

func (c *fakeClientConn) lastState() (grpcresolver.State, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.states) == 0 {
		return grpcresolver.State{}, 0
	}
	return c.states[len(c.states)-1], len(c.states)
}

type fakeDiscovery struct {
	mu        sync.Mutex
	instances []*registry.Instance
	watched   string
	watchErr  error
	closed    bool
}

func (d *fakeDiscovery) Watch(ctx context.Context, serviceName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watched = serviceName
	return d.watchErr
}

func (d *fakeDiscovery) GetInstances() []*registry.Instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.instances
}

func (d *fakeDiscovery) setInstances(instances []*registry.Instance) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.instances = instances
}

func (d *fakeDiscovery) Stop() {}

func (d *fakeDiscovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func testTarget(t *testing.T, raw string) grpcresolver.Target {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) failed: %v", raw, err)
	}
	return grpcresolver.Target{URL: *u}
}

func TestDirectBuilder_Build(t *testing.T) {
	builder := NewDirectBuilder(newTestLogger())
	if builder.Scheme() != SchemeDirect {
		t.Errorf("Scheme() = %q, want %q", builder.Scheme(), SchemeDirect)
	}

	cc := &fakeClientConn{}
	r, err := builder.Build(testTarget(t, "direct:///10.0.0.1:8080, 10.0.0.2:8080,"), cc, grpcresolver.BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer r.Close()

	state, pushes := cc.lastState()
	if pushes != 1 {
		t.Fatalf("got %d state pushes, want 1", pushes)
	}
	if len(state.Addresses) != 2 {
		t.Fatalf("got %d addresses, want 2", len(state.Addresses))
	}
	if state.Addresses[0].Addr != "10.0.0.1:8080" {
		t.Errorf("first address = %q, want 10.0.0.1:8080", state.Addresses[0].Addr)
	}
	if state.Addresses[1].Addr != "10.0.0.2:8080" {
		t.Errorf("second address = %q, want 10.0.0.2:8080", state.Addresses[1].Addr)
	}

	// ResolveNow is a no-op for fixed addresses.
	r.ResolveNow(grpcresolver.ResolveNowOptions{})
	if _, pushes := cc.lastState(); pushes != 1 {
		t.Errorf("got %d state pushes after ResolveNow, want 1", pushes)
	}
}

func newRegistryBuilder(discovery *fakeDiscovery) *Builder {
	b := NewBuilder(newTestLogger(), endpoint.New("etcd://127.0.0.1:2379"))
	b.newDiscovery = func(*xlog.Logger, *endpoint.Config) (registry.Discovery, error) {
		return discovery, nil
	}
	return b
}

func TestBuilder_Build(t *testing.T) {
	discovery := &fakeDiscovery{
		instances: []*registry.Instance{
			{Name: "orders", Addr: "10.0.0.1", Port: 8080, Weight: 5},
			{Name: "orders", Addr: "10.0.0.2", Port: 8080},
		},
	}
	builder := newRegistryBuilder(discovery)
	if builder.Scheme() != SchemeRegistry {
		t.Errorf("Scheme() = %q, want %q", builder.Scheme(), SchemeRegistry)
	}

	cc := &fakeClientConn{}
	r, err := builder.Build(testTarget(t, "registry:///orders"), cc, grpcresolver.BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer r.Close()

	if discovery.watched != "orders" {
		t.Errorf("watched service = %q, want orders", discovery.watched)
	}

	state, pushes := cc.lastState()
	if pushes != 1 {
		t.Fatalf("got %d state pushes, want 1", pushes)
	}
	if len(state.Addresses) != 2 {
		t.Fatalf("got %d addresses, want 2", len(state.Addresses))
	}
	if got := state.Addresses[0].Attributes.Value(WeightAttrKey); got != 5 {
		t.Errorf("weight attribute = %v, want 5", got)
	}
}

func TestBuilder_BuildWatchError(t *testing.T) {
	watchErr := errors.New("backend down")
	discovery := &fakeDiscovery{watchErr: watchErr}
	builder := newRegistryBuilder(discovery)

	_, err := builder.Build(testTarget(t, "registry:///orders"), &fakeClientConn{}, grpcresolver.BuildOptions{})
	if !errors.Is(err, watchErr) {
		t.Fatalf("Build error = %v, want %v", err, watchErr)
	}
	if !discovery.closed {
		t.Error("discovery not closed after watch failure")
	}
}

func TestRegistryResolver_ResolveNow(t *testing.T) {
	discovery := &fakeDiscovery{
		instances: []*registry.Instance{
			{Name: "orders", Addr: "10.0.0.1", Port: 8080},
		},
	}
	builder := newRegistryBuilder(discovery)

	cc := &fakeClientConn{}
	r, err := builder.Build(testTarget(t, "registry:///orders"), cc, grpcresolver.BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer r.Close()

	// Same address set: no extra push.
	r.ResolveNow(grpcresolver.ResolveNowOptions{})
	if _, pushes := cc.lastState(); pushes != 1 {
		t.Fatalf("got %d state pushes for unchanged set, want 1", pushes)
	}

	discovery.setInstances([]*registry.Instance{
		{Name: "orders", Addr: "10.0.0.1", Port: 8080},
		{Name: "orders", Addr: "10.0.0.3", Port: 8080},
	})
	r.ResolveNow(grpcresolver.ResolveNowOptions{})

	state, pushes := cc.lastState()
	if pushes != 2 {
		t.Fatalf("got %d state pushes after change, want 2", pushes)
	}
	if len(state.Addresses) != 2 {
		t.Errorf("got %d addresses, want 2", len(state.Addresses))
	}
}

func TestRegistryResolver_Close(t *testing.T) {
	discovery := &fakeDiscovery{}
	builder := newRegistryBuilder(discovery)

	r, err := builder.Build(testTarget(t, "registry:///orders"), &fakeClientConn{}, grpcresolver.BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	r.Close()
	if !discovery.closed {
		t.Error("discovery not closed")
	}
}
