package resolver

import (
	"strings"

	grpcresolver "google.golang.org/grpc/resolver"

	"github.com/nautkit/anchor/pkg/xlog"
)

// DirectBuilder implements grpcresolver.Builder for fixed address lists,
// bypassing the registry entirely. Targets look like
// direct:///10.0.0.1:8080,10.0.0.2:8080; the address list is pushed once
// at build time and never updated.
type DirectBuilder struct {
	log *xlog.Logger
}

// NewDirectBuilder creates a resolver builder for direct connections.
func NewDirectBuilder(log *xlog.Logger) *DirectBuilder {
	return &DirectBuilder{log: log}
}

// Scheme returns the resolver scheme used in gRPC target URLs.
func (b *DirectBuilder) Scheme() string {
	return SchemeDirect
}

// Build parses the comma-separated address list from the target endpoint and
// pushes it to the client connection.
func (b *DirectBuilder) Build(target grpcresolver.Target, cc grpcresolver.ClientConn, opts grpcresolver.BuildOptions) (grpcresolver.Resolver, error) {
	raw := strings.TrimPrefix(target.Endpoint(), "/")

	addrs := make([]grpcresolver.Address, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addrs = append(addrs, grpcresolver.Address{Addr: part})
	}

	if len(addrs) == 0 {
		b.log.Warn("direct resolver built with no addresses", "target", raw)
	} else {
		b.log.Info("direct resolver built", "addresses", len(addrs))
	}

	if err := cc.UpdateState(grpcresolver.State{Addresses: addrs}); err != nil {
		b.log.Warn("failed to update resolver state", "error", err)
	}
	return &directResolver{}, nil
}

// directResolver is inert: the address list is fixed, so there is nothing to
// re-resolve and nothing to clean up.
type directResolver struct{}

func (r *directResolver) ResolveNow(grpcresolver.ResolveNowOptions) {}

func (r *directResolver) Close() {}
