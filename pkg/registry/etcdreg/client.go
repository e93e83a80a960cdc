// Package etcdreg implements the etcd-backed registry: client construction
// from an endpoint config, instance registration with lease keepalive, and
// prefix-watch discovery.
package etcdreg

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
)

// autoSyncInterval is how often the client syncs cluster membership.
const autoSyncInterval = 60 * time.Second

// ClientConfig translates a registry endpoint config into an etcd client
// config. The endpoint list is the address host list plus any backup
// addresses carried by the reserved backup parameter.
func ClientConfig(cfg *endpoint.Config) (*clientv3.Config, error) {
	if cfg == nil || !cfg.IsValid() {
		return nil, registry.ErrNoAddress
	}
	if cfg.ProtocolOrDefault() != endpoint.ProtocolEtcd {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnsupportedProtocol, cfg.ProtocolOrDefault())
	}

	addr, err := endpoint.ParseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid registry address: %w", err)
	}

	out := &clientv3.Config{
		Endpoints:        addr.HostPorts(cfg.PortOrDefault()),
		DialTimeout:      cfg.TimeoutOrDefault(),
		AutoSyncInterval: autoSyncInterval,
	}

	// The config fields win over address-embedded credentials; SetAddress
	// only fills them when unset, so usually they agree.
	username, password := cfg.Username, cfg.Password
	if username == "" {
		username, password = addr.Username, addr.Password
	}
	if username != "" {
		out.Username = username
		out.Password = password
	}

	return out, nil
}

// NewClient creates an etcd client for the endpoint. When the endpoint has
// check enabled (the default), the registry is probed first and an
// unreachable registry is a boot error.
func NewClient(cfg *endpoint.Config) (*clientv3.Client, error) {
	clientCfg, err := ClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := clientv3.New(*clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	if cfg.CheckEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.TimeoutOrDefault())
		defer cancel()

		if _, err := client.Status(ctx, clientCfg.Endpoints[0]); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: %v", registry.ErrRegistryUnreachable, err)
		}
	}

	return client, nil
}

// MustNewClient creates an etcd client for the endpoint, panicking on
// failure.
func MustNewClient(cfg *endpoint.Config) *clientv3.Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic("etcdreg: failed to create client: " + err.Error())
	}
	return client
}
