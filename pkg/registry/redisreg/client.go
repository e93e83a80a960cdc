// Package redisreg implements the redis-backed registry: client construction
// from an endpoint config, TTL-key registration with periodic refresh, and
// polling discovery.
package redisreg

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
)

// Options translates a registry endpoint config into redis universal client
// options. A universal client covers single-node, failover and cluster
// deployments with one construction path.
func Options(cfg *endpoint.Config) (*redis.UniversalOptions, error) {
	if cfg == nil || !cfg.IsValid() {
		return nil, registry.ErrNoAddress
	}
	if cfg.ProtocolOrDefault() != endpoint.ProtocolRedis {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnsupportedProtocol, cfg.ProtocolOrDefault())
	}

	addr, err := endpoint.ParseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid registry address: %w", err)
	}

	opts := &redis.UniversalOptions{
		Addrs:       addr.HostPorts(cfg.PortOrDefault()),
		DialTimeout: cfg.TimeoutOrDefault(),
	}

	username, password := cfg.Username, cfg.Password
	if username == "" && password == "" {
		username, password = addr.Username, addr.Password
	}
	opts.Username = username
	opts.Password = password

	if db := cfg.Parameters["db"]; db != "" {
		if _, err := fmt.Sscanf(db, "%d", &opts.DB); err != nil {
			return nil, fmt.Errorf("invalid db parameter %q: %w", db, err)
		}
	}

	return opts, nil
}

// NewClient creates a redis client for the endpoint. When the endpoint has
// check enabled (the default), the registry is pinged first and an
// unreachable registry is a boot error.
func NewClient(cfg *endpoint.Config) (redis.UniversalClient, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewUniversalClient(opts)

	if cfg.CheckEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.TimeoutOrDefault())
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: %v", registry.ErrRegistryUnreachable, err)
		}
	}

	return client, nil
}

// MustNewClient creates a redis client for the endpoint, panicking on
// failure.
func MustNewClient(cfg *endpoint.Config) redis.UniversalClient {
	client, err := NewClient(cfg)
	if err != nil {
		panic("redisreg: failed to create client: " + err.Error())
	}
	return client
}
