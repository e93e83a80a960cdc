// Package factory constructs registry backends from endpoint configs,
// dispatching on the endpoint protocol.
package factory

import (
	"fmt"

	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
	"github.com/nautkit/anchor/pkg/registry/etcdreg"
	"github.com/nautkit/anchor/pkg/registry/redisreg"
	"github.com/nautkit/anchor/pkg/xlog"
)

// NewDiscovery opens a Discovery for the endpoint. Closing the returned
// Discovery releases the backend client it owns.
func NewDiscovery(log *xlog.Logger, cfg *endpoint.Config) (registry.Discovery, error) {
	switch cfg.ProtocolOrDefault() {
	case endpoint.ProtocolEtcd:
		client, err := etcdreg.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return etcdreg.NewDiscovery(log, cfg, client)

	case endpoint.ProtocolRedis:
		client, err := redisreg.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return redisreg.NewDiscovery(log, cfg, client)

	default:
		return nil, fmt.Errorf("%w: %s", registry.ErrUnsupportedProtocol, cfg.ProtocolOrDefault())
	}
}

// NewRegistrar opens a Registrar that registers instance with the endpoint.
func NewRegistrar(log *xlog.Logger, cfg *endpoint.Config, instance *registry.Instance) (registry.Registrar, error) {
	switch cfg.ProtocolOrDefault() {
	case endpoint.ProtocolEtcd:
		client, err := etcdreg.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return etcdreg.NewRegistrar(log, cfg, client, instance)

	case endpoint.ProtocolRedis:
		client, err := redisreg.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return redisreg.NewRegistrar(log, cfg, client, instance)

	default:
		return nil, fmt.Errorf("%w: %s", registry.ErrUnsupportedProtocol, cfg.ProtocolOrDefault())
	}
}
