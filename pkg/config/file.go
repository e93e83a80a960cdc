package config

import (
	"fmt"

	"github.com/nautkit/anchor/pkg/api"
	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/xlog"
)

// File is the top-level configuration schema.
//
// Example (YAML):
//
//	logger:
//	  level: info
//	service:
//	  name: orders
//	  weight: 100
//	apiServer:
//	  port: 8080
//	registries:
//	  main:
//	    address: etcd://10.0.0.1:2379?backup=10.0.0.2,10.0.0.3
//	  fallback:
//	    address: redis://10.0.1.1:6379
//	    register: false
type File struct {
	// Logger configures the application logger.
	Logger xlog.Config `yaml:"logger" json:"logger" toml:"logger"`

	// Service describes the service being registered.
	Service endpoint.ServiceConfig `yaml:"service" json:"service" toml:"service"`

	// API configures the status server. It only starts when its port is set.
	API api.ServerConfig `yaml:"apiServer" json:"apiServer" toml:"apiServer"`

	// Registries maps a registry name to its endpoint configuration.
	Registries map[string]*endpoint.Config `yaml:"registries" json:"registries" toml:"registries"`
}

// LoadFile loads and materializes a configuration file.
func LoadFile(path string) (*File, error) {
	var f File
	if err := Load(path, &f); err != nil {
		return nil, err
	}
	f.Materialize()
	return &f, nil
}

// Materialize re-runs address materialization for every registry entry.
// Decoding assigns the address field directly, so the update-if-absent fill
// from the address (credentials, protocol, port, parameters) has to be
// replayed; explicitly decoded fields keep their values.
func (f *File) Materialize() {
	for _, cfg := range f.Registries {
		if cfg != nil {
			cfg.SetAddress(cfg.Address)
		}
	}
}

// Validate validates the service section and every registry that
// participates (IsValid). Registries without an address are skipped, the way
// consumers skip them.
func (f *File) Validate() error {
	if f.Service.Name != "" {
		if err := f.Service.Validate(); err != nil {
			return fmt.Errorf("service: %w", err)
		}
	}
	for name, cfg := range f.Registries {
		if cfg == nil || !cfg.IsValid() {
			continue
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("registry %s: %w", name, err)
		}
	}
	return nil
}

// ValidRegistries returns the registries that participate in registry
// operations.
func (f *File) ValidRegistries() map[string]*endpoint.Config {
	out := make(map[string]*endpoint.Config)
	for name, cfg := range f.Registries {
		if cfg != nil && cfg.IsValid() {
			out[name] = cfg
		}
	}
	return out
}
