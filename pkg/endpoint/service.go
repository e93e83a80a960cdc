package endpoint

import (
	"errors"
	"strconv"
	"time"
)

// ServiceConfig describes how a service presents itself to registries.
// It complements Config: Config says where to register, ServiceConfig says
// what gets registered.
type ServiceConfig struct {
	// Name is the service name used as the registration key.
	Name string `yaml:"name" json:"name" toml:"name"`

	// Version of the service, usually bumped on incompatible changes.
	Version string `yaml:"version" json:"version,omitempty" toml:"version"`

	// Group distinguishes multiple implementations of one service.
	Group string `yaml:"group" json:"group,omitempty" toml:"group"`

	// Weight of the service instance for load balancing.
	Weight int `yaml:"weight" json:"weight,omitempty" toml:"weight"`

	// Delay postpones registration after startup.
	Delay time.Duration `yaml:"delay" json:"delay,omitempty" toml:"delay"`

	// Warmup is the period over which traffic ramps up to a fresh instance.
	Warmup time.Duration `yaml:"warmup" json:"warmup,omitempty" toml:"warmup"`

	// Token guards direct access that bypasses the registry (optional).
	Token string `yaml:"token" json:"token,omitempty" toml:"token"`

	// Accesslog enables access logging for the service when non-empty; it
	// may name a log file.
	Accesslog string `yaml:"accesslog" json:"accesslog,omitempty" toml:"accesslog"`

	// Serialization names the payload serialization in instance metadata.
	Serialization string `yaml:"serialization" json:"serialization,omitempty" toml:"serialization"`

	// Deprecated marks the service as deprecated; consumers log a warning
	// when referencing it.
	Deprecated bool `yaml:"deprecated" json:"deprecated,omitempty" toml:"deprecated"`

	// Export reports whether the service is exported at all (default: true).
	Export *bool `yaml:"export" json:"export,omitempty" toml:"export"`

	// Dynamic mirrors Config.Dynamic at the service level (default: true).
	Dynamic *bool `yaml:"dynamic" json:"dynamic,omitempty" toml:"dynamic"`

	// Register reports whether the service registers to registries at all
	// (default: true).
	Register *bool `yaml:"register" json:"register,omitempty" toml:"register"`
}

// Validate validates the service configuration.
func (s *ServiceConfig) Validate() error {
	if s.Name == "" {
		return errors.New("service name is required")
	}
	if s.Weight < 0 {
		return errors.New("service weight must not be negative")
	}
	return nil
}

// ExportEnabled reports whether the service is exported.
func (s *ServiceConfig) ExportEnabled() bool { return boolOrDefault(s.Export, true) }

// DynamicEnabled reports whether the service registers dynamically.
func (s *ServiceConfig) DynamicEnabled() bool { return boolOrDefault(s.Dynamic, true) }

// RegisterEnabled reports whether the service registers to registries.
func (s *ServiceConfig) RegisterEnabled() bool { return boolOrDefault(s.Register, true) }

// Metadata renders the service attributes that travel with a registered
// instance. Zero-valued attributes are omitted.
func (s *ServiceConfig) Metadata() map[string]string {
	md := make(map[string]string)
	if s.Token != "" {
		md["token"] = s.Token
	}
	if s.Accesslog != "" {
		md["accesslog"] = s.Accesslog
	}
	if s.Serialization != "" {
		md["serialization"] = s.Serialization
	}
	if s.Warmup > 0 {
		md["warmup"] = strconv.FormatInt(s.Warmup.Milliseconds(), 10)
	}
	if s.Deprecated {
		md["deprecated"] = "true"
	}
	if len(md) == 0 {
		return nil
	}
	return md
}
