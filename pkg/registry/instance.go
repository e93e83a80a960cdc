package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nautkit/anchor/pkg/endpoint"
)

// KeyPrefix is the root of every registration key.
const KeyPrefix = "/anchor/services"

// Instance is one registered service instance.
type Instance struct {
	Name     string            `json:"name"`
	Addr     string            `json:"addr"`
	Port     int               `json:"port"`
	Version  string            `json:"version,omitempty"`
	Group    string            `json:"group,omitempty"`
	Zone     string            `json:"zone,omitempty"`
	Weight   int               `json:"weight,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewInstance builds an Instance for svc listening on addr:port, folding the
// service attributes and the registry endpoint's group/zone into it. The
// endpoint cfg may be nil.
func NewInstance(svc *endpoint.ServiceConfig, cfg *endpoint.Config, addr string, port int) (*Instance, error) {
	if err := svc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %w", err)
	}

	inst := &Instance{
		Name:     svc.Name,
		Addr:     addr,
		Port:     port,
		Version:  svc.Version,
		Group:    svc.Group,
		Weight:   svc.Weight,
		Metadata: svc.Metadata(),
	}

	if cfg != nil {
		// Registry-level group/zone apply when the service sets none.
		if inst.Group == "" {
			inst.Group = cfg.Group
		}
		inst.Zone = cfg.Zone
	}

	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}

// Validate validates the instance.
func (i *Instance) Validate() error {
	if i == nil {
		return errors.New("instance is nil")
	}
	if i.Name == "" {
		return errors.New("name is required")
	}
	if i.Addr == "" {
		return errors.New("addr is required")
	}
	if i.Port <= 0 {
		return errors.New("port is required")
	}
	return nil
}

// Key returns the registration key of this instance, e.g.
// /anchor/services/orders/10.0.0.7:8080 or, under a group,
// /anchor/services/payments/orders/10.0.0.7:8080.
func (i *Instance) Key() string {
	return ServicePrefix(i.Name, i.Group) + fmt.Sprintf("%s:%d", i.Addr, i.Port)
}

// ServicePrefix returns the key prefix under which every instance of the
// named service registers. group may be empty.
func ServicePrefix(serviceName, group string) string {
	if group != "" {
		return fmt.Sprintf("%s/%s/%s/", KeyPrefix, group, serviceName)
	}
	return fmt.Sprintf("%s/%s/", KeyPrefix, serviceName)
}

// HostPort returns the instance address as host:port.
func (i *Instance) HostPort() string {
	return fmt.Sprintf("%s:%d", i.Addr, i.Port)
}

// String implements fmt.Stringer for log output.
func (i *Instance) String() string {
	var b strings.Builder
	b.WriteString(i.Name)
	b.WriteString("@")
	b.WriteString(i.HostPort())
	if i.Version != "" {
		b.WriteString(" v")
		b.WriteString(i.Version)
	}
	return b.String()
}
