package registry

import (
	"testing"

	"github.com/nautkit/anchor/pkg/endpoint"
)

func TestInstance_Key(t *testing.T) {
	inst := &Instance{Name: "orders", Addr: "10.0.0.7", Port: 8080}
	if got := inst.Key(); got != "/anchor/services/orders/10.0.0.7:8080" {
		t.Errorf("unexpected key: %s", got)
	}

	inst.Group = "payments"
	if got := inst.Key(); got != "/anchor/services/payments/orders/10.0.0.7:8080" {
		t.Errorf("unexpected grouped key: %s", got)
	}
}

func TestInstance_Validate(t *testing.T) {
	var nilInst *Instance
	if err := nilInst.Validate(); err == nil {
		t.Error("expected error for nil instance")
	}

	tests := []struct {
		name string
		inst Instance
		ok   bool
	}{
		{"valid", Instance{Name: "orders", Addr: "10.0.0.7", Port: 8080}, true},
		{"missing name", Instance{Addr: "10.0.0.7", Port: 8080}, false},
		{"missing addr", Instance{Name: "orders", Port: 8080}, false},
		{"missing port", Instance{Name: "orders", Addr: "10.0.0.7"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.inst.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewInstance(t *testing.T) {
	svc := &endpoint.ServiceConfig{
		Name:   "orders",
		Weight: 100,
		Token:  "t0k3n",
	}
	cfg := endpoint.New("etcd://10.0.0.1:2379")
	cfg.Group = "prod"
	cfg.Zone = "eu-west"

	inst, err := NewInstance(svc, cfg, "10.0.0.7", 8080)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inst.Group != "prod" {
		t.Errorf("registry group not applied: %q", inst.Group)
	}
	if inst.Zone != "eu-west" {
		t.Errorf("registry zone not applied: %q", inst.Zone)
	}
	if inst.Weight != 100 {
		t.Errorf("service weight not applied: %d", inst.Weight)
	}
	if inst.Metadata["token"] != "t0k3n" {
		t.Errorf("service metadata not applied: %v", inst.Metadata)
	}

	// A service-level group wins over the registry group.
	svc.Group = "canary"
	inst, err = NewInstance(svc, cfg, "10.0.0.7", 8080)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Group != "canary" {
		t.Errorf("service group must win: %q", inst.Group)
	}

	if _, err := NewInstance(&endpoint.ServiceConfig{}, cfg, "10.0.0.7", 8080); err == nil {
		t.Error("expected error for invalid service config")
	}
	if _, err := NewInstance(svc, cfg, "", 8080); err == nil {
		t.Error("expected error for missing addr")
	}
}
