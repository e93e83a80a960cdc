package etcdreg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nautkit/anchor/pkg/registry"
)

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "orders.json")

	instances := map[string]*registry.Instance{
		"/anchor/services/orders/10.0.0.1:8080": {
			Name: "orders", Addr: "10.0.0.1", Port: 8080, Weight: 100,
		},
	}

	if err := saveSnapshot(path, instances); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	restored, err := loadSnapshot(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	inst := restored["/anchor/services/orders/10.0.0.1:8080"]
	if inst == nil || inst.Addr != "10.0.0.1" || inst.Weight != 100 {
		t.Errorf("unexpected restored instance: %+v", inst)
	}
}

func TestLoadSnapshot_Missing(t *testing.T) {
	instances, err := loadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("missing snapshot must not be an error: %v", err)
	}
	if instances != nil {
		t.Errorf("expected nil instances, got %v", instances)
	}
}

func TestLoadSnapshot_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadSnapshot(path); err == nil {
		t.Error("expected error for corrupt snapshot")
	}
}
