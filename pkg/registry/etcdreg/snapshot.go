package etcdreg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nautkit/anchor/pkg/registry"
)

// loadSnapshot reads a cached instance list written by saveSnapshot.
func loadSnapshot(path string) (map[string]*registry.Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var instances map[string]*registry.Instance
	if err := json.Unmarshal(data, &instances); err != nil {
		return nil, fmt.Errorf("corrupt snapshot: %w", err)
	}
	return instances, nil
}

// saveSnapshot atomically persists the instance list as JSON, writing a temp
// file first and renaming it into place.
func saveSnapshot(path string, instances map[string]*registry.Instance) error {
	data, err := json.Marshal(instances)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
