// Package registry defines the backend-independent service registry surface:
// the instance model, the registrar and discovery interfaces, and the shared
// error values. Concrete backends live in the etcdreg and redisreg
// subpackages and are constructed from endpoint configs.
package registry

import "context"

// Registrar registers a service instance with a registry and keeps the
// registration alive until Unregister is called.
type Registrar interface {
	// Register starts the registration. It returns immediately; the
	// registration is maintained by a background loop.
	Register()

	// Unregister removes the instance from the registry and stops the
	// background loop.
	Unregister()
}

// Discovery watches the instance list of one service.
type Discovery interface {
	// Watch loads the current instances of serviceName and starts watching
	// for changes.
	Watch(ctx context.Context, serviceName string) error

	// GetInstances returns a snapshot of the currently known instances.
	GetInstances() []*Instance

	// Stop stops watching. Close stops watching and releases the backend
	// client.
	Stop()
	Close() error
}
