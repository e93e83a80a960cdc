package registry

import "errors"

var (
	// Configuration errors.
	ErrNoAddress           = errors.New("registry address is not configured")
	ErrUnsupportedProtocol = errors.New("unsupported registry protocol")
	ErrSubscribeDisabled   = errors.New("subscribe is disabled for this registry")
	ErrRegisterDisabled    = errors.New("register is disabled for this registry")

	// Runtime errors.
	ErrNotRegistered       = errors.New("service not registered")
	ErrAlreadyRegistered   = errors.New("service already registered")
	ErrRegistryUnreachable = errors.New("registry is unreachable")
)
