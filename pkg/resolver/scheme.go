// Package resolver provides gRPC resolver implementations on top of the
// registry abstraction: discovery-backed resolution and direct connection.
package resolver

const (
	// SchemeRegistry is the scheme for registry-backed service discovery.
	// Targets using this scheme should be in the format: registry:///service-name
	SchemeRegistry = "registry"

	// SchemeDirect is the scheme for direct connection without service
	// discovery. Targets using this scheme should be in the format:
	// direct:///ip1:port1,ip2:port2
	SchemeDirect = "direct"
)
