package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// BackupKey is the reserved query parameter that carries backup registry
// addresses. It never propagates into Config.Parameters; client construction
// consumes it directly from the parsed address.
const BackupKey = "backup"

// Address is the parsed form of an endpoint address string.
type Address struct {
	// Protocol is the registry scheme (e.g. "etcd", "redis"). Empty when the
	// address carries no scheme.
	Protocol string

	// Username and Password come from the userinfo component.
	Username string
	Password string

	// Host is the primary registry host.
	Host string

	// Port is the primary registry port, 0 when the address carries none.
	Port int

	// Backups are additional hosts from a comma-separated host list
	// (e.g. "host1:2379,host2:2379"). The first entry is the primary.
	Backups []string

	// Parameters are the decoded query parameters, including BackupKey
	// when present.
	Parameters map[string]string
}

// ParseAddress parses a raw endpoint address of the form
//
//	[scheme://][user[:password]@]host[:port][?key1=v1&key2=v2]
//
// The host component may be a comma-separated list; the first entry is the
// primary and the rest become Backups. Malformed input returns an error.
func ParseAddress(raw string) (*Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty address")
	}

	var scheme, rest string
	if i := strings.Index(raw, "://"); i >= 0 {
		scheme = raw[:i]
		rest = raw[i+3:]
	} else {
		rest = raw
	}
	if rest == "" {
		return nil, errors.New("address has no host")
	}

	// Split the comma-separated host list before handing the primary to
	// net/url, which would otherwise fold list entries into host:port.
	authority, query := rest, ""
	if i := strings.Index(rest, "?"); i >= 0 {
		authority, query = rest[:i], rest[i+1:]
	}

	parts := strings.Split(authority, ",")
	primary := parts[0]
	var backups []string
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p != "" {
			backups = append(backups, p)
		}
	}

	target := "//" + primary
	if query != "" {
		target += "?" + query
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid address %q: no host", raw)
	}

	addr := &Address{
		Protocol: scheme,
		Host:     u.Hostname(),
		Backups:  backups,
	}

	if user := u.User; user != nil {
		addr.Username = user.Username()
		addr.Password, _ = user.Password()
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port in address %q: %w", raw, err)
		}
		addr.Port = port
	}

	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters in address %q: %w", raw, err)
	}
	if len(values) > 0 {
		addr.Parameters = make(map[string]string, len(values))
		for key := range values {
			addr.Parameters[key] = values.Get(key)
		}
	}

	return addr, nil
}

// HostPorts returns every registry node address as host:port, primary first.
// It merges the comma-separated host list with the reserved backup parameter
// and applies defaultPort to entries without an explicit port.
func (a *Address) HostPorts(defaultPort int) []string {
	out := make([]string, 0, 1+len(a.Backups))

	port := a.Port
	if port == 0 {
		port = defaultPort
	}
	out = append(out, fmt.Sprintf("%s:%d", a.Host, port))

	for _, b := range a.Backups {
		out = append(out, withDefaultPort(b, defaultPort))
	}
	if backup := a.Parameters[BackupKey]; backup != "" {
		for _, b := range strings.Split(backup, ",") {
			b = strings.TrimSpace(b)
			if b != "" {
				out = append(out, withDefaultPort(b, defaultPort))
			}
		}
	}

	return out
}

// withDefaultPort appends :port to a bare host.
func withDefaultPort(hostport string, port int) string {
	if strings.Contains(hostport, ":") {
		return hostport
	}
	return fmt.Sprintf("%s:%d", hostport, port)
}
