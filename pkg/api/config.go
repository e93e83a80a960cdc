package api

import "time"

// ServerConfig is the HTTP status server configuration.
//
// Example:
//
//	apiServer:
//	  host: 0.0.0.0
//	  port: 8080
//	  mode: release
//	  enablePProf: true
//	  readTimeout: 5s
//	  writeTimeout: 10s
//	  idleTimeout: 60s
type ServerConfig struct {
	// Host is the listen address (e.g. 0.0.0.0, 127.0.0.1).
	Host string `yaml:"host" json:"host" toml:"host"`

	// Port is the listen port. The server only starts when it is > 0.
	Port int `yaml:"port" json:"port" toml:"port"`

	// Mode is the gin run mode: debug / release.
	Mode string `yaml:"mode" json:"mode" toml:"mode"`

	// EnablePProf mounts the pprof routes under /debug/pprof.
	EnablePProf bool `yaml:"enablePProf" json:"enablePProf" toml:"enablePProf"`

	// ReadTimeout is the request read timeout.
	ReadTimeout time.Duration `yaml:"readTimeout" json:"readTimeout" toml:"readTimeout"`

	// WriteTimeout is the response write timeout.
	WriteTimeout time.Duration `yaml:"writeTimeout" json:"writeTimeout" toml:"writeTimeout"`

	// IdleTimeout is the idle connection timeout.
	IdleTimeout time.Duration `yaml:"idleTimeout" json:"idleTimeout" toml:"idleTimeout"`
}
