// Package config loads registry toolkit configuration files. JSON, YAML and
// TOML are supported, selected by file extension, with ${ENV_VAR} expansion
// applied before decoding.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Load reads the file at path, expands environment variable references and
// decodes it into target. References use the form ${ENV_VAR} or
// ${ENV_VAR:default_value}.
func Load(path string, target any) error {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return fmt.Errorf("cannot detect format from file extension: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	data = []byte(expandEnvVars(string(data)))

	if err := Decode(data, format, target); err != nil {
		return fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return nil
}

// MustLoad is Load panicking on failure. Intended for program startup where
// the process cannot continue without its configuration.
func MustLoad(path string, target any) {
	if err := Load(path, target); err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
}

// expandEnvVars expands every ${ENV_VAR} and ${ENV_VAR:default} reference.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	result := s
	start := 0
	for {
		startIdx := strings.Index(result[start:], "${")
		if startIdx == -1 {
			break
		}
		startIdx += start

		endIdx := strings.Index(result[startIdx:], "}")
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		envExpr := result[startIdx+2 : endIdx]
		envName := envExpr
		defaultValue := ""

		if colonIdx := strings.Index(envExpr, ":"); colonIdx != -1 {
			envName = envExpr[:colonIdx]
			defaultValue = envExpr[colonIdx+1:]
		}

		envValue := os.Getenv(envName)
		if envValue == "" {
			envValue = defaultValue
		}

		result = result[:startIdx] + envValue + result[endIdx+1:]
		start = startIdx + len(envValue)
	}

	return result
}
