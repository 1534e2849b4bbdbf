// Package config loads the service configuration from YAML, applies
// environment overrides for secrets and validates every section.
package config
