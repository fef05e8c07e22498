// Package config resolves virt-who agent configuration from defaults, a
// YAML file, environment variables, and CLI flags, in that ascending
// order of precedence.
package config
