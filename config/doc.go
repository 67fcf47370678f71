// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the listen addresses, the ordered
// backend pool, the selection algorithm, health check tuning and the proxy
// timeout, and validates all of them before the application starts.
package config
