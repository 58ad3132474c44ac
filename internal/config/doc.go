// Package config loads the operator configuration for the acousticverify
// CLI from a TOML file and turns it into engine options.
package config
