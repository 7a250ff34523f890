// Package config provides configuration loading and validation for the meeting client.
// It handles YAML-based configuration with per-section struct validation and
// duration accessors for all tunable timing parameters.
package config
