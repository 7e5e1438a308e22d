// Package config loads, normalizes, and validates dcmrelay configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DCMRELAY_NTFY_TOPIC. The Config type centralizes every knob the daemon and
// CLI need: listeners, delivery endpoints, routes, worker pacing, and the
// ambient logging and journal settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, resolved route links, and clear validation errors.
package config
