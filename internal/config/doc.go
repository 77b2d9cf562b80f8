// Package config loads, normalizes, and validates taxosort configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TAXOSORT_CLASSIFIER_TOKEN. The Config type centralizes every knob the
// pipeline and CLI need, so the input tree, ledger location, routing
// thresholds, and classifier credentials are resolved in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical extensions, and clear validation errors.
package config
