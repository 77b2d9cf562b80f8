// Package services defines shared utilities consumed by the pipeline stages
// and the classifier integration.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, image keys, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let callers classify
//     failures (configuration vs transient vs external tool) with errors.Is.
//
// Use these helpers when wiring new pipeline logic so error handling and
// observability stay uniform.
package services
