// Package main hosts the taxosort CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, applies command-line
// overrides, and hands off to the internal packages: the pipeline runner for
// classification, the organizer for rebuilding the category tree, and the
// ledger, taxonomy, run history, and preflight packages for inspection.
// Keep commands thin; behavior belongs in internal/.
package main
