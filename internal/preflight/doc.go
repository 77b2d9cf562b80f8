// Package preflight provides readiness checks for the paths and services a
// classification run depends on.
//
// These checks run in two contexts:
//   - `taxosort check` runs every applicable check and prints the results.
//   - `taxosort run` runs them before touching the ledger and refuses to start
//     when a required check fails, so a misconfigured run never half-starts.
//
// Optional inputs (secondary source, metrics textfile) are only checked when
// configured.
package preflight
