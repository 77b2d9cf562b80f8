// Package runstore keeps a SQLite journal of classification runs for the
// `taxosort runs` command.
//
// The journal is informational. Completion of individual images is tracked
// only by the ledger, so a lost or deleted runs.db never causes rework.
package runstore
