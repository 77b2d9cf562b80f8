// Package pipeline runs one classification pass: it loads the target labels,
// locks and reads the ledger, discovers the images still to do, and feeds
// them one at a time through the router, the ledger, and the organizer.
//
// The ledger is the only record of completion. A run interrupted at any
// point resumes from it; run history and metrics are informational.
package pipeline
