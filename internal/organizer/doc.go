// Package organizer projects ledger rows into category directories.
//
// The directory tree is derived state: it is written only after the ledger
// row for an image is durable, and Reconcile can rebuild it from the ledger at
// any time. Placing the same image twice is a no-op, and a different file
// already holding the destination name gets a numbered sibling instead of
// being overwritten.
//
// Extend placement behaviour here when new actions (links, sidecars) appear.
package organizer
