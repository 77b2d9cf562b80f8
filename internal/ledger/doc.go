// Package ledger owns the append-only CSV of classification results.
//
// The ledger is the only record of progress: an image whose key appears in it
// is never classified again. Rows are fsynced as they are written, a single
// run holds the file through an advisory lock, and a resumed ledger is copied
// to <path>.backup before anything new is appended.
package ledger
