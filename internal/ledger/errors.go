package ledger

import "errors"

var (
	// ErrLocked reports that another process holds the ledger.
	ErrLocked = errors.New("ledger is locked by another run")
	// ErrDuplicateKey reports an append for a key already in the ledger.
	ErrDuplicateKey = errors.New("ledger key already recorded")
	// ErrSchemaMismatch reports an existing ledger whose header belongs to a different mode.
	ErrSchemaMismatch = errors.New("ledger header does not match pipeline mode")
	// ErrClosed reports use of a closed ledger.
	ErrClosed = errors.New("ledger is closed")
)
