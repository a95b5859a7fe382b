package txstate

import "errors"

var (
	// ErrNotFound is returned when no TransactionState exists for the
	// requested XID or GID.
	ErrNotFound = errors.New("txstate: transaction not found")

	// ErrAlreadyExists is returned by Insert when an entry for the XID
	// is already present (I1: at most one TransactionState per XID).
	ErrAlreadyExists = errors.New("txstate: transaction already exists")

	// ErrInvalidTransition is returned when a status change would
	// violate I3 (unknown may only become committed or aborted).
	ErrInvalidTransition = errors.New("txstate: invalid status transition")
)
