package pmem

import "errors"

var (
	// ErrPoolCorrupt is returned by Open when the file's header does not
	// carry the expected magic, or the recorded size does not match.
	ErrPoolCorrupt = errors.New("pmem: pool header corrupt or wrong magic")

	// ErrTransactionAllocFailure is returned by Tx.Alloc when the pool has
	// no room left for the requested allocation. The enclosing transaction
	// is aborted and none of its writes become visible.
	ErrTransactionAllocFailure = errors.New("pmem: transaction allocation failed")

	// ErrTransactionFailure wraps any error returned by a Transaction body
	// that was not itself an allocation failure.
	ErrTransactionFailure = errors.New("pmem: transaction failed")
)
