package pmem

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// undoEntry records the before-image of a byte range so Transaction can
// restore it on abort.
type undoEntry struct {
	offset int64
	before []byte
}

type pendingFree struct {
	ptr  Ptr
	size int
}

// Tx is the write-side handle passed to a Transaction body. Every mutation
// made through it is durable if the body returns nil, and invisible if the
// body returns an error or panics.
type Tx struct {
	pool    *Pool
	undo    []undoEntry
	frees   []pendingFree
	newAllc []pendingFree // allocations made this tx, tracked so an abort can hand blocks taken from the reuse list back to it (bump-pointer space is reclaimed by the undo log)
}

// Transaction runs fn against a fresh Tx. If fn returns nil, all writes are
// made durable with a single msync and the transaction's frees are folded
// into the pool's reuse list. If fn returns a non-nil error (including a
// recovered panic), every write is rolled back to its prior value and no
// frees are recorded — the pool is left exactly as it was before the call.
func (p *Pool) Transaction(fn func(*Tx) error) (err error) {
	tx := &Tx{pool: p}

	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			err = ErrTransactionFailure
		}
	}()

	if err = fn(tx); err != nil {
		tx.rollback()
		if !errors.Is(err, ErrTransactionAllocFailure) && !errors.Is(err, ErrTransactionFailure) {
			err = fmt.Errorf("%w: %w", ErrTransactionFailure, err)
		}
		return err
	}

	return tx.commit()
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		e := tx.undo[i]
		copy(tx.pool.data[e.offset:int(e.offset)+len(e.before)], e.before)
	}
	// With the bump pointer restored, any allocation below it came from the
	// reuse list and goes back there.
	bump := Ptr(tx.pool.ReadUint64(Ptr(offBumpNext)))
	tx.pool.mu.Lock()
	for _, a := range tx.newAllc {
		if a.ptr < bump {
			tx.pool.freelist[a.size] = append(tx.pool.freelist[a.size], a.ptr)
		}
	}
	tx.pool.mu.Unlock()
	tx.pool.logger.Debug("transaction aborted", zap.Int("writes_undone", len(tx.undo)))
}

func (tx *Tx) commit() error {
	tx.pool.mu.Lock()
	for _, f := range tx.frees {
		tx.pool.freelist[f.size] = append(tx.pool.freelist[f.size], f.ptr)
	}
	tx.pool.mu.Unlock()

	err := syncPool(tx.pool)
	tx.pool.logger.Debug("transaction committed",
		zap.Int("writes", len(tx.undo)),
		zap.Int("allocs", len(tx.newAllc)),
		zap.Int("frees", len(tx.frees)),
		zap.Error(err),
	)
	return err
}

// WriteAt overwrites len(data) bytes at ptr, recording the prior contents
// for rollback.
func (tx *Tx) WriteAt(ptr Ptr, data []byte) {
	before := make([]byte, len(data))
	copy(before, tx.pool.data[ptr:int(ptr)+len(data)])
	tx.undo = append(tx.undo, undoEntry{offset: int64(ptr), before: before})
	copy(tx.pool.data[ptr:int(ptr)+len(data)], data)
}

// WriteUint8 writes a single byte at ptr.
func (tx *Tx) WriteUint8(ptr Ptr, v uint8) {
	tx.WriteAt(ptr, []byte{v})
}

// WriteUint32 writes a little-endian uint32 at ptr.
func (tx *Tx) WriteUint32(ptr Ptr, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	tx.WriteAt(ptr, buf[:])
}

// WriteUint64 writes a little-endian uint64 at ptr.
func (tx *Tx) WriteUint64(ptr Ptr, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	tx.WriteAt(ptr, buf[:])
}

// SetRoot installs the pool's singleton root pointer.
func (tx *Tx) SetRoot(root Ptr) {
	tx.WriteUint64(Ptr(offRootPtr), uint64(root))
}

// Alloc reserves size bytes of persistent storage and returns their offset.
// It first tries to reuse a freed block of the exact same size (the pool's
// volatile reuse list), falling back to extending the pool's bump pointer.
// It fails with ErrTransactionAllocFailure if the pool has no room left.
func (tx *Tx) Alloc(size int) (Ptr, error) {
	tx.pool.mu.Lock()
	if bucket := tx.pool.freelist[size]; len(bucket) > 0 {
		reused := bucket[len(bucket)-1]
		tx.pool.freelist[size] = bucket[:len(bucket)-1]
		tx.pool.mu.Unlock()
		tx.newAllc = append(tx.newAllc, pendingFree{ptr: reused, size: size})
		return reused, nil
	}
	tx.pool.mu.Unlock()

	bumpNext := Ptr(tx.pool.ReadUint64(Ptr(offBumpNext)))
	next := int64(bumpNext) + int64(size)
	if next > tx.pool.size {
		return NullPtr, ErrTransactionAllocFailure
	}
	tx.WriteUint64(Ptr(offBumpNext), uint64(next))
	tx.newAllc = append(tx.newAllc, pendingFree{ptr: bumpNext, size: size})
	return bumpNext, nil
}

// Free releases a previously allocated block of the given size back to the
// pool's volatile reuse list. size must match the size passed to the Alloc
// call that produced ptr.
func (tx *Tx) Free(ptr Ptr, size int) {
	if ptr == NullPtr {
		return
	}
	tx.frees = append(tx.frees, pendingFree{ptr: ptr, size: size})
}

func syncPool(p *Pool) error {
	return msync(p)
}
