package kv

import "github.com/btree-query-bench/pmemkv/pmem"

// A persistent leaf is a fixed-size record living in the pool: LeafKeys
// slot pointers followed by a single next pointer, forming the singly
// linked list anchored at the pool's root. It is only released by
// Engine.Free; leaves that recovery finds all-empty are kept in the tree's
// prealloc list for reuse (see recovery.go and tree.go).
const persistentLeafNextOffset = LeafKeys * 8

func persistentLeafSize() int {
	return LeafKeys*8 + 8
}

// allocPersistentLeaf reserves and zero-initializes a new leaf record: all
// slots empty (NullPtr) and no next leaf. Zeroing matters even though Alloc
// never hands back stale application data for fresh pool growth, because a
// reused same-size block from the volatile free list can carry a previous
// leaf's (or, in principle, a same-sized slot blob's) old bytes.
func allocPersistentLeaf(tx *pmem.Tx) (pmem.Ptr, error) {
	ptr, err := tx.Alloc(persistentLeafSize())
	if err != nil {
		return pmem.NullPtr, err
	}
	tx.WriteAt(ptr, make([]byte, persistentLeafSize()))
	return ptr, nil
}

func leafSlotPtr(pool *pmem.Pool, leaf pmem.Ptr, idx int) pmem.Ptr {
	return pmem.Ptr(pool.ReadUint64(leaf + pmem.Ptr(8*idx)))
}

func setLeafSlotPtr(tx *pmem.Tx, leaf pmem.Ptr, idx int, blob pmem.Ptr) {
	tx.WriteUint64(leaf+pmem.Ptr(8*idx), uint64(blob))
}

func leafNext(pool *pmem.Pool, leaf pmem.Ptr) pmem.Ptr {
	return pmem.Ptr(pool.ReadUint64(leaf + persistentLeafNextOffset))
}

func setLeafNext(tx *pmem.Tx, leaf pmem.Ptr, next pmem.Ptr) {
	tx.WriteUint64(leaf+persistentLeafNextOffset, uint64(next))
}

// freePersistentLeaf releases the leaf record itself. Callers must have
// already cleared every non-empty slot it owns.
func freePersistentLeaf(tx *pmem.Tx, leaf pmem.Ptr) {
	tx.Free(leaf, persistentLeafSize())
}
