// Package pmem provides a byte-addressable persistent-memory pool backed by
// a memory-mapped file, together with an undo-logged transaction primitive.
//
// It stands in for the allocator/transaction collaborator that the B+-tree
// engine in package kv treats as an external dependency: pool_create/open/
// close, root_of, transaction(pool, body), and make_persistent/
// delete_persistent all have a direct counterpart here (Create/Open/Close,
// Root, Transaction, Tx.Alloc/Tx.Free).
//
// Durability is realized with msync(MS_SYNC) on commit rather than a CPU
// cache-line flush instruction, since Go has no portable access to CLFLUSH/
// CLWB; the observable contract — durable on commit, invisible on abort — is
// preserved.
package pmem
