package kv

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/pmemkv/pmem"
)

// Engine is the public KV dispatch layer: it owns the volatile routing
// tree, guards every operation behind a single reader/writer gate (spec.md
// §5), and converts pmem failures into the {Ok, NotFound, Failure} status
// trichotomy at the boundary, so Get, GetLimited, Put and Remove never
// return a pmem error. The constructors, Close and Free return errors.
type Engine struct {
	pool    *pmem.Pool
	ownPool bool
	gate    sync.RWMutex
	t       *tree
	logger  *zap.Logger
}

func statFile(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Open implements spec.md §6's first constructor form: create the pool
// file if it does not exist and size > 0, otherwise open the existing
// file. The returned Engine owns the pool and closes it on Close.
func Open(path string, size int64, opts ...Option) (*Engine, error) {
	var pool *pmem.Pool
	var err error
	if _, statErr := statFile(path); statErr != nil && size > 0 {
		pool, err = pmem.Create(path, size)
	} else {
		pool, err = pmem.Open(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "kv: open pool")
	}
	return newEngine(pool, true, rootSlot{pool: pool, at: pmem.NullPtr}, opts...)
}

// Adopt implements spec.md §6's second constructor form: adopt an already
// opened pool handle and use its built-in root. The Engine never closes
// the pool on teardown.
func Adopt(pool *pmem.Pool, opts ...Option) (*Engine, error) {
	if pool == nil {
		panic("kv: Adopt called with a nil pool handle")
	}
	return newEngine(pool, false, rootSlot{pool: pool, at: pmem.NullPtr}, opts...)
}

// AdoptRoot implements spec.md §6's third constructor form: adopt a pool
// and use a specific root object, creating it atomically if oid is
// pmem.NullPtr. The Engine never closes the pool on teardown. Use
// (*Engine).RootPtr to recover the OID of a freshly created root so it can
// be persisted by the caller alongside other roots sharing the pool.
func AdoptRoot(pool *pmem.Pool, oid pmem.Ptr, opts ...Option) (*Engine, error) {
	if pool == nil {
		panic("kv: AdoptRoot called with a nil pool handle")
	}
	root := oid
	if root == pmem.NullPtr {
		if err := pool.Transaction(func(tx *pmem.Tx) error {
			ptr, err := tx.Alloc(8)
			if err != nil {
				return err
			}
			tx.WriteUint64(ptr, uint64(pmem.NullPtr))
			root = ptr
			return nil
		}); err != nil {
			return nil, errors.Wrap(err, "kv: create adopted root")
		}
	}
	return newEngine(pool, false, rootSlot{pool: pool, at: root}, opts...)
}

func newEngine(pool *pmem.Pool, own bool, root rootSlot, opts ...Option) (*Engine, error) {
	e := &Engine{pool: pool, ownPool: own, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	e.t = recoverTree(pool, root)
	e.logger.Info("engine opened",
		zap.Uint64("recovered_leaves", e.t.leafCount()),
		zap.Uint64("prealloc_leaves", uint64(len(e.t.prealloc))),
	)
	return e, nil
}

// RootPtr returns the OID of the root object this Engine uses, for callers
// that adopted a pool via AdoptRoot with oid == pmem.NullPtr and need to
// remember the freshly created root elsewhere.
func (e *Engine) RootPtr() pmem.Ptr { return e.t.root.at }

// Close releases the Engine's in-memory state and, if the pool was opened
// by Open rather than adopted, closes the underlying pool too.
func (e *Engine) Close() error {
	e.gate.Lock()
	defer e.gate.Unlock()
	if e.ownPool {
		return e.pool.Close()
	}
	return nil
}

// Get implements spec.md §4.8/§6's unbounded Get: NotFound if the key was
// never written or was last removed, Ok with the value otherwise.
func (e *Engine) Get(key []byte) (Status, []byte) {
	e.gate.RLock()
	defer e.gate.RUnlock()

	hash := PearsonHash(key)
	blob, ok := e.t.lookup(hash, string(key))
	if !ok {
		return StatusNotFound, nil
	}
	return StatusOK, readSlotValue(e.pool, blob)
}

// GetLimited implements spec.md §6's size-limited Get variant: it reports
// Failure (without writing into buf) when the stored value is larger than
// len(buf), but always returns the true value size so the caller can
// retry with a big-enough buffer. n is the number of bytes written into
// buf on StatusOK, or the required size on StatusFailure.
func (e *Engine) GetLimited(key []byte, buf []byte) (status Status, n int) {
	e.gate.RLock()
	defer e.gate.RUnlock()

	hash := PearsonHash(key)
	blob, ok := e.t.lookup(hash, string(key))
	if !ok {
		return StatusNotFound, 0
	}
	value := readSlotValue(e.pool, blob)
	if len(value) > len(buf) {
		return StatusFailure, len(value)
	}
	copy(buf, value)
	return StatusOK, len(value)
}

// Put implements spec.md §4.7: insert a fresh key or overwrite an existing
// one. TotalNumKeys is unchanged by an overwrite (spec.md §8 invariant 9).
func (e *Engine) Put(key, value []byte) Status {
	e.gate.Lock()
	defer e.gate.Unlock()

	hash := PearsonHash(key)
	if err := e.t.insert(hash, string(key), value); err != nil {
		e.logger.Debug("put failed", zap.Error(err))
		return StatusFailure
	}
	return StatusOK
}

// Remove implements spec.md §4.9: idempotent, always reports Ok whether or
// not the key was present.
func (e *Engine) Remove(key []byte) Status {
	e.gate.Lock()
	defer e.gate.Unlock()

	hash := PearsonHash(key)
	if err := e.t.remove(hash, string(key)); err != nil {
		e.logger.Debug("remove failed", zap.Error(err))
		return StatusFailure
	}
	return StatusOK
}

// KeyValue is one (key, value) pair as returned by ListAllKeyValuePairs.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// ListAllKeys implements spec.md §4.11: every live key exactly once, in
// persistent-list order (not key order).
func (e *Engine) ListAllKeys() [][]byte {
	e.gate.RLock()
	defer e.gate.RUnlock()

	var out [][]byte
	e.walkLive(func(blob pmem.Ptr) {
		out = append(out, readSlotKey(e.pool, blob))
	})
	return out
}

// ListAllKeyValuePairs implements spec.md §4.11's paired variant.
func (e *Engine) ListAllKeyValuePairs() []KeyValue {
	e.gate.RLock()
	defer e.gate.RUnlock()

	var out []KeyValue
	e.walkLive(func(blob pmem.Ptr) {
		k, v := readSlotKeyValue(e.pool, blob)
		out = append(out, KeyValue{Key: k, Value: v})
	})
	return out
}

// TotalNumKeys implements spec.md §4.11.
func (e *Engine) TotalNumKeys() uint64 {
	e.gate.RLock()
	defer e.gate.RUnlock()

	var n uint64
	e.walkLive(func(pmem.Ptr) { n++ })
	return n
}

// Analyze implements spec.md §4.11's health-summary supplement (see
// SPEC_FULL.md §6): it reports key/leaf counts, tree height, and average
// slot occupancy across every persistent leaf, including prealloc ones.
func (e *Engine) Analyze() Stats {
	e.gate.RLock()
	defer e.gate.RUnlock()

	var stats Stats
	for leafPtr := e.t.head; leafPtr != pmem.NullPtr; leafPtr = leafNext(e.pool, leafPtr) {
		stats.TotalLeaves++
		for i := 0; i < LeafKeys; i++ {
			if !slotEmpty(leafSlotPtr(e.pool, leafPtr, i)) {
				stats.TotalKeys++
			}
		}
	}
	stats.PreallocLeaves = uint64(len(e.t.prealloc))
	stats.TreeHeight = e.t.height()
	if stats.TotalLeaves > 0 {
		stats.FillFactor = float64(stats.TotalKeys) / float64(stats.TotalLeaves*LeafKeys)
	}
	return stats
}

// Free implements spec.md §6: under the writer gate, in one transaction, it
// frees every persistent leaf and its slots and sets the root's head
// pointer to pmem.NullPtr. The root record itself is not freed (a record
// created by AdoptRoot stays allocated), and the pool file is untouched.
func (e *Engine) Free() error {
	e.gate.Lock()
	defer e.gate.Unlock()

	err := e.pool.Transaction(func(tx *pmem.Tx) error {
		for leafPtr := e.t.head; leafPtr != pmem.NullPtr; {
			next := leafNext(e.pool, leafPtr)
			for i := 0; i < LeafKeys; i++ {
				blob := leafSlotPtr(e.pool, leafPtr, i)
				if !slotEmpty(blob) {
					slotClear(tx, e.pool, blob)
				}
			}
			freePersistentLeaf(tx, leafPtr)
			leafPtr = next
		}
		e.t.root.set(tx, pmem.NullPtr)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "kv: free")
	}

	e.t.top = nil
	e.t.head = pmem.NullPtr
	e.t.prealloc = nil
	return nil
}

// walkLive walks the persistent leaf list under the already-held reader
// gate and invokes fn once per non-empty slot, in list order (spec.md
// §4.11: "every key exactly once", not "sorted").
func (e *Engine) walkLive(fn func(blob pmem.Ptr)) {
	for leafPtr := e.t.head; leafPtr != pmem.NullPtr; leafPtr = leafNext(e.pool, leafPtr) {
		for i := 0; i < LeafKeys; i++ {
			if blob := leafSlotPtr(e.pool, leafPtr, i); !slotEmpty(blob) {
				fn(blob)
			}
		}
	}
}

func (t *tree) leafCount() uint64 {
	var n uint64
	for leafPtr := t.head; leafPtr != pmem.NullPtr; leafPtr = leafNext(t.pool, leafPtr) {
		n++
	}
	return n
}

// height returns the number of routing levels above the leaves: 0 for an
// empty or leaf-only tree, matching spec.md §3's "leaf-only when it has a
// single descriptor (no routing)".
func (t *tree) height() int {
	if t.top == nil {
		return 0
	}
	h := 0
	node := t.top
	for {
		inner, ok := node.(*innerNode)
		if !ok {
			return h
		}
		h++
		node = inner.children[0]
	}
}
