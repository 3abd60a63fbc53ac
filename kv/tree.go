package kv

import (
	"sort"

	"github.com/btree-query-bench/pmemkv/pmem"
)

// rootSlot is the one persistent pointer (spec.md's "head") that anchors
// the leaf list. By default it lives in the pool's own header (the
// ordinary Open/Adopt path); AdoptRoot instead points it at a standalone
// root record elsewhere in the pool, so several independent trees can
// share one pool.
type rootSlot struct {
	pool *pmem.Pool
	at   pmem.Ptr // pmem.NullPtr means "use the pool's built-in header field"
}

func (r rootSlot) get() pmem.Ptr {
	if r.at == pmem.NullPtr {
		return r.pool.Root()
	}
	return pmem.Ptr(r.pool.ReadUint64(r.at))
}

func (r rootSlot) set(tx *pmem.Tx, head pmem.Ptr) {
	if r.at == pmem.NullPtr {
		tx.SetRoot(head)
		return
	}
	tx.WriteUint64(r.at, uint64(head))
}

// tree holds the volatile routing structure plus the bookkeeping needed to
// grow the persistent leaf list: the pool itself, the current head of that
// list (mirrors the root slot), and the set of empty leaves recovery found
// and split/first-insert may recycle.
type tree struct {
	pool     *pmem.Pool
	top      childNode
	root     rootSlot
	head     pmem.Ptr
	prealloc []pmem.Ptr
}

func newTree(pool *pmem.Pool, root rootSlot) *tree {
	return &tree{pool: pool, root: root, head: root.get()}
}

// leafSearch descends the routing tree and returns the leaf descriptor
// responsible for key, or nil if the tree is empty.
func (t *tree) leafSearch(key string) *leafDescriptor {
	if t.top == nil {
		return nil
	}
	node := t.top
	for {
		if leaf, ok := node.(*leafDescriptor); ok {
			return leaf
		}
		inner := node.(*innerNode)
		node = inner.children[inner.childIndex(key)]
	}
}

// fillExistingLeaf implements §4.4's slot-fill policy: scan descending,
// remembering the last empty slot, and preferring an exact (hash,key)
// match if one is found. It reports whether a slot absorbed the write.
func (t *tree) fillExistingLeaf(leaf *leafDescriptor, hash byte, key string, value []byte) (bool, error) {
	lastEmpty := -1
	matchIdx := -1
	for i := LeafKeys - 1; i >= 0; i-- {
		if leaf.hashes[i] == 0 {
			lastEmpty = i
			continue
		}
		if leaf.hashes[i] == hash && leaf.keys[i] == key {
			matchIdx = i
			break
		}
	}

	target := matchIdx
	if target == -1 {
		target = lastEmpty
	}
	if target == -1 {
		return false, nil
	}

	err := t.pool.Transaction(func(tx *pmem.Tx) error {
		oldBlob := leafSlotPtr(t.pool, leaf.persistent, target)
		newBlob, err := slotSet(tx, t.pool, oldBlob, hash, []byte(key), value)
		if err != nil {
			return err
		}
		setLeafSlotPtr(tx, leaf.persistent, target, newBlob)
		leaf.mirrorSet(target, hash, key)
		return nil
	})
	return err == nil, err
}

func (l *leafDescriptor) firstEmptySlot() int {
	for i := 0; i < LeafKeys; i++ {
		if l.hashes[i] == 0 {
			return i
		}
	}
	return -1
}

// splitLeaf implements §4.5. It is only ever called after fillExistingLeaf
// has reported "not filled", i.e. leaf is completely full and holds no
// slot matching (hash, key).
func (t *tree) splitLeaf(leaf *leafDescriptor, hash byte, key string, value []byte) error {
	union := make([]string, 0, LeafKeys+1)
	for i := 0; i < LeafKeys; i++ {
		if leaf.hashes[i] != 0 {
			union = append(union, leaf.keys[i])
		}
	}
	union = append(union, key)
	sort.Strings(union)
	splitKey := union[LeafKeysMidpoint]
	goesNew := key > splitKey

	var newDescriptor *leafDescriptor
	poppedPrealloc := false

	err := t.pool.Transaction(func(tx *pmem.Tx) error {
		var newLeafPtr pmem.Ptr
		var err error
		if n := len(t.prealloc); n > 0 {
			newLeafPtr = t.prealloc[n-1]
			poppedPrealloc = true
		} else {
			newLeafPtr, err = allocPersistentLeaf(tx)
			if err != nil {
				return err
			}
		}

		incomingBlob, err := tx.Alloc(slotBlobSize(len(key), len(value)))
		if err != nil {
			return err
		}
		writeSlotBlob(tx, incomingBlob, hash, []byte(key), value)

		// All fallible steps are behind us: everything from here on is a
		// plain byte write or pure Go bookkeeping, so mutating volatile
		// state inline is safe — this closure is now guaranteed to return
		// nil and the transaction will commit.
		if !poppedPrealloc {
			setLeafNext(tx, newLeafPtr, t.head)
			t.root.set(tx, newLeafPtr)
			t.head = newLeafPtr
		}

		newDescriptor = newLeafDescriptor(newLeafPtr)
		for i := 0; i < LeafKeys; i++ {
			if leaf.hashes[i] != 0 && leaf.keys[i] > splitKey {
				blob := leafSlotPtr(t.pool, leaf.persistent, i)
				setLeafSlotPtr(tx, newLeafPtr, i, blob)
				setLeafSlotPtr(tx, leaf.persistent, i, pmem.NullPtr)
				newDescriptor.mirrorSet(i, leaf.hashes[i], leaf.keys[i])
				leaf.mirrorClear(i)
			}
		}

		targetLeafPtr, targetDescriptor := leaf.persistent, leaf
		if goesNew {
			targetLeafPtr, targetDescriptor = newLeafPtr, newDescriptor
		}
		idx := targetDescriptor.firstEmptySlot()
		setLeafSlotPtr(tx, targetLeafPtr, idx, incomingBlob)
		targetDescriptor.mirrorSet(idx, hash, key)
		return nil
	})
	if err != nil {
		return err
	}

	if poppedPrealloc {
		t.prealloc = t.prealloc[:len(t.prealloc)-1]
	}

	t.innerUpdateAfterSplit(leaf, newDescriptor, splitKey)
	return nil
}

// innerUpdateAfterSplit implements §4.6. It runs entirely outside any
// persistent transaction: routing is volatile-only.
func (t *tree) innerUpdateAfterSplit(node childNode, newSibling childNode, splitKey string) {
	parent := node.getParent()
	if parent == nil {
		top := newInnerNode()
		top.keyCount = 1
		top.keys[0] = splitKey
		top.children[0] = node
		top.children[1] = newSibling
		node.setParent(top)
		newSibling.setParent(top)
		t.top = top
		return
	}

	idx := parent.keyCount
	for i := 0; i < parent.keyCount; i++ {
		if parent.keys[i] > splitKey {
			idx = i
			break
		}
	}
	parent.insertSeparator(idx, splitKey, newSibling)
	newSibling.setParent(parent)

	if parent.keyCount <= InnerKeys {
		return
	}

	k := parent.keyCount
	ni := newInnerNode()
	n := 0
	for i := InnerKeysUpper; i < k; i++ {
		ni.keys[n] = parent.keys[i]
		n++
	}
	n = 0
	for i := InnerKeysUpper; i <= k; i++ {
		ni.children[n] = parent.children[i]
		if ni.children[n] != nil {
			ni.children[n].setParent(ni)
		}
		parent.children[i] = nil
		n++
	}
	ni.keyCount = InnerKeysMidpoint
	newSplitKey := parent.keys[InnerKeysMidpoint]
	parent.keyCount = InnerKeysMidpoint

	t.innerUpdateAfterSplit(parent, ni, newSplitKey)
}

// insert implements §4.7.
func (t *tree) insert(hash byte, key string, value []byte) error {
	leaf := t.leafSearch(key)
	if leaf == nil {
		return t.insertFirst(hash, key, value)
	}

	filled, err := t.fillExistingLeaf(leaf, hash, key, value)
	if err != nil {
		return err
	}
	if filled {
		return nil
	}
	return t.splitLeaf(leaf, hash, key, value)
}

// insertFirst handles the empty-tree case of §4.7.
func (t *tree) insertFirst(hash byte, key string, value []byte) error {
	var leafPtr pmem.Ptr
	poppedPrealloc := false

	err := t.pool.Transaction(func(tx *pmem.Tx) error {
		var err error
		if n := len(t.prealloc); n > 0 {
			leafPtr = t.prealloc[n-1]
			poppedPrealloc = true
		} else {
			leafPtr, err = allocPersistentLeaf(tx)
			if err != nil {
				return err
			}
		}

		blob, err := tx.Alloc(slotBlobSize(len(key), len(value)))
		if err != nil {
			return err
		}
		writeSlotBlob(tx, blob, hash, []byte(key), value)
		setLeafSlotPtr(tx, leafPtr, 0, blob)

		if !poppedPrealloc {
			setLeafNext(tx, leafPtr, t.head)
			t.root.set(tx, leafPtr)
			t.head = leafPtr
		}
		return nil
	})
	if err != nil {
		return err
	}

	if poppedPrealloc {
		t.prealloc = t.prealloc[:len(t.prealloc)-1]
	}

	descriptor := newLeafDescriptor(leafPtr)
	descriptor.mirrorSet(0, hash, key)
	t.top = descriptor
	return nil
}

// lookup implements §4.8's core (without the size-limited variant, which
// lives in engine.go where the caller's buffer is in scope).
func (t *tree) lookup(hash byte, key string) (pmem.Ptr, bool) {
	leaf := t.leafSearch(key)
	if leaf == nil {
		return pmem.NullPtr, false
	}
	for i := LeafKeys - 1; i >= 0; i-- {
		if leaf.hashes[i] == hash && leaf.keys[i] == key {
			return leafSlotPtr(t.pool, leaf.persistent, i), true
		}
	}
	return pmem.NullPtr, false
}

// remove implements §4.9. It is idempotent: removing an absent key is a
// no-op that still reports success to the caller.
func (t *tree) remove(hash byte, key string) error {
	leaf := t.leafSearch(key)
	if leaf == nil {
		return nil
	}
	target := -1
	for i := LeafKeys - 1; i >= 0; i-- {
		if leaf.hashes[i] == hash && leaf.keys[i] == key {
			target = i
			break
		}
	}
	if target == -1 {
		return nil
	}

	leaf.mirrorClear(target)
	return t.pool.Transaction(func(tx *pmem.Tx) error {
		blob := leafSlotPtr(t.pool, leaf.persistent, target)
		slotClear(tx, t.pool, blob)
		setLeafSlotPtr(tx, leaf.persistent, target, pmem.NullPtr)
		return nil
	})
}
