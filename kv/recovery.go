package kv

import (
	"sort"

	"github.com/btree-query-bench/pmemkv/pmem"
)

type recoveredLeaf struct {
	descriptor *leafDescriptor
	maxKey     string
}

// recoverTree implements §4.10: it walks the persistent leaf list reachable
// from the pool's root, rebuilds a volatile leaf descriptor per non-empty
// leaf (retiring all-empty leaves to leaves_prealloc), then reinstalls them
// into a routing tree in ascending max-key order by replaying
// innerUpdateAfterSplit as if each leaf had just been split off the one
// before it.
func recoverTree(pool *pmem.Pool, root rootSlot) *tree {
	t := newTree(pool, root)
	head := t.head

	var recovered []recoveredLeaf
	for leafPtr := head; leafPtr != pmem.NullPtr; {
		descriptor := newLeafDescriptor(leafPtr)
		maxKey := ""
		nonEmpty := 0
		for i := 0; i < LeafKeys; i++ {
			blob := leafSlotPtr(pool, leafPtr, i)
			if slotEmpty(blob) {
				continue
			}
			nonEmpty++
			hash, _, _ := readSlotHeader(pool, blob)
			key := string(readSlotKey(pool, blob))
			descriptor.mirrorSet(i, hash, key)
			if key > maxKey {
				maxKey = key
			}
		}

		next := leafNext(pool, leafPtr)
		if nonEmpty == 0 {
			t.prealloc = append(t.prealloc, leafPtr)
		} else {
			recovered = append(recovered, recoveredLeaf{descriptor: descriptor, maxKey: maxKey})
		}
		leafPtr = next
	}

	sort.SliceStable(recovered, func(i, j int) bool {
		return recovered[i].maxKey < recovered[j].maxKey
	})

	if len(recovered) == 0 {
		return t
	}

	prev := recovered[0].descriptor
	prevMaxKey := recovered[0].maxKey
	t.top = prev
	for i := 1; i < len(recovered); i++ {
		next := recovered[i].descriptor
		t.innerUpdateAfterSplit(prev, next, prevMaxKey)
		prev = next
		prevMaxKey = recovered[i].maxKey
	}
	return t
}
