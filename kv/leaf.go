package kv

import "github.com/btree-query-bench/pmemkv/pmem"

// childNode discriminates the two kinds of node a routing slot can point
// at. It carries no behaviour beyond the kind tag and parent linkage —
// everything else is specific to *leafDescriptor or *innerNode.
type childNode interface {
	getParent() *innerNode
	setParent(*innerNode)
	isLeaf() bool
}

// leafDescriptor is the volatile, in-memory companion of a single
// persistent leaf: a cache of its slot hashes and keys, plus the pointer
// needed to reach the ground truth in the pool. It is never itself
// persisted — recovery rebuilds it from the persistent leaf on pool open.
type leafDescriptor struct {
	hashes     [LeafKeys]byte
	keys       [LeafKeys]string
	persistent pmem.Ptr
	parent     *innerNode
}

func newLeafDescriptor(persistent pmem.Ptr) *leafDescriptor {
	return &leafDescriptor{persistent: persistent}
}

func (l *leafDescriptor) getParent() *innerNode   { return l.parent }
func (l *leafDescriptor) setParent(p *innerNode)  { l.parent = p }
func (l *leafDescriptor) isLeaf() bool            { return true }

// mirrorSet writes slot idx's mirror entry. It is never persisted by
// itself — callers pair it with the matching persistent slot write, either
// inside the same transaction body or after that transaction has committed.
func (l *leafDescriptor) mirrorSet(idx int, hash byte, key string) {
	l.hashes[idx] = hash
	l.keys[idx] = key
}

func (l *leafDescriptor) mirrorClear(idx int) {
	l.hashes[idx] = 0
	l.keys[idx] = ""
}
