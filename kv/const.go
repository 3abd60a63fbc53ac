package kv

// LeafKeys is the fixed fanout of a persistent leaf (L in the design docs).
// It must be even. 48 matches the worked split example used throughout this
// package's tests.
const LeafKeys = 48

// LeafKeysMidpoint is L/2, the index of the split key inside the sorted
// union of a full leaf's keys plus the incoming one.
const LeafKeysMidpoint = LeafKeys / 2

// InnerKeys is the maximum number of separator keys an inner node holds
// before it must split (I in the design docs).
const InnerKeys = 32

// InnerKeysUpper is ceil((InnerKeys+1)/2): the index of the first key and
// child that move to the new right-hand node when an overfull inner node
// (InnerKeys+1 keys) splits.
const InnerKeysUpper = (InnerKeys + 1 + 1) / 2

// InnerKeysMidpoint is InnerKeys - InnerKeysUpper + 1: the count assigned to
// the right half after the middle key is promoted to the parent.
const InnerKeysMidpoint = InnerKeys - InnerKeysUpper + 1
