package main

import (
	"github.com/cockroachdb/pebble"
)

// pebbleTarget is the comparative baseline for the sweep: a real LSM engine
// standing in for "what would we get if we didn't build our own B+-tree".
// Adapted from the teacher's dbms/index/lsm package, which wrapped Pebble
// behind the same Index interface its own disk B-tree/B+-tree implemented;
// here the key type is the raw []byte this domain uses instead of int64, and
// Range is dropped (spec.md Non-goal).
type pebbleTarget struct {
	db *pebble.DB
}

func openPebbleTarget(dir string) (*pebbleTarget, error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &pebbleTarget{db: db}, nil
}

func (p *pebbleTarget) Put(key, value []byte) error {
	return p.db.Set(key, value, pebble.NoSync)
}

func (p *pebbleTarget) Get(key []byte) ([]byte, bool, error) {
	val, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	result := make([]byte, len(val))
	copy(result, val)
	closer.Close()
	return result, true, nil
}

// ScanAll walks every key in the database once, the Pebble equivalent of
// pmemkv's ListAllKeyValuePairs enumeration.
func (p *pebbleTarget) ScanAll() (int, error) {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Error()
}

func (p *pebbleTarget) Close() error {
	return p.db.Close()
}
