package main

import (
	"github.com/btree-query-bench/pmemkv/kv"
)

// pmemkvTarget adapts a kv.Engine to the target interface this sweep
// drives both backends through.
type pmemkvTarget struct {
	engine *kv.Engine
}

func openPmemkvTarget(path string, size int64) (*pmemkvTarget, error) {
	e, err := kv.Open(path, size)
	if err != nil {
		return nil, err
	}
	return &pmemkvTarget{engine: e}, nil
}

func (t *pmemkvTarget) Put(key, value []byte) error {
	if t.engine.Put(key, value) != kv.StatusOK {
		return errFailure
	}
	return nil
}

func (t *pmemkvTarget) Get(key []byte) ([]byte, bool, error) {
	status, value := t.engine.Get(key)
	switch status {
	case kv.StatusOK:
		return value, true, nil
	case kv.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, errFailure
	}
}

func (t *pmemkvTarget) ScanAll() (int, error) {
	return len(t.engine.ListAllKeyValuePairs()), nil
}

func (t *pmemkvTarget) Close() error {
	return t.engine.Close()
}
