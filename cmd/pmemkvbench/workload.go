package main

import (
	"encoding/binary"
	"math/rand"
)

// target is the small surface both backends in this sweep expose. It
// intentionally has no Range method: range scans are a spec.md Non-goal for
// pmemkv's core, so the comparative harness only ever exercises point
// operations plus a full-keyspace enumeration.
type target interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, bool, error)
	ScanAll() (int, error)
}

// WorkloadType mirrors the teacher's workload.go shapes, generalized from
// int64 keys to the byte-string keys this domain uses.
type WorkloadType string

const (
	OLTP      WorkloadType = "OLTP (90/10)"
	OLAP      WorkloadType = "OLAP (10/90)"
	Reporting WorkloadType = "Reporting (full scan)"
)

func encodeKey(k int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(k))
	return b
}

// ExecuteWorkload runs a mixed distribution of ops against t, the same way
// the teacher's ExecuteWorkload drives its index.Index targets.
func ExecuteWorkload(t target, wType WorkloadType, ops int) error {
	switch wType {
	case Reporting:
		_, err := t.ScanAll()
		return err
	default:
		for i := 0; i < ops; i++ {
			choice := rand.Intn(100)
			key := encodeKey(rand.Intn(ops + 1))

			readHeavy := wType == OLTP
			isRead := (readHeavy && choice < 90) || (!readHeavy && choice < 10)
			if isRead {
				if _, _, err := t.Get(key); err != nil {
					return err
				}
				continue
			}
			if err := t.Put(key, []byte("x")); err != nil {
				return err
			}
		}
		return nil
	}
}
