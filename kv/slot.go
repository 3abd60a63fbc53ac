package kv

import "github.com/btree-query-bench/pmemkv/pmem"

// A persistent slot is identified purely by the pointer stored in its
// leaf's slot array: pmem.NullPtr means empty, any other value names a
// blob laid out as
//
//	[hash:u8][key_size:u32][value_size:u32][key][0x00][value][0x00]
//
// slotEmpty, slotClear and slotSet below are the three operations spec'd
// for a persistent slot; everything else in this file is the blob
// encoding they share.
const (
	slotOffHash    = 0
	slotOffKeyLen  = 1
	slotOffValLen  = 5
	slotOffPayload = 9
)

func slotBlobSize(keyLen, valLen int) int {
	return slotOffPayload + keyLen + 1 + valLen + 1
}

func slotEmpty(blob pmem.Ptr) bool {
	return blob == pmem.NullPtr
}

func readSlotHeader(pool *pmem.Pool, blob pmem.Ptr) (hash byte, keyLen, valLen int) {
	hash = pool.ReadUint8(blob)
	keyLen = int(pool.ReadUint32(blob + slotOffKeyLen))
	valLen = int(pool.ReadUint32(blob + slotOffValLen))
	return
}

func readSlotKey(pool *pmem.Pool, blob pmem.Ptr) []byte {
	_, keyLen, _ := readSlotHeader(pool, blob)
	return pool.ReadAt(blob+slotOffPayload, keyLen)
}

func readSlotValue(pool *pmem.Pool, blob pmem.Ptr) []byte {
	_, keyLen, valLen := readSlotHeader(pool, blob)
	return pool.ReadAt(blob+pmem.Ptr(slotOffPayload+keyLen+1), valLen)
}

func readSlotKeyValue(pool *pmem.Pool, blob pmem.Ptr) (key, value []byte) {
	_, keyLen, valLen := readSlotHeader(pool, blob)
	key = pool.ReadAt(blob+slotOffPayload, keyLen)
	value = pool.ReadAt(blob+pmem.Ptr(slotOffPayload+keyLen+1), valLen)
	return
}

func writeSlotBlob(tx *pmem.Tx, blob pmem.Ptr, hash byte, key, value []byte) {
	tx.WriteUint8(blob+slotOffHash, hash)
	tx.WriteUint32(blob+slotOffKeyLen, uint32(len(key)))
	tx.WriteUint32(blob+slotOffValLen, uint32(len(value)))
	keyEnd := pmem.Ptr(slotOffPayload + len(key))
	tx.WriteAt(blob+slotOffPayload, key)
	tx.WriteUint8(blob+keyEnd, 0x00)
	valStart := keyEnd + 1
	tx.WriteAt(blob+valStart, value)
	tx.WriteUint8(blob+valStart+pmem.Ptr(len(value)), 0x00)
}

// slotSet frees any prior allocation owned by oldBlob, allocates a fresh
// blob sized for (key, value) and writes it. It fails (and leaves oldBlob
// untouched) if the pool cannot satisfy the allocation.
func slotSet(tx *pmem.Tx, pool *pmem.Pool, oldBlob pmem.Ptr, hash byte, key, value []byte) (pmem.Ptr, error) {
	newBlob, err := tx.Alloc(slotBlobSize(len(key), len(value)))
	if err != nil {
		return pmem.NullPtr, err
	}
	writeSlotBlob(tx, newBlob, hash, key, value)
	if !slotEmpty(oldBlob) {
		_, oldKeyLen, oldValLen := readSlotHeader(pool, oldBlob)
		tx.Free(oldBlob, slotBlobSize(oldKeyLen, oldValLen))
	}
	return newBlob, nil
}

// slotClear zeroes the header of blob and releases it back to the pool.
func slotClear(tx *pmem.Tx, pool *pmem.Pool, blob pmem.Ptr) {
	_, keyLen, valLen := readSlotHeader(pool, blob)
	var zero [slotOffPayload]byte
	tx.WriteAt(blob, zero[:])
	tx.Free(blob, slotBlobSize(keyLen, valLen))
}
