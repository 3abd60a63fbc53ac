package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.pmemkv")
	e, err := Open(path, 8<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// S1: empty engine.
func TestScenario_EmptyEngine(t *testing.T) {
	e := openTestEngine(t)

	status, value := e.Get([]byte("x"))
	assert.Equal(t, StatusNotFound, status)
	assert.Nil(t, value)
	assert.Equal(t, uint64(0), e.TotalNumKeys())
	assert.Empty(t, e.ListAllKeys())
}

// S2: single insert.
func TestScenario_SingleInsert(t *testing.T) {
	e := openTestEngine(t)

	assert.Equal(t, StatusOK, e.Put([]byte("a"), []byte("1")))
	status, value := e.Get([]byte("a"))
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, []byte("1"), value)
	assert.Equal(t, uint64(1), e.TotalNumKeys())
}

// S3: overwrite, TotalNumKeys unchanged (invariant 9).
func TestScenario_Overwrite(t *testing.T) {
	e := openTestEngine(t)

	require.Equal(t, StatusOK, e.Put([]byte("a"), []byte("1")))
	require.Equal(t, StatusOK, e.Put([]byte("a"), []byte("22")))

	status, value := e.Get([]byte("a"))
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, []byte("22"), value)
	assert.Equal(t, uint64(1), e.TotalNumKeys())
}

// S5: remove then get.
func TestScenario_RemoveThenGet(t *testing.T) {
	e := openTestEngine(t)

	require.Equal(t, StatusOK, e.Put([]byte("a"), []byte("1")))
	assert.Equal(t, StatusOK, e.Remove([]byte("a")))

	status, _ := e.Get([]byte("a"))
	assert.Equal(t, StatusNotFound, status)
	assert.Equal(t, uint64(0), e.TotalNumKeys())
}

// Remove idempotence (invariant 8).
func TestInvariant_RemoveIdempotent(t *testing.T) {
	e := openTestEngine(t)

	assert.Equal(t, StatusOK, e.Remove([]byte("never-written")))
	assert.Equal(t, StatusOK, e.Remove([]byte("never-written")))

	require.Equal(t, StatusOK, e.Put([]byte("a"), []byte("1")))
	assert.Equal(t, StatusOK, e.Remove([]byte("a")))
	assert.Equal(t, StatusOK, e.Remove([]byte("a")))
}

// S7: buffer-limit Get.
func TestScenario_BufferLimitGet(t *testing.T) {
	e := openTestEngine(t)

	require.Equal(t, StatusOK, e.Put([]byte("a"), []byte("abcdef")))

	buf := make([]byte, 3)
	status, n := e.GetLimited([]byte("a"), buf)
	assert.Equal(t, StatusFailure, status)
	assert.Equal(t, 6, n)
	assert.Equal(t, byte(0), buf[0], "buf must be untouched past byte 0 on Failure")

	bigBuf := make([]byte, 6)
	status, n = e.GetLimited([]byte("a"), bigBuf)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte("abcdef"), bigBuf)
}

// S8: hash-collision correctness.
func TestScenario_HashCollision(t *testing.T) {
	k1, k2 := findPearsonCollision(t, 200000)

	e := openTestEngine(t)
	require.Equal(t, StatusOK, e.Put([]byte(k1), []byte("A")))
	require.Equal(t, StatusOK, e.Put([]byte(k2), []byte("B")))

	status, v := e.Get([]byte(k1))
	require.Equal(t, StatusOK, status)
	assert.Equal(t, []byte("A"), v)

	status, v = e.Get([]byte(k2))
	require.Equal(t, StatusOK, status)
	assert.Equal(t, []byte("B"), v)

	assert.Equal(t, uint64(2), e.TotalNumKeys())
}

func findPearsonCollision(t *testing.T, limit int) (string, string) {
	t.Helper()
	seen := map[byte]string{}
	for i := 0; i < limit; i++ {
		k := randomASCIIKey(i)
		h := PearsonHash([]byte(k))
		if prev, ok := seen[h]; ok && prev != k {
			return prev, k
		}
		seen[h] = k
	}
	t.Fatalf("no Pearson collision found among %d candidate keys", limit)
	return "", ""
}

// ListAllKeys reports every live key exactly once after a removal (invariant 3).
func TestInvariant_ListAllKeysExactlyOnce(t *testing.T) {
	e := openTestEngine(t)

	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		require.Equal(t, StatusOK, e.Put([]byte(k), []byte(k)))
	}
	require.Equal(t, StatusOK, e.Remove([]byte("c")))

	got := map[string]bool{}
	for _, k := range e.ListAllKeys() {
		got[string(k)] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "d": true}, got)
	assert.Equal(t, uint64(3), e.TotalNumKeys())
}

func TestAnalyze_ReportsHealthSummary(t *testing.T) {
	e := openTestEngine(t)
	require.Equal(t, StatusOK, e.Put([]byte("a"), []byte("1")))

	stats := e.Analyze()
	assert.Equal(t, uint64(1), stats.TotalKeys)
	assert.Equal(t, uint64(1), stats.TotalLeaves)
	assert.Equal(t, 0, stats.TreeHeight)
	assert.InDelta(t, 1.0/float64(LeafKeys), stats.FillFactor, 1e-9)
}

func TestFree_DestroysAllPersistentState(t *testing.T) {
	e := openTestEngine(t)
	require.Equal(t, StatusOK, e.Put([]byte("a"), []byte("1")))
	require.Equal(t, StatusOK, e.Put([]byte("b"), []byte("2")))

	require.NoError(t, e.Free())

	assert.Equal(t, uint64(0), e.TotalNumKeys())
	status, _ := e.Get([]byte("a"))
	assert.Equal(t, StatusNotFound, status)
}
