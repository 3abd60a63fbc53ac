package kv

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"
)

// TestProperty_RandomOperationSequence cross-checks a long randomized
// sequence of Put/Remove/Get calls against a plain map[string]string oracle,
// covering invariants 1, 2, 3, 8 and 9 from spec.md §8. A roaring bitmap
// tracks which of a bounded key universe are currently live: membership and
// cardinality checks against TotalNumKeys stay cheap even as the sequence
// grows, the same role RoaringBitmap plays for shard membership filtering in
// the retrieval pack's vector-index example.
func TestProperty_RandomOperationSequence(t *testing.T) {
	const universe = 400
	const steps = 5000

	path := filepath.Join(t.TempDir(), "pool.pmemkv")
	e, err := Open(path, 16<<20)
	require.NoError(t, err)
	defer e.Close()

	oracle := map[string]string{}
	live := roaring.New()
	rng := rand.New(rand.NewSource(1))

	keyFor := func(idx int) string { return fmt.Sprintf("key-%04d", idx) }

	for step := 0; step < steps; step++ {
		idx := rng.Intn(universe)
		key := keyFor(idx)

		switch {
		case rng.Intn(100) < 70:
			value := fmt.Sprintf("v-%d-%d", idx, step)
			require.Equal(t, StatusOK, e.Put([]byte(key), []byte(value)))
			_, existed := oracle[key]
			oracle[key] = value
			live.Add(uint32(idx))
			if existed {
				// invariant 9: overwrite must not change the live count.
				require.Equal(t, uint64(len(oracle)), e.TotalNumKeys())
			}
		default:
			require.Equal(t, StatusOK, e.Remove([]byte(key)))
			delete(oracle, key)
			live.Remove(uint32(idx))
		}

		// invariant 1: Get(k) returns the oracle's current value, or
		// NotFound if never written / last removed.
		status, got := e.Get([]byte(key))
		if want, ok := oracle[key]; ok {
			require.Equal(t, StatusOK, status, "step %d key %q", step, key)
			require.Equal(t, []byte(want), got, "step %d key %q", step, key)
		} else {
			require.Equal(t, StatusNotFound, status, "step %d key %q", step, key)
		}
	}

	// invariant 2: TotalNumKeys equals the number of distinct live keys.
	require.Equal(t, uint64(len(oracle)), e.TotalNumKeys())
	require.Equal(t, live.GetCardinality(), e.TotalNumKeys())

	// invariant 3: ListAllKeys returns exactly the live keys, each once.
	seen := map[string]int{}
	for _, k := range e.ListAllKeys() {
		seen[string(k)]++
	}
	require.Len(t, seen, len(oracle))
	for k, count := range seen {
		require.Equal(t, 1, count, "key %q must appear exactly once", k)
		_, inOracle := oracle[k]
		require.True(t, inOracle, "key %q reported live but absent from oracle", k)
	}
	for k := range oracle {
		require.Contains(t, seen, k)
	}

	// Final full cross-check of every value.
	for k, want := range oracle {
		status, got := e.Get([]byte(k))
		require.Equal(t, StatusOK, status)
		require.Equal(t, []byte(want), got)
	}
}
