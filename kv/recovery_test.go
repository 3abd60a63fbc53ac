package kv

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S6 + invariant 7: close-and-reopen preserves the full key->value mapping
// across a sequence that forces at least one leaf split.
func TestScenario_RecoveryAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.pmemkv")

	e, err := Open(path, 8<<20)
	require.NoError(t, err)

	want := map[string]string{}
	for i := 0; i <= LeafKeys; i++ {
		key := fmt.Sprintf("k%02d", i)
		want[key] = key
		require.Equal(t, StatusOK, e.Put([]byte(key), []byte(key)))
	}
	beforeKeys := sortedKeys(e.ListAllKeys())
	require.Equal(t, uint64(LeafKeys+1), e.TotalNumKeys())
	require.NoError(t, e.Close())

	reopened, err := Open(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint64(LeafKeys+1), reopened.TotalNumKeys())
	afterKeys := sortedKeys(reopened.ListAllKeys())
	assert.Equal(t, beforeKeys, afterKeys)

	for key, value := range want {
		status, v := reopened.Get([]byte(key))
		require.Equal(t, StatusOK, status, "key %q must survive recovery", key)
		assert.Equal(t, []byte(value), v)
	}

	assertHeightBalanced(t, reopened.t.top)
	assertSeparatorsValid(t, reopened.t.top)
}

// Recovery must retire all-empty leaves to the prealloc pool rather than
// routing through them.
func TestRecovery_RetiresEmptyLeavesToPrealloc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.pmemkv")

	e, err := Open(path, 8<<20)
	require.NoError(t, err)

	for i := 0; i <= LeafKeys; i++ {
		key := fmt.Sprintf("k%02d", i)
		require.Equal(t, StatusOK, e.Put([]byte(key), []byte(key)))
	}
	// Empty the whole tree: every leaf becomes all-empty.
	for i := 0; i <= LeafKeys; i++ {
		key := fmt.Sprintf("k%02d", i)
		require.Equal(t, StatusOK, e.Remove([]byte(key)))
	}
	require.NoError(t, e.Close())

	reopened, err := Open(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint64(0), reopened.TotalNumKeys())
	assert.Nil(t, reopened.t.top, "an all-empty pool must recover to an empty routing tree")
	assert.NotEmpty(t, reopened.t.prealloc, "emptied leaves must be retained for reuse")
}

func sortedKeys(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	sort.Strings(out)
	return out
}
