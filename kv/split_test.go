package kv

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S4 + invariants 5 (height) and 6 (separator), walking the tree after every
// insert of a LeafKeys+1-key sequence so the first full-leaf split is
// exercised and checked at every step, not just at the end.
func TestScenario_LeafSplit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.pmemkv")
	e, err := Open(path, 8<<20)
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i <= LeafKeys; i++ {
		key := fmt.Sprintf("k%02d", i)
		require.Equal(t, StatusOK, e.Put([]byte(key), []byte(key)))
		assertHeightBalanced(t, e.t.top)
		assertSeparatorsValid(t, e.t.top)
	}

	assert.Equal(t, uint64(LeafKeys+1), e.TotalNumKeys())

	status, v := e.Get([]byte("k00"))
	require.Equal(t, StatusOK, status)
	assert.Equal(t, []byte("k00"), v)

	status, v = e.Get([]byte(fmt.Sprintf("k%02d", LeafKeys)))
	require.Equal(t, StatusOK, status)
	assert.Equal(t, []byte(fmt.Sprintf("k%02d", LeafKeys)), v)

	assert.GreaterOrEqual(t, e.t.height(), 1, "expected routing above the leaf level after a split")
}

// assertHeightBalanced walks every root-to-leaf path and requires they all
// have the same length (invariant 5).
func assertHeightBalanced(t *testing.T, top childNode) {
	t.Helper()
	if top == nil {
		return
	}
	depths := map[int]bool{}
	var walk func(node childNode, depth int)
	walk = func(node childNode, depth int) {
		if node.isLeaf() {
			depths[depth] = true
			return
		}
		inner := node.(*innerNode)
		for i := 0; i <= inner.keyCount; i++ {
			walk(inner.children[i], depth+1)
		}
	}
	walk(top, 0)
	assert.Len(t, depths, 1, "every root-to-leaf path must have the same length")
}

// assertSeparatorsValid checks invariant 6: for every inner node with
// separators s1<...<sk, every key under child i (i<k) is <= s_i and every
// key under child k is > s_{k-1}.
func assertSeparatorsValid(t *testing.T, top childNode) {
	t.Helper()
	var walk func(node childNode)
	walk = func(node childNode) {
		inner, ok := node.(*innerNode)
		if !ok {
			return
		}
		for i := 0; i < inner.keyCount; i++ {
			assertAllKeysLTE(t, inner.children[i], inner.keys[i])
			if i > 0 {
				assertAllKeysGT(t, inner.children[i], inner.keys[i-1])
			}
			walk(inner.children[i])
		}
		if inner.keyCount > 0 {
			assertAllKeysGT(t, inner.children[inner.keyCount], inner.keys[inner.keyCount-1])
		}
		walk(inner.children[inner.keyCount])
	}
	walk(top)
}

func assertAllKeysLTE(t *testing.T, node childNode, bound string) {
	t.Helper()
	for _, k := range collectKeys(node) {
		assert.LessOrEqual(t, k, bound)
	}
}

func assertAllKeysGT(t *testing.T, node childNode, bound string) {
	t.Helper()
	for _, k := range collectKeys(node) {
		assert.Greater(t, k, bound)
	}
}

func collectKeys(node childNode) []string {
	if leaf, ok := node.(*leafDescriptor); ok {
		var keys []string
		for i := 0; i < LeafKeys; i++ {
			if leaf.hashes[i] != 0 {
				keys = append(keys, leaf.keys[i])
			}
		}
		return keys
	}
	inner := node.(*innerNode)
	var keys []string
	for i := 0; i <= inner.keyCount; i++ {
		keys = append(keys, collectKeys(inner.children[i])...)
	}
	return keys
}
