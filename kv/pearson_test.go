package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPearsonHash_NeverZero(t *testing.T) {
	for i := 0; i < 10000; i++ {
		b := []byte{byte(i), byte(i >> 8), byte(i >> 16)}
		assert.NotEqual(t, byte(0), PearsonHash(b))
	}
	assert.NotEqual(t, byte(0), PearsonHash(nil))
}

func TestPearsonHash_Deterministic(t *testing.T) {
	keys := []string{"", "a", "ab", "k00", "k48", "the quick brown fox"}
	for _, k := range keys {
		a := PearsonHash([]byte(k))
		b := PearsonHash([]byte(k))
		assert.Equal(t, a, b, "hash of %q must be stable across calls", k)
	}
}

func TestPearsonHash_FindCollisionPair(t *testing.T) {
	seen := map[byte]string{}
	var k1, k2 string
	for i := 0; i < 100000 && k1 == ""; i++ {
		k := randomASCIIKey(i)
		h := PearsonHash([]byte(k))
		if prev, ok := seen[h]; ok && prev != k {
			k1, k2 = prev, k
			break
		}
		seen[h] = k
	}
	assert.NotEmpty(t, k1, "expected to find a Pearson collision pair among short ASCII keys")
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, PearsonHash([]byte(k1)), PearsonHash([]byte(k2)))
}

func randomASCIIKey(seed int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	n := seed
	b := make([]byte, 0, 4)
	for i := 0; i < 3; i++ {
		b = append(b, alphabet[n%len(alphabet)])
		n /= len(alphabet)
	}
	return string(b)
}
