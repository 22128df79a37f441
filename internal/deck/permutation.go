package deck

import (
	"crypto/sha256"
	"encoding/binary"
)

// Permutation derives a permutation of 0..n-1 from a seed: a Fisher-Yates
// shuffle driven by a sha256-based stream, so both players can reproduce
// their own shuffles exactly.
func Permutation(seed []byte, n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	var counter uint64
	for i := n - 1; i > 0; i-- {
		buf := make([]byte, len(seed)+8)
		copy(buf, seed)
		binary.LittleEndian.PutUint64(buf[len(seed):], counter)
		h := sha256.Sum256(buf)
		counter++
		j := int(binary.LittleEndian.Uint64(h[:8]) % uint64(i+1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}
