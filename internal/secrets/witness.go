package secrets

import (
	"encoding/binary"
	"math/big"
	"sort"

	"mentalfish/internal/mfcrypto"
)

// Witness helpers used by the proving side of the protocol: modular
// inversion, field-element limb splitting, and a stable ordering for
// (point, weight) pairs.

// FieldInverse inverts x modulo the ristretto255 group order. Fails on zero.
func FieldInverse(x mfcrypto.Scalar) (mfcrypto.Scalar, error) {
	return mfcrypto.ScalarInv(x)
}

// SplitFieldBits splits a scalar into its high and low limbs so that
// high*2^64 + low == x, for every x in the field including zero and the
// maximum element.
func SplitFieldBits(x mfcrypto.Scalar) (high *big.Int, low uint64) {
	b := x.Bytes() // canonical little-endian, 32 bytes
	low = binary.LittleEndian.Uint64(b[:8])

	// big.Int wants big-endian; reverse the remaining 24 bytes.
	rest := make([]byte, 24)
	for i := 0; i < 24; i++ {
		rest[i] = b[31-i]
	}
	high = new(big.Int).SetBytes(rest)
	return high, low
}

// WeightedPoint pairs a curve point with its sort weight.
type WeightedPoint struct {
	Point  mfcrypto.Point
	Weight uint64
}

// SortByWeight returns a permutation of indices into pairs, stable and
// non-decreasing by weight. The input slice is not modified.
func SortByWeight(pairs []WeightedPoint) []int {
	perm := make([]int, len(pairs))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return pairs[perm[a]].Weight < pairs[perm[b]].Weight
	})
	return perm
}
