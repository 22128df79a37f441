package deck

import (
	"fmt"

	"mentalfish/internal/mfcrypto"
)

// CanonicalPoint is the fixed public curve point for a card:
//
//	M_c = (c+1)*G
//
// Distinct nonzero multiples of the base point, so the 52-entry mapping is
// collision-free by construction.
func CanonicalPoint(c Card) mfcrypto.Point {
	return mfcrypto.MulBase(mfcrypto.ScalarFromUint64(uint64(c) + 1))
}

// Canonical returns the 52 canonical points in card order.
func Canonical() []mfcrypto.Point {
	out := make([]mfcrypto.Point, NumCards)
	for c := 0; c < NumCards; c++ {
		out[c] = CanonicalPoint(Card(c))
	}
	return out
}

// PointToCard reverses the canonical embedding. A miss after full decryption
// indicates an implementation defect, not a recoverable condition.
func PointToCard(p mfcrypto.Point) (Card, error) {
	for c := 0; c < NumCards; c++ {
		if mfcrypto.PointEq(p, CanonicalPoint(Card(c))) {
			return Card(c), nil
		}
	}
	return 0, fmt.Errorf("plaintext does not map to a known card")
}

// Mask applies one player's secret scalar to every point and permutes the
// positions by the player's shuffle seed. Both players masking in either
// order commute under scalar multiplication, which is what lets the reveal
// protocol strip the layers independently.
func Mask(points []mfcrypto.Point, key mfcrypto.Scalar, seed [32]byte) ([]mfcrypto.Point, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("mask: zero secret key")
	}
	masked := make([]mfcrypto.Point, len(points))
	for i, p := range points {
		masked[i] = mfcrypto.MulPoint(p, key)
	}
	perm := Permutation(seed[:], len(masked))
	out := make([]mfcrypto.Point, len(masked))
	for i, j := range perm {
		out[i] = masked[j]
	}
	return out, nil
}

// Unmask removes one player's mask layer from a single point by multiplying
// with the modular inverse of that player's secret scalar.
func Unmask(p mfcrypto.Point, key mfcrypto.Scalar) (mfcrypto.Point, error) {
	inv, err := mfcrypto.ScalarInv(key)
	if err != nil {
		return mfcrypto.Point{}, fmt.Errorf("unmask: %w", err)
	}
	return mfcrypto.MulPoint(p, inv), nil
}
