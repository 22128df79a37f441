package mfcrypto

import (
	"crypto/sha512"
	"fmt"
	"hash"
)

var (
	hashToScalarPrefix = []byte("MFISHv1|hash_to_scalar|")
)

func updateLenBytes(h hash.Hash, b []byte) {
	h.Write(u32le(uint32(len(b))))
	h.Write(b)
}

// HashToScalar derives a scalar from a domain-separated SHA-512 digest of the
// given messages (length-prefixed, so message boundaries cannot collide).
func HashToScalar(domainSep string, msgs ...[]byte) (Scalar, error) {
	h := sha512.New()
	h.Write(hashToScalarPrefix)
	updateLenBytes(h, []byte(domainSep))
	for _, m := range msgs {
		if m == nil {
			return Scalar{}, fmt.Errorf("hashToScalar: nil msg")
		}
		updateLenBytes(h, m)
	}
	digest := h.Sum(nil) // 64 bytes
	return ScalarFromUniformBytes(digest)
}

// HashToNonzeroScalar retries HashToScalar with a counter suffix until the
// result is non-zero. Zero secrets would make masking non-invertible.
func HashToNonzeroScalar(domainSep string, msgs ...[]byte) (Scalar, error) {
	for counter := uint32(0); counter < 256; counter++ {
		all := msgs
		if counter > 0 {
			all = append(append([][]byte(nil), msgs...), []byte{byte(counter)})
		}
		s, err := HashToScalar(domainSep, all...)
		if err != nil {
			return Scalar{}, err
		}
		if !s.IsZero() {
			return s, nil
		}
	}
	return Scalar{}, fmt.Errorf("hashToNonzeroScalar: failed to find non-zero scalar")
}
