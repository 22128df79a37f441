package secrets

import (
	"crypto/sha256"
	"fmt"

	"mentalfish/internal/mfcrypto"
)

const (
	keyDeriveDomain = "mfish/v1/secrets/key-derive"
)

// Provider supplies one player's secret material. Both values must stay
// constant for a game's lifetime: rotating them mid-game permanently
// desynchronizes points that were masked under the old key.
//
// A Provider must never be handed to the opposing player.
type Provider interface {
	// SecretKey returns the player's masking scalar. Never zero.
	SecretKey() mfcrypto.Scalar

	// ShuffleSeed returns the player's deck permutation seed.
	ShuffleSeed() [32]byte
}

type staticProvider struct {
	key  mfcrypto.Scalar
	seed [32]byte
}

func (p *staticProvider) SecretKey() mfcrypto.Scalar { return p.key }
func (p *staticProvider) ShuffleSeed() [32]byte      { return p.seed }

// NewStatic wraps fixed secret material. The key must be non-zero.
func NewStatic(key mfcrypto.Scalar, seed [32]byte) (Provider, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("secrets: zero secret key")
	}
	return &staticProvider{key: key, seed: seed}, nil
}

// Derive builds a Provider from an opaque seed: the masking scalar comes from
// domain-separated hash-to-scalar, the shuffle seed from sha256.
func Derive(material []byte) (Provider, error) {
	if len(material) == 0 {
		return nil, fmt.Errorf("secrets: empty material")
	}
	key, err := mfcrypto.HashToNonzeroScalar(keyDeriveDomain, material)
	if err != nil {
		return nil, fmt.Errorf("secrets: derive key: %w", err)
	}
	return &staticProvider{
		key:  key,
		seed: sha256.Sum256(material),
	}, nil
}
