package app

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"mentalfish/internal/codec"
	"mentalfish/internal/state"
)

const txAuthDomainV0 = "mfish/tx/v0"

func txAuthSignBytesV0(typ string, value []byte, nonce string, signer string) []byte {
	// signBytes = DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomainV0)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomainV0)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return fmt.Errorf("missing tx.nonce")
	}
	if env.Signer == "" {
		return fmt.Errorf("missing tx.signer")
	}
	if len(env.Sig) == 0 {
		return fmt.Errorf("missing tx.sig")
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), ed25519.SignatureSize)
	}
	return nil
}

// requireRegisterKeyAuth checks that a key registration is self-signed by
// the key it registers.
func requireRegisterKeyAuth(env codec.TxEnvelope, msg codec.AuthRegisterKeyTx) error {
	if msg.Signer == "" {
		return fmt.Errorf("missing signer")
	}
	if len(msg.PubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("pubKey must be %d bytes", ed25519.PublicKeySize)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != msg.Signer {
		return fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, msg.Signer)
	}
	pub := ed25519.PublicKey(msg.PubKey)
	msgBytes := txAuthSignBytesV0(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(pub, msgBytes, env.Sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// requireSignerAuth verifies an envelope against the registered key of its
// signer. Unsigned envelopes pass: v0 localnet tolerates bare txs, but once
// a tx carries a signer the signature must check out.
func requireSignerAuth(st *state.State, env codec.TxEnvelope) error {
	if st == nil {
		return fmt.Errorf("state is nil")
	}
	if env.Signer == "" && len(env.Sig) == 0 && env.Nonce == "" {
		return nil
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	pub := st.Keys[env.Signer]
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("signer %q missing pubKey (auth/register_key required)", env.Signer)
	}
	msg := txAuthSignBytesV0(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, env.Sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}
