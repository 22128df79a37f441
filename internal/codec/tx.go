package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the v0 transaction container.
//
// CometBFT transactions are opaque bytes. For v0 localnet we use JSON-encoded
// txs to move fast; this is NOT the final protocol encoding.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// v0 tx auth (optional):
	// - Nonce: included in the signed message for replay protection.
	// - Signer: logical signer id.
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	//
	// Note: This is still a scaffold; it is NOT the final protocol encoding.
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Auth (v0) ----

// v0: signer pubkey registration for tx authentication.
type AuthRegisterKeyTx struct {
	Signer string `json:"signer"`
	PubKey []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Go Fish ----

// FishApplyMaskTx applies one player's mask to the deck. An empty gameId
// allocates a fresh game.
type FishApplyMaskTx struct {
	GameID string `json:"gameId,omitempty"`
	Player uint8  `json:"player"`
}

type FishDealTx struct {
	GameID string `json:"gameId"`
}

type FishAskTx struct {
	GameID string `json:"gameId"`
	Player uint8  `json:"player"`
	Rank   uint8  `json:"rank"`
}

type FishRespondTx struct {
	GameID string `json:"gameId"`
	Player uint8  `json:"player"`
}

type FishGoFishTx struct {
	GameID string `json:"gameId"`
	Player uint8  `json:"player"`
}

type FishAfterGoFishTx struct {
	GameID string `json:"gameId"`
	Player uint8  `json:"player"`
	Match  bool   `json:"match"`
}

type FishSwitchTurnTx struct {
	GameID string `json:"gameId"`
	Player uint8  `json:"player"`
}

type FishScoreBookTx struct {
	GameID string `json:"gameId"`
	Player uint8  `json:"player"`
}

type FishEndGameTx struct {
	GameID string `json:"gameId"`
}
