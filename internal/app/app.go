package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"

	"mentalfish/internal/codec"
	"mentalfish/internal/deck"
	"mentalfish/internal/engine"
	"mentalfish/internal/mfcrypto"
	"mentalfish/internal/secrets"
	"mentalfish/internal/state"
)

const (
	AppVersion uint64 = 1
)

// defaultGenesisSeed feeds the localnet secret stub when no genesis_seed
// file exists under the app home. See playerProvider.
const defaultGenesisSeed = "mfish/v0/localnet-seed"

type MFApp struct {
	*abci.BaseApplication

	home string

	mu       sync.Mutex
	store    *engine.Store
	lastHash []byte

	genesisSeed []byte
}

func New(home string) (*MFApp, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &MFApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		store:           engine.NewStoreWith(st),
		lastHash:        st.AppHash(),
		genesisSeed:     loadGenesisSeed(appHome),
	}
	// Providers are secret material and never persisted; after a restart the
	// localnet stub re-derives them for every game that already has masks.
	for id, g := range st.Games {
		for _, p := range []state.Player{state.Player1, state.Player2} {
			if !g.HasMask(p) {
				continue
			}
			prov, err := a.playerProvider(p)
			if err != nil {
				return nil, err
			}
			if err := a.store.RegisterProvider(id, p, prov); err != nil {
				return nil, fmt.Errorf("restore provider for game %s: %w", id, err)
			}
		}
	}
	return a, nil
}

func loadGenesisSeed(appHome string) []byte {
	b, err := os.ReadFile(filepath.Join(appHome, "genesis_seed"))
	if err != nil || len(b) == 0 {
		return []byte(defaultGenesisSeed)
	}
	return b
}

// playerProvider is the v0 localnet secret stub: both players' keys and
// shuffle seeds derive from the shared genesis seed, so the node can run
// every call of a game by itself. A real deployment replaces this with
// per-player providers that never leave the player's host.
func (a *MFApp) playerProvider(p state.Player) (secrets.Provider, error) {
	material := append([]byte{}, a.genesisSeed...)
	material = append(material, byte(p))
	return secrets.Derive(material)
}

func (a *MFApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "mentalfish (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.store.State().Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *MFApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// v0: only structural validation; auth runs at delivery.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *MFApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	// v0: no special genesis handling.
	return &abci.InitChainResponse{}, nil
}

func (a *MFApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.store.SetHeight(req.Height)

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes)
		txResults = append(txResults, res)
	}

	a.lastHash = a.store.State().AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *MFApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	// Persist after each block for devnet durability.
	appHome := filepath.Join(a.home, "app")
	if err := a.store.State().Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *MFApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.store.State()

	// Paths:
	// - /games
	// - /game/<id>
	// - /game/<id>/phase
	// - /game/<id>/deck
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/games":
		ids := make([]string, 0, len(st.Games))
		for id := range st.Games {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		b, _ := json.Marshal(ids)
		return &abci.QueryResponse{Code: 0, Value: b, Height: st.Height}, nil

	case strings.HasPrefix(path, "/game/"):
		rest := strings.TrimPrefix(path, "/game/")
		id, sub, _ := strings.Cut(rest, "/")
		g, ok := st.Games[id]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "game not found", Height: st.Height}, nil
		}
		switch sub {
		case "":
			b, _ := json.Marshal(g)
			return &abci.QueryResponse{Code: 0, Value: b, Height: st.Height}, nil
		case "phase":
			b, _ := json.Marshal(map[string]any{
				"phase":       g.Phase,
				"currentTurn": g.CurrentTurn,
			})
			return &abci.QueryResponse{Code: 0, Value: b, Height: st.Height}, nil
		case "deck":
			points, err := a.store.MaskedDeck(id)
			if err != nil {
				return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: st.Height}, nil
			}
			hexed := make([]string, 0, len(points))
			for _, pt := range points {
				hexed = append(hexed, mfcrypto.EncodeHex(pt))
			}
			b, _ := json.Marshal(map[string]any{
				"topIndex": g.TopIndex,
				"points":   hexed,
			})
			return &abci.QueryResponse{Code: 0, Value: b, Height: st.Height}, nil
		default:
			return &abci.QueryResponse{Code: 1, Log: "unknown game subpath", Height: st.Height}, nil
		}

	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: st.Height}, nil
	}
}

func (a *MFApp) deliverTx(txBytes []byte) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	st := a.store.State()

	switch env.Type {
	case "auth/register_key":
		var msg codec.AuthRegisterKeyTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad auth/register_key value"}
		}
		if err := requireRegisterKeyAuth(env, msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := a.store.RegisterKey(msg.Signer, msg.PubKey); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("KeyRegistered", map[string]string{
			"signer": msg.Signer,
		})

	case "fish/apply_mask":
		var msg codec.FishApplyMaskTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad fish/apply_mask value"}
		}
		if err := requireSignerAuth(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		p := state.Player(msg.Player)
		if !p.Valid() {
			return &abci.ExecTxResult{Code: 1, Log: "invalid player"}
		}
		prov, err := a.playerProvider(p)
		if err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		id, err := a.store.ApplyMask(msg.GameID, p, prov)
		if err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("MaskApplied", map[string]string{
			"gameId": id,
			"player": fmt.Sprintf("%d", p),
		})

	case "fish/deal":
		var msg codec.FishDealTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad fish/deal value"}
		}
		if err := requireSignerAuth(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := a.store.DealCards(msg.GameID); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("CardsDealt", map[string]string{
			"gameId": msg.GameID,
		})

	case "fish/ask":
		var msg codec.FishAskTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad fish/ask value"}
		}
		if err := requireSignerAuth(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		p := state.Player(msg.Player)
		r := deck.Rank(msg.Rank)
		if err := a.store.AskForCard(msg.GameID, p, r); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("AskMade", map[string]string{
			"gameId": msg.GameID,
			"player": fmt.Sprintf("%d", p),
			"rank":   r.String(),
		})

	case "fish/respond":
		var msg codec.FishRespondTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad fish/respond value"}
		}
		if err := requireSignerAuth(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		res, err := a.store.RespondToAsk(msg.GameID, state.Player(msg.Player))
		if err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("AskResolved", map[string]string{
			"gameId":      msg.GameID,
			"transferred": fmt.Sprintf("%d", res.Transferred),
			"goFish":      fmt.Sprintf("%t", res.GoFish),
		})

	case "fish/go_fish":
		var msg codec.FishGoFishTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad fish/go_fish value"}
		}
		if err := requireSignerAuth(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		p := state.Player(msg.Player)
		drawn, err := a.store.GoFish(msg.GameID, p)
		if err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		// The drawn card is emitted in the clear: with the localnet secret
		// stub the node holds both keys anyway. Per-player providers make
		// this event attribute go away.
		return okEvent("CardDrawn", map[string]string{
			"gameId": msg.GameID,
			"player": fmt.Sprintf("%d", p),
			"card":   drawn.String(),
		})

	case "fish/after_go_fish":
		var msg codec.FishAfterGoFishTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad fish/after_go_fish value"}
		}
		if err := requireSignerAuth(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		p := state.Player(msg.Player)
		if err := a.store.AfterGoFish(msg.GameID, p, msg.Match); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("DrawChecked", map[string]string{
			"gameId": msg.GameID,
			"player": fmt.Sprintf("%d", p),
			"match":  fmt.Sprintf("%t", msg.Match),
		})

	case "fish/switch_turn":
		var msg codec.FishSwitchTurnTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad fish/switch_turn value"}
		}
		if err := requireSignerAuth(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := a.store.SwitchTurn(msg.GameID, state.Player(msg.Player)); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("TurnSwitched", map[string]string{
			"gameId": msg.GameID,
			"player": fmt.Sprintf("%d", msg.Player),
		})

	case "fish/score_book":
		var msg codec.FishScoreBookTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad fish/score_book value"}
		}
		if err := requireSignerAuth(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		p := state.Player(msg.Player)
		ranks, err := a.store.CheckAndScoreBook(msg.GameID, p)
		if err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		names := make([]string, 0, len(ranks))
		for _, r := range ranks {
			names = append(names, r.String())
		}
		return okEvent("BookScored", map[string]string{
			"gameId": msg.GameID,
			"player": fmt.Sprintf("%d", p),
			"ranks":  strings.Join(names, ","),
		})

	case "fish/end_game":
		var msg codec.FishEndGameTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad fish/end_game value"}
		}
		if err := requireSignerAuth(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		over, err := a.store.CheckAndEndGame(msg.GameID)
		if err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("GameEnded", map[string]string{
			"gameId": msg.GameID,
			"over":   fmt.Sprintf("%t", over),
		})

	default:
		return &abci.ExecTxResult{Code: 1, Log: "unknown tx type: " + env.Type}
	}
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}
