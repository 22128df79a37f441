package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"mentalfish/internal/deck"
)

// Player identity. The zero value is the "no player" sentinel returned by
// ask queries outside an ask.
type Player uint8

const (
	NoPlayer Player = 0
	Player1  Player = 1
	Player2  Player = 2
)

func (p Player) Valid() bool {
	return p == Player1 || p == Player2
}

func (p Player) Opponent() Player {
	switch p {
	case Player1:
		return Player2
	case Player2:
		return Player1
	default:
		return NoPlayer
	}
}

type Phase string

const (
	PhaseSetup            Phase = "setup"
	PhaseTurnStart        Phase = "turnStart"
	PhaseWaitForResponse  Phase = "waitForResponse"
	PhaseWaitForTransfer  Phase = "waitForTransfer" // reserved: the transfer runs inside respondToAsk
	PhaseWaitForDraw      Phase = "waitForDraw"
	PhaseWaitForDrawCheck Phase = "waitForDrawCheck"
	PhaseGameOver         Phase = "gameOver"
)

// PendingAsk is the request payload carried by WaitForResponse and
// WaitForDraw. Embedding it next to the phase (instead of sentinel fields
// cleared by convention) makes "cleared exactly on return to TurnStart"
// structural.
type PendingAsk struct {
	Asker Player    `json:"asker"`
	Rank  deck.Rank `json:"rank"`
}

// PendingDraw is the payload carried by WaitForDrawCheck.
type PendingDraw struct {
	Asker Player    `json:"asker"`
	Rank  deck.Rank `json:"rank"`
	Drawn deck.Card `json:"drawn"`
}

// Game is one game's complete authoritative ledger. Games share no mutable
// state; a store maps game ids to these structs.
type Game struct {
	ID string `json:"id"`

	Phase       Phase  `json:"phase"`
	CurrentTurn Player `json:"currentTurn"`

	// Deck holds the 52 masked point encodings in position order. TopIndex
	// counts positions already drawn; it never decreases.
	Deck     [][]byte `json:"deck"`
	TopIndex int      `json:"topIndex"`

	MaskApplied [2]bool `json:"maskApplied"` // indexed by player-1
	CardsDealt  bool    `json:"cardsDealt"`

	Hands [2][]deck.Card `json:"hands"`

	// BookedBy[rank] is the player who scored that rank's book, or NoPlayer.
	BookedBy [deck.NumRanks]Player `json:"bookedBy"`
	Scores   [2]uint8              `json:"scores"`

	Ask  *PendingAsk  `json:"ask,omitempty"`
	Draw *PendingDraw `json:"draw,omitempty"`
}

func NewGame(id string, points [][]byte) *Game {
	return &Game{
		ID:          id,
		Phase:       PhaseSetup,
		CurrentTurn: Player1,
		Deck:        points,
		Hands:       [2][]deck.Card{{}, {}},
	}
}

func (g *Game) Hand(p Player) []deck.Card {
	return g.Hands[p-1]
}

func (g *Game) SetHand(p Player, h []deck.Card) {
	g.Hands[p-1] = h
}

func (g *Game) HasMask(p Player) bool {
	return g.MaskApplied[p-1]
}

// DeckRemaining is the count of undrawn positions.
func (g *Game) DeckRemaining() int {
	return len(g.Deck) - g.TopIndex
}

func (g *Game) HasSpecificCard(p Player, c deck.Card) bool {
	for _, held := range g.Hand(p) {
		if held == c {
			return true
		}
	}
	return false
}

func (g *Game) CountRank(p Player, r deck.Rank) int {
	n := 0
	for _, held := range g.Hand(p) {
		if held.Rank() == r {
			n++
		}
	}
	return n
}

// TakeRank removes every card of the given rank from p's hand and returns
// them in hand order.
func (g *Game) TakeRank(p Player, r deck.Rank) []deck.Card {
	var taken []deck.Card
	kept := make([]deck.Card, 0, len(g.Hand(p)))
	for _, held := range g.Hand(p) {
		if held.Rank() == r {
			taken = append(taken, held)
		} else {
			kept = append(kept, held)
		}
	}
	g.SetHand(p, kept)
	return taken
}

func (g *Game) AddCards(p Player, cards ...deck.Card) {
	g.SetHand(p, append(g.Hand(p), cards...))
}

func (g *Game) TotalBooks() int {
	n := 0
	for _, by := range g.BookedBy {
		if by != NoPlayer {
			n++
		}
	}
	return n
}

// ---- Store ----

type State struct {
	Height int64             `json:"height"`
	Games  map[string]*Game  `json:"games"`
	Keys   map[string][]byte `json:"keys,omitempty"` // signer -> ed25519 pubkey (32 bytes)
}

func NewState() *State {
	return &State{
		Height: 0,
		Games:  map[string]*Game{},
		Keys:   map[string][]byte{},
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if st.Games == nil {
		st.Games = map[string]*Game{}
	}
	if st.Keys == nil {
		st.Keys = map[string][]byte{}
	}
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged call execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	if out.Games == nil {
		out.Games = map[string]*Game{}
	}
	if out.Keys == nil {
		out.Keys = map[string][]byte{}
	}
	return &out, nil
}

// CloneGame deep-copies a single game for staged execution of one call.
func CloneGame(g *Game) (*Game, error) {
	if g == nil {
		return nil, fmt.Errorf("game is nil")
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode game clone: %w", err)
	}
	var out Game
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode game clone: %w", err)
	}
	if out.Hands[0] == nil {
		out.Hands[0] = []deck.Card{}
	}
	if out.Hands[1] == nil {
		out.Hands[1] = []deck.Card{}
	}
	return &out, nil
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: encoding/json does NOT guarantee map key
	// order, so normalize the games map into a sorted slice first.
	type gameKV struct {
		ID   string `json:"id"`
		Game *Game  `json:"game"`
	}

	type keyKV struct {
		Signer string `json:"signer"`
		PubKey []byte `json:"pubKey"`
	}

	games := make([]gameKV, 0, len(s.Games))
	for id, g := range s.Games {
		games = append(games, gameKV{ID: id, Game: g})
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })

	keys := make([]keyKV, 0, len(s.Keys))
	for signer, pk := range s.Keys {
		keys = append(keys, keyKV{Signer: signer, PubKey: pk})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Signer < keys[j].Signer })

	normalized := struct {
		Height int64    `json:"height"`
		Games  []gameKV `json:"games"`
		Keys   []keyKV  `json:"keys"`
	}{
		Height: s.Height,
		Games:  games,
		Keys:   keys,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}
