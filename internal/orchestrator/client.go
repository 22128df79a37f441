package orchestrator

import (
	"fmt"

	"go.uber.org/zap"

	"mentalfish/internal/deck"
	"mentalfish/internal/engine"
	"mentalfish/internal/secrets"
	"mentalfish/internal/state"
)

const actionLogCap = 32

// Action is one entry of the recent-action log exposed to the display layer.
type Action struct {
	Type   string
	Detail string
}

// Client drives one player's side of one game. It sequences the host calls
// for each player action and keeps a local hand/score mirror that is never
// trusted: after every mutating entry point the mirror is rebuilt from
// authoritative possession queries.
//
// A Client owns its game handle exclusively and issues calls strictly
// sequentially; it is not safe for concurrent use.
type Client struct {
	store  *engine.Store
	log    *zap.Logger
	gameID string
	me     state.Player

	hands   [2][]deck.Card
	scores  [2]uint8
	actions []Action
}

func New(store *engine.Store, me state.Player, log *zap.Logger) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("orchestrator: nil store")
	}
	if !me.Valid() {
		return nil, fmt.Errorf("orchestrator: invalid player %d", me)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{store: store, log: log, me: me}, nil
}

func (c *Client) GameID() string {
	return c.gameID
}

// Join attaches the client to an existing game (the second player's path).
func (c *Client) Join(gameID string) error {
	if c.gameID != "" {
		return fmt.Errorf("orchestrator: already attached to game %s", c.gameID)
	}
	if !c.store.DoesGameExist(gameID) {
		return fmt.Errorf("orchestrator: unknown game %s", gameID)
	}
	c.gameID = gameID
	return nil
}

func (c *Client) record(typ, detail string) {
	c.actions = append(c.actions, Action{Type: typ, Detail: detail})
	if len(c.actions) > actionLogCap {
		c.actions = c.actions[len(c.actions)-actionLogCap:]
	}
}

// Shuffle applies this player's mask. The first shuffler creates the game;
// the returned id is what the opponent joins.
func (c *Client) Shuffle(prov secrets.Provider) (string, error) {
	id, err := c.store.ApplyMask(c.gameID, c.me, prov)
	if err != nil {
		return "", err
	}
	c.gameID = id
	c.log.Info("mask applied", zap.String("game", id), zap.Uint8("player", uint8(c.me)))
	c.record("shuffle", "mask applied")
	return id, nil
}

// Deal deals the opening hands and resynchronizes the mirror.
func (c *Client) Deal() error {
	if err := c.store.DealCards(c.gameID); err != nil {
		return err
	}
	c.record("deal", "7 cards each")
	return c.Resync()
}

// AskRank asks the opponent for a rank. The caller must hold the rank; the
// follow-up (transfer or fishing) happens on the opponent's Respond.
func (c *Client) AskRank(r deck.Rank) error {
	if err := c.store.AskForCard(c.gameID, c.me, r); err != nil {
		return err
	}
	c.log.Info("asked", zap.String("game", c.gameID), zap.String("rank", r.String()))
	c.record("ask", r.String())
	return c.Resync()
}

// Respond answers the pending ask as the asked player, then scores any book
// the transfer completed for the asker and runs the end-of-game check.
func (c *Client) Respond() (engine.RespondResult, error) {
	asker, err := c.store.GetLastAskingPlayer(c.gameID)
	if err != nil {
		return engine.RespondResult{}, err
	}
	res, err := c.store.RespondToAsk(c.gameID, c.me)
	if err != nil {
		return engine.RespondResult{}, err
	}
	if res.Transferred > 0 {
		if _, err := c.store.CheckAndScoreBook(c.gameID, asker); err != nil {
			return res, err
		}
		c.record("respond", fmt.Sprintf("handed over %d", res.Transferred))
	} else {
		c.record("respond", "go fish")
	}
	if err := c.endCheck(); err != nil {
		return res, err
	}
	return res, c.Resync()
}

// FishAndReport runs the drawing player's whole follow-up to a failed ask:
// draw, report match/no-match against the asked rank, score any completed
// book, and run the end-of-game check. Returns the drawn card and whether it
// matched.
func (c *Client) FishAndReport() (deck.Card, bool, error) {
	rank, err := c.store.GetLastAskedRank(c.gameID)
	if err != nil {
		return 0, false, err
	}
	drawn, err := c.store.GoFish(c.gameID, c.me)
	if err != nil {
		return 0, false, err
	}
	matched := drawn.Rank() == rank
	if err := c.store.AfterGoFish(c.gameID, c.me, matched); err != nil {
		return drawn, matched, err
	}
	if _, err := c.store.CheckAndScoreBook(c.gameID, c.me); err != nil {
		return drawn, matched, err
	}
	c.log.Info("fished", zap.String("game", c.gameID),
		zap.String("card", drawn.String()), zap.Bool("matched", matched))
	c.record("fish", drawn.String())
	if err := c.endCheck(); err != nil {
		return drawn, matched, err
	}
	return drawn, matched, c.Resync()
}

// PlayOpening handles the start of this player's turn when the hand is
// empty: draw if the deck has cards, pass otherwise. A no-op when the hand
// is not empty.
func (c *Client) PlayOpening() error {
	if err := c.endCheck(); err != nil {
		return err
	}
	phase, err := c.store.GetGamePhase(c.gameID)
	if err != nil {
		return err
	}
	if phase != state.PhaseTurnStart {
		return nil
	}
	sizes, err := c.store.GetHandSizes(c.gameID)
	if err != nil {
		return err
	}
	if sizes[c.me-1] != 0 {
		return nil
	}
	remaining, err := c.store.GetDeckSize(c.gameID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		drawn, err := c.store.GoFish(c.gameID, c.me)
		if err != nil {
			return err
		}
		c.record("draw", drawn.String())
	} else {
		if err := c.store.SwitchTurn(c.gameID, c.me); err != nil {
			return err
		}
		c.record("pass", "empty hand, empty deck")
	}
	return c.Resync()
}

func (c *Client) endCheck() error {
	phase, err := c.store.GetGamePhase(c.gameID)
	if err != nil {
		return err
	}
	if phase != state.PhaseTurnStart {
		return nil
	}
	over, err := c.store.CheckAndEndGame(c.gameID)
	if err != nil {
		return err
	}
	if over {
		c.log.Info("game over", zap.String("game", c.gameID))
		c.record("end", "game over")
	}
	return nil
}

// ---- Mirror ----

// Resync rebuilds the hand and score mirrors from authoritative reads. Hands
// are probed card by card across all 52 indices per player, never derived
// from accumulated local deltas.
func (c *Client) Resync() error {
	for _, p := range []state.Player{state.Player1, state.Player2} {
		hand := make([]deck.Card, 0, deck.NumCards)
		for card := deck.Card(0); card < deck.NumCards; card++ {
			has, err := c.store.DoesPlayerHaveSpecificCard(c.gameID, p, card)
			if err != nil {
				return err
			}
			if has {
				hand = append(hand, card)
			}
		}
		c.hands[p-1] = hand
	}
	scores, err := c.store.GetScores(c.gameID)
	if err != nil {
		return err
	}
	c.scores = scores
	return nil
}

// CheckSync compares the mirror against authoritative possession and heals
// any divergence by resyncing. Returns true when the mirror was already
// consistent.
func (c *Client) CheckSync() (bool, error) {
	sizes, err := c.store.GetHandSizes(c.gameID)
	if err != nil {
		return false, err
	}
	consistent := true
	for _, p := range []state.Player{state.Player1, state.Player2} {
		if len(c.hands[p-1]) != sizes[p-1] {
			consistent = false
			break
		}
		for _, card := range c.hands[p-1] {
			has, err := c.store.DoesPlayerHaveSpecificCard(c.gameID, p, card)
			if err != nil {
				return false, err
			}
			if !has {
				consistent = false
				break
			}
		}
	}
	if !consistent {
		c.log.Warn("mirror desync detected, rebuilding",
			zap.String("game", c.gameID), zap.Uint8("player", uint8(c.me)))
		if err := c.Resync(); err != nil {
			return false, err
		}
	}
	return consistent, nil
}

// ---- Display queries ----

// Hand returns a copy of this player's mirrored hand.
func (c *Client) Hand() []deck.Card {
	return append([]deck.Card(nil), c.hands[c.me-1]...)
}

func (c *Client) Score() uint8 {
	return c.scores[c.me-1]
}

func (c *Client) Scores() [2]uint8 {
	return c.scores
}

func (c *Client) DeckRemaining() (int, error) {
	return c.store.GetDeckSize(c.gameID)
}

// Recent returns up to n most recent actions, oldest first.
func (c *Client) Recent(n int) []Action {
	if n <= 0 || n > len(c.actions) {
		n = len(c.actions)
	}
	out := make([]Action, n)
	copy(out, c.actions[len(c.actions)-n:])
	return out
}

// PhaseText renders the game phase for display.
func (c *Client) PhaseText() (string, error) {
	phase, err := c.store.GetGamePhase(c.gameID)
	if err != nil {
		return "", err
	}
	switch phase {
	case state.PhaseSetup:
		return "setting up", nil
	case state.PhaseTurnStart:
		turn, err := c.store.GetCurrentTurn(c.gameID)
		if err != nil {
			return "", err
		}
		if turn == c.me {
			return "your turn", nil
		}
		return "opponent's turn", nil
	case state.PhaseWaitForResponse:
		return "waiting for a response", nil
	case state.PhaseWaitForTransfer:
		return "transferring cards", nil
	case state.PhaseWaitForDraw:
		return "go fish", nil
	case state.PhaseWaitForDrawCheck:
		return "checking the draw", nil
	case state.PhaseGameOver:
		return "game over", nil
	default:
		return string(phase), nil
	}
}
