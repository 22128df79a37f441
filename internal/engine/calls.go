package engine

import (
	"github.com/google/uuid"

	"mentalfish/internal/deck"
	"mentalfish/internal/mfcrypto"
	"mentalfish/internal/secrets"
	"mentalfish/internal/state"
)

const cardsPerPlayer = 7

// ApplyMask applies player p's secret mask to the deck. An empty id
// allocates a fresh game holding the 52 canonical points; the returned id
// scopes the rest of the game. Masking the same layer twice is rejected, and
// drawing stays illegal until both players have masked.
func (s *Store) ApplyMask(id string, p state.Player, prov secrets.Provider) (string, error) {
	if !p.Valid() {
		return "", violationf("invalid player %d", p)
	}
	if prov == nil {
		return "", violationf("nil secret provider")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A fresh game is staged locally like any other mutation: it reaches
	// the store only after masking and provider registration both succeed.
	var g *state.Game
	if id == "" {
		id = uuid.NewString()
		points := deck.Canonical()
		enc := make([][]byte, len(points))
		for i, pt := range points {
			enc[i] = pt.Bytes()
		}
		g = state.NewGame(id, enc)
	} else {
		var ok bool
		g, ok = s.st.Games[id]
		if !ok {
			return "", violationf("unknown game %q", id)
		}
	}
	if g.Phase != state.PhaseSetup {
		return "", violationf("applyMask in phase %s", g.Phase)
	}
	if g.HasMask(p) {
		return "", violationf("player %d already masked", p)
	}

	staged, err := state.CloneGame(g)
	if err != nil {
		return "", arithmeticf("stage game: %v", err)
	}

	points := make([]mfcrypto.Point, len(staged.Deck))
	for i, b := range staged.Deck {
		pt, err := mfcrypto.PointFromBytesCanonical(b)
		if err != nil {
			return "", arithmeticf("deck position %d: %v", i, err)
		}
		points[i] = pt
	}
	masked, err := deck.Mask(points, prov.SecretKey(), prov.ShuffleSeed())
	if err != nil {
		return "", arithmeticf("mask: %v", err)
	}
	for i, pt := range masked {
		staged.Deck[i] = pt.Bytes()
	}
	staged.MaskApplied[p-1] = true

	if err := s.registerProviderLocked(id, p, prov); err != nil {
		return "", err
	}
	s.st.Games[id] = staged
	return id, nil
}

// drawOne runs the two-step reveal on the current top-of-deck point for
// player p: the opponent's mask layer comes off first (under the opponent's
// key, never p's), then p's own layer, then the reverse point lookup. The
// top-index cursor advances by exactly one; that is irreversible.
func (s *Store) drawOne(g *state.Game, p state.Player) (deck.Card, error) {
	if !g.HasMask(state.Player1) || !g.HasMask(state.Player2) {
		return 0, violationf("deck is not fully masked")
	}
	if g.TopIndex >= len(g.Deck) {
		return 0, violationf("deck exhausted")
	}

	oppProv, err := s.providerLocked(g.ID, p.Opponent())
	if err != nil {
		return 0, err
	}
	ownProv, err := s.providerLocked(g.ID, p)
	if err != nil {
		return 0, err
	}

	top, err := mfcrypto.PointFromBytesCanonical(g.Deck[g.TopIndex])
	if err != nil {
		return 0, arithmeticf("top point: %v", err)
	}
	partial, err := deck.Unmask(top, oppProv.SecretKey())
	if err != nil {
		return 0, arithmeticf("opponent partial decryption: %v", err)
	}
	clear, err := deck.Unmask(partial, ownProv.SecretKey())
	if err != nil {
		return 0, arithmeticf("drawer partial decryption: %v", err)
	}
	card, err := deck.PointToCard(clear)
	if err != nil {
		// Unreachable under honest masking; a miss means a defect.
		return 0, arithmeticf("reveal position %d: %v", g.TopIndex, err)
	}

	g.TopIndex++
	g.AddCards(p, card)
	return card, nil
}

// DealCards deals the opening hands: 14 alternating draws, 7 per player.
// Legal exactly once, after both masks are applied; transitions
// Setup -> TurnStart.
func (s *Store) DealCards(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.st.Games[id]
	if !ok {
		return violationf("unknown game %q", id)
	}
	if g.Phase != state.PhaseSetup {
		return violationf("dealCards in phase %s", g.Phase)
	}
	if !g.HasMask(state.Player1) || !g.HasMask(state.Player2) {
		return violationf("dealCards before both masks applied")
	}
	if g.CardsDealt {
		return violationf("cards already dealt")
	}

	staged, err := state.CloneGame(g)
	if err != nil {
		return arithmeticf("stage game: %v", err)
	}
	for i := 0; i < 2*cardsPerPlayer; i++ {
		to := state.Player1
		if i%2 == 1 {
			to = state.Player2
		}
		if _, err := s.drawOne(staged, to); err != nil {
			return err
		}
	}
	staged.CardsDealt = true
	staged.Phase = state.PhaseTurnStart
	staged.CurrentTurn = state.Player1

	s.st.Games[id] = staged
	return nil
}

// AskForCard starts an ask: TurnStart -> WaitForResponse. The caller must be
// the current player and must hold at least one card of the named rank.
func (s *Store) AskForCard(id string, caller state.Player, r deck.Rank) error {
	return s.withGame(id, func(g *state.Game) error {
		if g.Phase != state.PhaseTurnStart {
			return violationf("askForCard in phase %s", g.Phase)
		}
		if caller != g.CurrentTurn {
			return violationf("player %d asked out of turn", caller)
		}
		if !r.Valid() {
			return violationf("invalid rank %d", r)
		}
		if g.CountRank(caller, r) == 0 {
			return violationf("player %d does not hold rank %s", caller, r)
		}
		g.Ask = &state.PendingAsk{Asker: caller, Rank: r}
		g.Phase = state.PhaseWaitForResponse
		return nil
	})
}

// RespondResult reports how an ask resolved.
type RespondResult struct {
	// Transferred is the number of cards handed to the asker.
	Transferred int
	// GoFish is true when the responder had none and the asker must draw.
	GoFish bool
}

// RespondToAsk answers the pending ask. If the responder holds cards of the
// asked rank they all transfer to the asker and the asker keeps the turn
// (-> TurnStart). Otherwise the asker goes fishing (-> WaitForDraw), unless
// the deck is already exhausted, in which case the turn passes directly.
func (s *Store) RespondToAsk(id string, caller state.Player) (RespondResult, error) {
	var res RespondResult
	err := s.withGame(id, func(g *state.Game) error {
		if g.Phase != state.PhaseWaitForResponse {
			return violationf("respondToAsk in phase %s", g.Phase)
		}
		ask := g.Ask
		if caller != ask.Asker.Opponent() {
			return violationf("player %d is not the asked player", caller)
		}

		n := g.CountRank(caller, ask.Rank)
		if n > 0 {
			taken := g.TakeRank(caller, ask.Rank)
			g.AddCards(ask.Asker, taken...)
			g.Ask = nil
			g.Phase = state.PhaseTurnStart // turn retained by the asker
			res = RespondResult{Transferred: len(taken)}
			return nil
		}

		if g.DeckRemaining() == 0 {
			// Nothing to fish; the failed ask passes the turn.
			g.CurrentTurn = ask.Asker.Opponent()
			g.Ask = nil
			g.Phase = state.PhaseTurnStart
			res = RespondResult{GoFish: false}
			return nil
		}

		g.Phase = state.PhaseWaitForDraw
		res = RespondResult{GoFish: true}
		return nil
	})
	return res, err
}

// GoFish draws one card for the caller via the two-step reveal. In
// WaitForDraw the caller must be the asking player and the draw moves to
// WaitForDrawCheck. At TurnStart it serves the empty-hand rule: the current
// player, holding nothing, draws to be able to play and the phase stays put.
func (s *Store) GoFish(id string, caller state.Player) (deck.Card, error) {
	var drawn deck.Card
	err := s.withGame(id, func(g *state.Game) error {
		switch g.Phase {
		case state.PhaseWaitForDraw:
			ask := g.Ask
			if caller != ask.Asker {
				return violationf("player %d is not the asking player", caller)
			}
			c, err := s.drawOne(g, caller)
			if err != nil {
				return err
			}
			g.Draw = &state.PendingDraw{Asker: ask.Asker, Rank: ask.Rank, Drawn: c}
			g.Ask = nil
			g.Phase = state.PhaseWaitForDrawCheck
			drawn = c
			return nil

		case state.PhaseTurnStart:
			if caller != g.CurrentTurn {
				return violationf("player %d drew out of turn", caller)
			}
			if len(g.Hand(caller)) != 0 {
				return violationf("player %d must ask, not draw", caller)
			}
			c, err := s.drawOne(g, caller)
			if err != nil {
				return err
			}
			drawn = c
			return nil

		default:
			return violationf("goFish in phase %s", g.Phase)
		}
	})
	return drawn, err
}

// AfterGoFish closes out a draw: the asking player reports whether the drawn
// card matched the asked rank. A false report is rejected against the
// recorded draw. On a match the turn is retained; otherwise it passes.
// WaitForDrawCheck -> TurnStart either way.
func (s *Store) AfterGoFish(id string, caller state.Player, reportMatch bool) error {
	return s.withGame(id, func(g *state.Game) error {
		if g.Phase != state.PhaseWaitForDrawCheck {
			return violationf("afterGoFish in phase %s", g.Phase)
		}
		draw := g.Draw
		if caller != draw.Asker {
			return violationf("player %d is not the asking player", caller)
		}
		matched := draw.Drawn.Rank() == draw.Rank
		if reportMatch != matched {
			return violationf("draw report does not match the drawn card")
		}
		if !matched {
			g.CurrentTurn = draw.Asker.Opponent()
		}
		g.Draw = nil
		g.Phase = state.PhaseTurnStart
		return nil
	})
}

// SwitchTurn passes the turn without playing. Legal only for a current
// player who holds nothing and has nothing left to draw.
func (s *Store) SwitchTurn(id string, caller state.Player) error {
	return s.withGame(id, func(g *state.Game) error {
		if g.Phase != state.PhaseTurnStart {
			return violationf("switchTurn in phase %s", g.Phase)
		}
		if caller != g.CurrentTurn {
			return violationf("player %d switched out of turn", caller)
		}
		if len(g.Hand(caller)) != 0 {
			return violationf("player %d must play, not pass", caller)
		}
		if g.DeckRemaining() != 0 {
			return violationf("player %d must draw, not pass", caller)
		}
		g.CurrentTurn = caller.Opponent()
		return nil
	})
}

// CheckAndScoreBook scores every rank of which the player holds all four
// cards: the four cards leave the hand, the player's score increments, and
// the rank can never be scored again for anyone.
func (s *Store) CheckAndScoreBook(id string, p state.Player) ([]deck.Rank, error) {
	if !p.Valid() {
		return nil, violationf("invalid player %d", p)
	}
	var scored []deck.Rank
	err := s.withGame(id, func(g *state.Game) error {
		if g.Phase == state.PhaseSetup || g.Phase == state.PhaseGameOver {
			return violationf("checkAndScoreBook in phase %s", g.Phase)
		}
		for r := deck.Rank(0); r < deck.NumRanks; r++ {
			if g.BookedBy[r] != state.NoPlayer {
				continue
			}
			if g.CountRank(p, r) != 4 {
				continue
			}
			g.TakeRank(p, r)
			g.BookedBy[r] = p
			g.Scores[p-1]++
			scored = append(scored, r)
		}
		return nil
	})
	return scored, err
}

// CheckAndEndGame freezes the game into GameOver when all 13 books are
// scored, or the deck is exhausted and a hand is empty. Returns whether the
// game ended; a running game is a no-op, not an error.
func (s *Store) CheckAndEndGame(id string) (bool, error) {
	over := false
	err := s.withGame(id, func(g *state.Game) error {
		if g.Phase != state.PhaseTurnStart {
			return violationf("checkAndEndGame in phase %s", g.Phase)
		}
		handEmpty := len(g.Hand(state.Player1)) == 0 || len(g.Hand(state.Player2)) == 0
		if g.TotalBooks() == deck.NumRanks || (g.DeckRemaining() == 0 && handEmpty) {
			g.Phase = state.PhaseGameOver
			over = true
		}
		return nil
	})
	return over, err
}
