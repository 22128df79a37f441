package engine

import (
	"mentalfish/internal/deck"
	"mentalfish/internal/state"
)

// Read-only queries. These never mutate; hosts and clients use them to
// resynchronize local mirrors from authoritative possession.

func (s *Store) DoesGameExist(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.st.Games[id]
	return ok
}

func (s *Store) GetGamePhase(id string) (state.Phase, error) {
	var out state.Phase
	err := s.readGame(id, func(g *state.Game) error {
		out = g.Phase
		return nil
	})
	return out, err
}

func (s *Store) GetCurrentTurn(id string) (state.Player, error) {
	var out state.Player
	err := s.readGame(id, func(g *state.Game) error {
		out = g.CurrentTurn
		return nil
	})
	return out, err
}

func (s *Store) GetScores(id string) ([2]uint8, error) {
	var out [2]uint8
	err := s.readGame(id, func(g *state.Game) error {
		out = g.Scores
		return nil
	})
	return out, err
}

func (s *Store) GetHandSizes(id string) ([2]int, error) {
	var out [2]int
	err := s.readGame(id, func(g *state.Game) error {
		out[0] = len(g.Hand(state.Player1))
		out[1] = len(g.Hand(state.Player2))
		return nil
	})
	return out, err
}

func (s *Store) DoesPlayerHaveCard(id string, p state.Player, r deck.Rank) (bool, error) {
	if !p.Valid() {
		return false, violationf("invalid player %d", p)
	}
	var out bool
	err := s.readGame(id, func(g *state.Game) error {
		out = g.CountRank(p, r) > 0
		return nil
	})
	return out, err
}

func (s *Store) DoesPlayerHaveSpecificCard(id string, p state.Player, c deck.Card) (bool, error) {
	if !p.Valid() {
		return false, violationf("invalid player %d", p)
	}
	var out bool
	err := s.readGame(id, func(g *state.Game) error {
		out = g.HasSpecificCard(p, c)
		return nil
	})
	return out, err
}

// GetDeckSize is the count of undrawn positions.
func (s *Store) GetDeckSize(id string) (int, error) {
	var out int
	err := s.readGame(id, func(g *state.Game) error {
		out = g.DeckRemaining()
		return nil
	})
	return out, err
}

func (s *Store) GetTopCardIndex(id string) (int, error) {
	var out int
	err := s.readGame(id, func(g *state.Game) error {
		out = g.TopIndex
		return nil
	})
	return out, err
}

func (s *Store) HasMaskApplied(id string, p state.Player) (bool, error) {
	if !p.Valid() {
		return false, violationf("invalid player %d", p)
	}
	var out bool
	err := s.readGame(id, func(g *state.Game) error {
		out = g.HasMask(p)
		return nil
	})
	return out, err
}

func (s *Store) GetCardsDealt(id string) (bool, error) {
	var out bool
	err := s.readGame(id, func(g *state.Game) error {
		out = g.CardsDealt
		return nil
	})
	return out, err
}

// GetLastAskedRank returns the pending ask's rank, or deck.NoRank when no
// ask is in flight.
func (s *Store) GetLastAskedRank(id string) (deck.Rank, error) {
	out := deck.NoRank
	err := s.readGame(id, func(g *state.Game) error {
		switch {
		case g.Ask != nil:
			out = g.Ask.Rank
		case g.Draw != nil:
			out = g.Draw.Rank
		}
		return nil
	})
	return out, err
}

// GetLastAskingPlayer returns the pending ask's asker, or state.NoPlayer
// when no ask is in flight.
func (s *Store) GetLastAskingPlayer(id string) (state.Player, error) {
	out := state.NoPlayer
	err := s.readGame(id, func(g *state.Game) error {
		switch {
		case g.Ask != nil:
			out = g.Ask.Asker
		case g.Draw != nil:
			out = g.Draw.Asker
		}
		return nil
	})
	return out, err
}

// MaskedDeck returns the current masked point encodings, for host query
// surfaces. The slice is a copy.
func (s *Store) MaskedDeck(id string) ([][]byte, error) {
	var out [][]byte
	err := s.readGame(id, func(g *state.Game) error {
		out = make([][]byte, len(g.Deck))
		for i, b := range g.Deck {
			out[i] = append([]byte(nil), b...)
		}
		return nil
	})
	return out, err
}
