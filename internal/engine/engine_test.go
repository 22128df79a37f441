package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"mentalfish/internal/deck"
	"mentalfish/internal/mfcrypto"
	"mentalfish/internal/secrets"
	"mentalfish/internal/state"
)

func testProvider(t *testing.T, material string) secrets.Provider {
	t.Helper()
	p, err := secrets.Derive([]byte(material))
	if err != nil {
		t.Fatalf("derive provider: %v", err)
	}
	return p
}

// newMaskedGame creates a game with both masks applied, still in Setup.
func newMaskedGame(t *testing.T) (*Store, string) {
	t.Helper()
	s := NewStore()
	id, err := s.ApplyMask("", state.Player1, testProvider(t, "alice"))
	if err != nil {
		t.Fatalf("player 1 mask: %v", err)
	}
	if _, err := s.ApplyMask(id, state.Player2, testProvider(t, "bob")); err != nil {
		t.Fatalf("player 2 mask: %v", err)
	}
	return s, id
}

// newDealtGame creates a game dealt to TurnStart.
func newDealtGame(t *testing.T) (*Store, string) {
	t.Helper()
	s, id := newMaskedGame(t)
	if err := s.DealCards(id); err != nil {
		t.Fatalf("deal: %v", err)
	}
	return s, id
}

func mustViolation(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected protocol violation, got nil")
	}
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func gameSnapshot(t *testing.T, s *Store, id string) []byte {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(s.st.Games[id])
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return b
}

func mustUnchanged(t *testing.T, s *Store, id string, before []byte) {
	t.Helper()
	after := gameSnapshot(t, s, id)
	if string(before) != string(after) {
		t.Fatalf("state changed on an aborted call:\nbefore=%s\nafter=%s", before, after)
	}
}

// setHand force-assigns a hand, bypassing the protocol, to rig scenarios.
func setHand(t *testing.T, s *Store, id string, p state.Player, cards ...deck.Card) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.st.Games[id]
	if g == nil {
		t.Fatalf("unknown game")
	}
	if cards == nil {
		cards = []deck.Card{}
	}
	g.SetHand(p, cards)
}

func phaseOf(t *testing.T, s *Store, id string) state.Phase {
	t.Helper()
	ph, err := s.GetGamePhase(id)
	if err != nil {
		t.Fatalf("phase: %v", err)
	}
	return ph
}

func turnOf(t *testing.T, s *Store, id string) state.Player {
	t.Helper()
	turn, err := s.GetCurrentTurn(id)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	return turn
}

// ---- Scenario A: masking ----

func TestApplyMask_ThirdAttemptAborts(t *testing.T) {
	s, id := newMaskedGame(t)

	before := gameSnapshot(t, s, id)
	_, err := s.ApplyMask(id, state.Player1, testProvider(t, "alice2"))
	mustViolation(t, err)
	_, err = s.ApplyMask(id, state.Player2, testProvider(t, "bob2"))
	mustViolation(t, err)
	mustUnchanged(t, s, id, before)
}

func TestApplyMask_CreatesGameAndGatesDrawing(t *testing.T) {
	s := NewStore()

	id, err := s.ApplyMask("", state.Player1, testProvider(t, "alice"))
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	if id == "" || !s.DoesGameExist(id) {
		t.Fatalf("expected a fresh game id")
	}
	if ok, _ := s.HasMaskApplied(id, state.Player1); !ok {
		t.Fatalf("player 1 mask not recorded")
	}
	if ok, _ := s.HasMaskApplied(id, state.Player2); ok {
		t.Fatalf("player 2 mask should not be recorded")
	}

	// Drawing is illegal until both masks are applied.
	mustViolation(t, s.DealCards(id))
}

func TestApplyMask_UnknownGame(t *testing.T) {
	s := NewStore()
	_, err := s.ApplyMask("no-such-game", state.Player1, testProvider(t, "x"))
	mustViolation(t, err)
}

// zeroKeyProvider passes the nil check but makes masking itself fail.
type zeroKeyProvider struct{}

func (zeroKeyProvider) SecretKey() mfcrypto.Scalar { return mfcrypto.ScalarZero() }
func (zeroKeyProvider) ShuffleSeed() [32]byte      { return [32]byte{} }

func TestApplyMask_FailedMaskCommitsNothing(t *testing.T) {
	s := NewStore()

	// A failed mask on the create path must not leave the fresh game behind.
	if _, err := s.ApplyMask("", state.Player1, zeroKeyProvider{}); err == nil {
		t.Fatalf("expected zero-key mask to fail")
	}
	s.mu.Lock()
	leaked := len(s.st.Games)
	s.mu.Unlock()
	if leaked != 0 {
		t.Fatalf("aborted create left %d game(s) in the store", leaked)
	}

	// Against an existing game it aborts with zero mutation.
	id, err := s.ApplyMask("", state.Player1, testProvider(t, "alice"))
	if err != nil {
		t.Fatalf("player 1 mask: %v", err)
	}
	before := gameSnapshot(t, s, id)
	if _, err := s.ApplyMask(id, state.Player2, zeroKeyProvider{}); err == nil {
		t.Fatalf("expected zero-key mask to fail")
	}
	mustUnchanged(t, s, id, before)
}

// ---- Scenario B: dealing ----

func TestDealCards_SevenEachDisjoint(t *testing.T) {
	s, id := newDealtGame(t)

	top, err := s.GetTopCardIndex(id)
	if err != nil {
		t.Fatalf("top index: %v", err)
	}
	if top != 14 {
		t.Fatalf("top index = %d, want 14", top)
	}
	sizes, err := s.GetHandSizes(id)
	if err != nil {
		t.Fatalf("hand sizes: %v", err)
	}
	if sizes != [2]int{7, 7} {
		t.Fatalf("hand sizes = %v, want [7 7]", sizes)
	}
	remaining, err := s.GetDeckSize(id)
	if err != nil {
		t.Fatalf("deck size: %v", err)
	}
	if remaining != 38 {
		t.Fatalf("deck remaining = %d, want 38", remaining)
	}

	// Hands are disjoint.
	for c := deck.Card(0); c < deck.NumCards; c++ {
		h1, _ := s.DoesPlayerHaveSpecificCard(id, state.Player1, c)
		h2, _ := s.DoesPlayerHaveSpecificCard(id, state.Player2, c)
		if h1 && h2 {
			t.Fatalf("card %v held by both players", c)
		}
	}

	if phaseOf(t, s, id) != state.PhaseTurnStart {
		t.Fatalf("expected TurnStart after deal")
	}
	if dealt, _ := s.GetCardsDealt(id); !dealt {
		t.Fatalf("cardsDealt not set")
	}

	// Dealing twice must abort.
	mustViolation(t, s.DealCards(id))
}

// ---- Scenario C: successful ask ----

func TestAsk_TransferKeepsTurn(t *testing.T) {
	s, id := newDealtGame(t)

	kings := deck.Card(12).Rank()
	setHand(t, s, id, state.Player1, deck.Card(12), deck.Card(0), deck.Card(1))
	setHand(t, s, id, state.Player2, deck.Card(25), deck.Card(38), deck.Card(2))

	if err := s.AskForCard(id, state.Player1, kings); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if phaseOf(t, s, id) != state.PhaseWaitForResponse {
		t.Fatalf("expected WaitForResponse")
	}
	if r, _ := s.GetLastAskedRank(id); r != kings {
		t.Fatalf("lastAskedRank = %v, want kings", r)
	}
	if p, _ := s.GetLastAskingPlayer(id); p != state.Player1 {
		t.Fatalf("lastAskingPlayer = %v, want player 1", p)
	}

	res, err := s.RespondToAsk(id, state.Player2)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if res.Transferred != 2 || res.GoFish {
		t.Fatalf("respond = %+v, want 2 transferred", res)
	}

	if phaseOf(t, s, id) != state.PhaseTurnStart {
		t.Fatalf("expected TurnStart after transfer")
	}
	if turnOf(t, s, id) != state.Player1 {
		t.Fatalf("asker should retain the turn")
	}
	sizes, _ := s.GetHandSizes(id)
	if sizes != [2]int{5, 1} {
		t.Fatalf("hand sizes = %v, want [5 1]", sizes)
	}
	if has, _ := s.DoesPlayerHaveCard(id, state.Player2, kings); has {
		t.Fatalf("responder should have no kings left")
	}

	// Pending ask cleared exactly on return to TurnStart.
	if r, _ := s.GetLastAskedRank(id); r != deck.NoRank {
		t.Fatalf("lastAskedRank not reset: %v", r)
	}
	if p, _ := s.GetLastAskingPlayer(id); p != state.NoPlayer {
		t.Fatalf("lastAskingPlayer not reset: %v", p)
	}
}

func TestAsk_UnheldRankAborts(t *testing.T) {
	s, id := newDealtGame(t)
	setHand(t, s, id, state.Player1, deck.Card(0))

	before := gameSnapshot(t, s, id)
	mustViolation(t, s.AskForCard(id, state.Player1, deck.Card(12).Rank()))
	mustUnchanged(t, s, id, before)
}

// ---- Scenario D: go fish ----

func TestAsk_GoFishDrawAndReport(t *testing.T) {
	s, id := newDealtGame(t)

	aces := deck.Card(0).Rank()
	setHand(t, s, id, state.Player1, deck.Card(0))
	setHand(t, s, id, state.Player2, deck.Card(14)) // a two: no aces

	if err := s.AskForCard(id, state.Player1, aces); err != nil {
		t.Fatalf("ask: %v", err)
	}
	res, err := s.RespondToAsk(id, state.Player2)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !res.GoFish || res.Transferred != 0 {
		t.Fatalf("respond = %+v, want go fish", res)
	}
	if phaseOf(t, s, id) != state.PhaseWaitForDraw {
		t.Fatalf("expected WaitForDraw")
	}

	// Only the asking player may fish.
	mustViolation(t, func() error { _, err := s.GoFish(id, state.Player2); return err }())

	topBefore, _ := s.GetTopCardIndex(id)
	drawn, err := s.GoFish(id, state.Player1)
	if err != nil {
		t.Fatalf("go fish: %v", err)
	}
	if phaseOf(t, s, id) != state.PhaseWaitForDrawCheck {
		t.Fatalf("expected WaitForDrawCheck")
	}
	topAfter, _ := s.GetTopCardIndex(id)
	if topAfter != topBefore+1 {
		t.Fatalf("top index advanced by %d, want 1", topAfter-topBefore)
	}
	if has, _ := s.DoesPlayerHaveSpecificCard(id, state.Player1, drawn); !has {
		t.Fatalf("drawn card not in asker's hand")
	}

	matched := drawn.Rank() == aces

	// A false report is rejected.
	before := gameSnapshot(t, s, id)
	mustViolation(t, s.AfterGoFish(id, state.Player1, !matched))
	mustUnchanged(t, s, id, before)

	if err := s.AfterGoFish(id, state.Player1, matched); err != nil {
		t.Fatalf("after go fish: %v", err)
	}
	if phaseOf(t, s, id) != state.PhaseTurnStart {
		t.Fatalf("expected TurnStart")
	}
	wantTurn := state.Player1
	if !matched {
		wantTurn = state.Player2
	}
	if turnOf(t, s, id) != wantTurn {
		t.Fatalf("turn = %v, want %v (matched=%v)", turnOf(t, s, id), wantTurn, matched)
	}
}

func TestRespond_EmptyDeckPassesTurnDirectly(t *testing.T) {
	s, id := newDealtGame(t)

	setHand(t, s, id, state.Player1, deck.Card(0))
	setHand(t, s, id, state.Player2, deck.Card(14))
	s.mu.Lock()
	s.st.Games[id].TopIndex = len(s.st.Games[id].Deck)
	s.mu.Unlock()

	if err := s.AskForCard(id, state.Player1, deck.Card(0).Rank()); err != nil {
		t.Fatalf("ask: %v", err)
	}
	res, err := s.RespondToAsk(id, state.Player2)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if res.GoFish || res.Transferred != 0 {
		t.Fatalf("respond = %+v, want pass", res)
	}
	if phaseOf(t, s, id) != state.PhaseTurnStart {
		t.Fatalf("expected TurnStart")
	}
	if turnOf(t, s, id) != state.Player2 {
		t.Fatalf("turn should pass when there is nothing to fish")
	}
}

// ---- Books ----

func TestCheckAndScoreBook(t *testing.T) {
	s, id := newDealtGame(t)

	aces := deck.Card(0).Rank()
	setHand(t, s, id, state.Player1,
		deck.Card(0), deck.Card(13), deck.Card(26), deck.Card(39), deck.Card(5))

	scored, err := s.CheckAndScoreBook(id, state.Player1)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(scored) != 1 || scored[0] != aces {
		t.Fatalf("scored = %v, want [aces]", scored)
	}
	sizes, _ := s.GetHandSizes(id)
	if sizes[0] != 1 {
		t.Fatalf("book should remove exactly 4 cards; hand size %d", sizes[0])
	}
	scores, _ := s.GetScores(id)
	if scores != [2]uint8{1, 0} {
		t.Fatalf("scores = %v, want [1 0]", scores)
	}

	// The same rank can never be scored again, for either player.
	setHand(t, s, id, state.Player2,
		deck.Card(0), deck.Card(13), deck.Card(26), deck.Card(39))
	scored, err = s.CheckAndScoreBook(id, state.Player2)
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if len(scored) != 0 {
		t.Fatalf("rank scored twice: %v", scored)
	}
	scores, _ = s.GetScores(id)
	if scores != [2]uint8{1, 0} {
		t.Fatalf("scores changed on blocked rescore: %v", scores)
	}
}

// ---- Empty-hand handling ----

func TestEmptyHand_DrawsWhenDeckNonEmpty(t *testing.T) {
	s, id := newDealtGame(t)
	setHand(t, s, id, state.Player1)

	// Asking with an empty hand is impossible (no held rank); drawing is the
	// legal move.
	mustViolation(t, s.AskForCard(id, state.Player1, deck.Rank(0)))

	if _, err := s.GoFish(id, state.Player1); err != nil {
		t.Fatalf("empty-hand draw: %v", err)
	}
	if phaseOf(t, s, id) != state.PhaseTurnStart {
		t.Fatalf("empty-hand draw should stay at TurnStart")
	}
	if turnOf(t, s, id) != state.Player1 {
		t.Fatalf("empty-hand draw should retain the turn")
	}
	sizes, _ := s.GetHandSizes(id)
	if sizes[0] != 1 {
		t.Fatalf("hand size = %d, want 1", sizes[0])
	}

	// With cards in hand, drawing at TurnStart is illegal again.
	mustViolation(t, func() error { _, err := s.GoFish(id, state.Player1); return err }())
}

func TestEmptyHand_PassesWhenDeckEmpty(t *testing.T) {
	s, id := newDealtGame(t)
	setHand(t, s, id, state.Player1)
	s.mu.Lock()
	s.st.Games[id].TopIndex = len(s.st.Games[id].Deck)
	s.mu.Unlock()

	// Nothing to draw: the move is to pass.
	mustViolation(t, func() error { _, err := s.GoFish(id, state.Player1); return err }())
	if err := s.SwitchTurn(id, state.Player1); err != nil {
		t.Fatalf("switch turn: %v", err)
	}
	if turnOf(t, s, id) != state.Player2 {
		t.Fatalf("turn should pass")
	}
}

// ---- Phase totality ----

// TestPhaseTotality drives every call against every reachable phase with
// wrong callers and wrong phases, asserting aborts leave the game untouched.
func TestPhaseTotality(t *testing.T) {
	type calls struct {
		name string
		run  func(s *Store, id string, caller state.Player) error
	}
	all := []calls{
		{"applyMask", func(s *Store, id string, caller state.Player) error {
			_, err := s.ApplyMask(id, caller, testProvider(t, "late"))
			return err
		}},
		{"dealCards", func(s *Store, id string, _ state.Player) error {
			return s.DealCards(id)
		}},
		{"askForCard", func(s *Store, id string, caller state.Player) error {
			return s.AskForCard(id, caller, deck.Rank(0))
		}},
		{"respondToAsk", func(s *Store, id string, caller state.Player) error {
			_, err := s.RespondToAsk(id, caller)
			return err
		}},
		{"goFish", func(s *Store, id string, caller state.Player) error {
			_, err := s.GoFish(id, caller)
			return err
		}},
		{"afterGoFish", func(s *Store, id string, caller state.Player) error {
			return s.AfterGoFish(id, caller, true)
		}},
		{"switchTurn", func(s *Store, id string, caller state.Player) error {
			return s.SwitchTurn(id, caller)
		}},
	}

	// For each reachable phase, which (call, caller) pairs are legal.
	type legal struct {
		call   string
		caller state.Player
	}

	cases := []struct {
		phase   state.Phase
		prepare func(t *testing.T) (*Store, string)
		allowed []legal
	}{
		{
			phase: state.PhaseSetup,
			prepare: func(t *testing.T) (*Store, string) {
				return newMaskedGame(t)
			},
			allowed: []legal{{"dealCards", state.NoPlayer}},
		},
		{
			phase: state.PhaseTurnStart,
			prepare: func(t *testing.T) (*Store, string) {
				s, id := newDealtGame(t)
				setHand(t, s, id, state.Player1, deck.Card(0))
				setHand(t, s, id, state.Player2, deck.Card(14))
				return s, id
			},
			allowed: []legal{{"askForCard", state.Player1}},
		},
		{
			phase: state.PhaseWaitForResponse,
			prepare: func(t *testing.T) (*Store, string) {
				s, id := newDealtGame(t)
				setHand(t, s, id, state.Player1, deck.Card(0))
				setHand(t, s, id, state.Player2, deck.Card(14))
				if err := s.AskForCard(id, state.Player1, deck.Card(0).Rank()); err != nil {
					t.Fatalf("ask: %v", err)
				}
				return s, id
			},
			allowed: []legal{{"respondToAsk", state.Player2}},
		},
		{
			phase: state.PhaseWaitForDraw,
			prepare: func(t *testing.T) (*Store, string) {
				s, id := newDealtGame(t)
				setHand(t, s, id, state.Player1, deck.Card(0))
				setHand(t, s, id, state.Player2, deck.Card(14))
				if err := s.AskForCard(id, state.Player1, deck.Card(0).Rank()); err != nil {
					t.Fatalf("ask: %v", err)
				}
				if _, err := s.RespondToAsk(id, state.Player2); err != nil {
					t.Fatalf("respond: %v", err)
				}
				return s, id
			},
			allowed: []legal{{"goFish", state.Player1}},
		},
		{
			phase: state.PhaseWaitForDrawCheck,
			prepare: func(t *testing.T) (*Store, string) {
				s, id := newDealtGame(t)
				setHand(t, s, id, state.Player1, deck.Card(0))
				setHand(t, s, id, state.Player2, deck.Card(14))
				if err := s.AskForCard(id, state.Player1, deck.Card(0).Rank()); err != nil {
					t.Fatalf("ask: %v", err)
				}
				if _, err := s.RespondToAsk(id, state.Player2); err != nil {
					t.Fatalf("respond: %v", err)
				}
				if _, err := s.GoFish(id, state.Player1); err != nil {
					t.Fatalf("go fish: %v", err)
				}
				return s, id
			},
			allowed: []legal{{"afterGoFish", state.Player1}},
		},
		{
			phase: state.PhaseGameOver,
			prepare: func(t *testing.T) (*Store, string) {
				s, id := newDealtGame(t)
				setHand(t, s, id, state.Player1)
				s.mu.Lock()
				s.st.Games[id].TopIndex = len(s.st.Games[id].Deck)
				s.mu.Unlock()
				over, err := s.CheckAndEndGame(id)
				if err != nil || !over {
					t.Fatalf("end game: over=%v err=%v", over, err)
				}
				return s, id
			},
			allowed: nil, // terminal
		},
	}

	for _, tc := range cases {
		t.Run(string(tc.phase), func(t *testing.T) {
			isAllowed := func(call string, caller state.Player) bool {
				for _, a := range tc.allowed {
					if a.call == call && (a.caller == state.NoPlayer || a.caller == caller) {
						return true
					}
				}
				return false
			}

			for _, c := range all {
				for _, caller := range []state.Player{state.Player1, state.Player2} {
					if isAllowed(c.name, caller) {
						continue
					}
					s, id := tc.prepare(t)
					if got := phaseOf(t, s, id); got != tc.phase {
						t.Fatalf("setup reached phase %s, want %s", got, tc.phase)
					}
					before := gameSnapshot(t, s, id)
					err := c.run(s, id, caller)
					if err == nil {
						t.Fatalf("%s by player %d in %s should abort", c.name, caller, tc.phase)
					}
					mustViolation(t, err)
					mustUnchanged(t, s, id, before)
				}
			}
		})
	}
}

// ---- Scenario E: play to exhaustion ----

// checkPartition asserts every card belongs to exactly one of the two hands,
// the undrawn deck, or a scored book.
func checkPartition(t *testing.T, s *Store, id string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.st.Games[id]

	inHands := map[deck.Card]int{}
	for _, c := range g.Hand(state.Player1) {
		inHands[c]++
	}
	for _, c := range g.Hand(state.Player2) {
		inHands[c]++
	}
	for c, n := range inHands {
		if n > 1 {
			t.Fatalf("card %v held %d times", c, n)
		}
		if g.BookedBy[c.Rank()] != state.NoPlayer {
			t.Fatalf("card %v held but its rank is booked", c)
		}
	}

	held := len(g.Hand(state.Player1)) + len(g.Hand(state.Player2))
	booked := 4 * g.TotalBooks()
	remaining := g.DeckRemaining()
	drawnUnheld := held + booked + remaining
	if drawnUnheld != deck.NumCards {
		t.Fatalf("partition broken: hands=%d books=%d deck=%d sum=%d",
			held, booked, remaining, drawnUnheld)
	}
}

func heldRank(t *testing.T, s *Store, id string, p state.Player) (deck.Rank, bool) {
	t.Helper()
	for r := deck.Rank(0); r < deck.NumRanks; r++ {
		has, err := s.DoesPlayerHaveCard(id, p, r)
		if err != nil {
			t.Fatalf("query rank: %v", err)
		}
		if has {
			return r, true
		}
	}
	return deck.NoRank, false
}

func TestFullGameToCompletion(t *testing.T) {
	s, id := newDealtGame(t)

	endChecks := 0
	for steps := 0; ; steps++ {
		if steps > 10000 {
			t.Fatalf("game did not terminate")
		}
		checkPartition(t, s, id)

		over, err := s.CheckAndEndGame(id)
		if err != nil {
			t.Fatalf("end check: %v", err)
		}
		if over {
			endChecks++
			break
		}

		cur := turnOf(t, s, id)
		opp := cur.Opponent()

		rank, hasAny := heldRank(t, s, id, cur)
		if !hasAny {
			remaining, _ := s.GetDeckSize(id)
			if remaining > 0 {
				if _, err := s.GoFish(id, cur); err != nil {
					t.Fatalf("empty-hand draw: %v", err)
				}
			} else {
				if err := s.SwitchTurn(id, cur); err != nil {
					t.Fatalf("empty-hand pass: %v", err)
				}
			}
			continue
		}

		if err := s.AskForCard(id, cur, rank); err != nil {
			t.Fatalf("ask %v: %v", rank, err)
		}
		res, err := s.RespondToAsk(id, opp)
		if err != nil {
			t.Fatalf("respond: %v", err)
		}
		if res.GoFish {
			drawn, err := s.GoFish(id, cur)
			if err != nil {
				t.Fatalf("go fish: %v", err)
			}
			if err := s.AfterGoFish(id, cur, drawn.Rank() == rank); err != nil {
				t.Fatalf("after go fish: %v", err)
			}
		}
		if _, err := s.CheckAndScoreBook(id, cur); err != nil {
			t.Fatalf("score books: %v", err)
		}
	}

	if phaseOf(t, s, id) != state.PhaseGameOver {
		t.Fatalf("expected GameOver")
	}
	if endChecks != 1 {
		t.Fatalf("end fired %d times, want 1", endChecks)
	}

	// GameOver is terminal.
	_, err := s.CheckAndEndGame(id)
	mustViolation(t, err)

	scores, _ := s.GetScores(id)
	s.mu.Lock()
	books := s.st.Games[id].TotalBooks()
	s.mu.Unlock()
	if books > deck.NumRanks {
		t.Fatalf("scored %d books", books)
	}
	if int(scores[0])+int(scores[1]) != books {
		t.Fatalf("scores %v disagree with %d books", scores, books)
	}
	checkPartition(t, s, id)
}

func TestStoreLedgerWrites(t *testing.T) {
	s := NewStore()

	s.SetHeight(7)
	if h := s.State().Height; h != 7 {
		t.Fatalf("height = %d, want 7", h)
	}

	if err := s.RegisterKey("alice", []byte{1, 2, 3}); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Re-registering the same key is idempotent.
	if err := s.RegisterKey("alice", []byte{1, 2, 3}); err != nil {
		t.Fatalf("re-register same key: %v", err)
	}
	// A different key for a bound signer is rejected.
	mustViolation(t, s.RegisterKey("alice", []byte{4, 5, 6}))
	mustViolation(t, s.RegisterKey("", []byte{1}))
	mustViolation(t, s.RegisterKey("bob", nil))
}

func TestGamesAreIsolated(t *testing.T) {
	s := NewStore()

	id1, err := s.ApplyMask("", state.Player1, testProvider(t, "a1"))
	if err != nil {
		t.Fatalf("game 1 mask: %v", err)
	}
	id2, err := s.ApplyMask("", state.Player1, testProvider(t, "a2"))
	if err != nil {
		t.Fatalf("game 2 mask: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("game ids collide")
	}

	if _, err := s.ApplyMask(id1, state.Player2, testProvider(t, "b1")); err != nil {
		t.Fatalf("game 1 second mask: %v", err)
	}
	if err := s.DealCards(id1); err != nil {
		t.Fatalf("game 1 deal: %v", err)
	}

	// Game 2 is untouched by game 1's progress.
	if ph := phaseOf(t, s, id2); ph != state.PhaseSetup {
		t.Fatalf("game 2 phase = %s, want setup", ph)
	}
	if top, _ := s.GetTopCardIndex(id2); top != 0 {
		t.Fatalf("game 2 top index = %d, want 0", top)
	}
}
