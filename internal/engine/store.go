package engine

import (
	"bytes"
	"sync"

	"mentalfish/internal/secrets"
	"mentalfish/internal/state"
)

// Store owns the authoritative per-game ledgers. Every call executes against
// a staged clone of the target game and commits only on success, so a failed
// call never leaves a partial mutation behind. Calls against one game are
// serialized; distinct games share no mutable state.
//
// Secret providers are registered alongside the game but never serialized
// with it: secret material is read-only for a game's lifetime and must not
// leave the host.
type Store struct {
	mu        sync.Mutex
	st        *state.State
	providers map[string]*[2]secrets.Provider
}

func NewStore() *Store {
	return NewStoreWith(state.NewState())
}

// NewStoreWith wraps an existing ledger (e.g. one loaded from disk by the
// host adapter). Games restored this way need their providers re-registered
// via RegisterProvider before any reveal can run.
func NewStoreWith(st *state.State) *Store {
	if st == nil {
		st = state.NewState()
	}
	return &Store{
		st:        st,
		providers: map[string]*[2]secrets.Provider{},
	}
}

// State exposes the underlying ledger for host adapters (hashing,
// persistence). Callers must not mutate it; SetHeight and RegisterKey cover
// the ledger fields a host writes.
func (s *Store) State() *state.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// SetHeight records the host's block height on the ledger.
func (s *Store) SetHeight(h int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Height = h
}

// RegisterKey binds a signer to a public key for tx authentication.
// Rebinding an already-registered signer to a different key is rejected.
func (s *Store) RegisterKey(signer string, pub []byte) error {
	if signer == "" {
		return violationf("empty signer")
	}
	if len(pub) == 0 {
		return violationf("empty pubKey")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.st.Keys[signer]; ok && !bytes.Equal(prev, pub) {
		return violationf("signer %q already registered with a different key", signer)
	}
	if s.st.Keys == nil {
		s.st.Keys = map[string][]byte{}
	}
	s.st.Keys[signer] = pub
	return nil
}

// RegisterProvider attaches a player's secret provider to a game. Re-binding
// a player whose provider is already set is rejected: rotating secrets
// mid-game would permanently desynchronize already-masked points.
func (s *Store) RegisterProvider(id string, p state.Player, prov secrets.Provider) error {
	if !p.Valid() {
		return violationf("invalid player %d", p)
	}
	if prov == nil {
		return violationf("nil secret provider")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerProviderLocked(id, p, prov)
}

func (s *Store) registerProviderLocked(id string, p state.Player, prov secrets.Provider) error {
	set := s.providers[id]
	if set == nil {
		set = &[2]secrets.Provider{}
		s.providers[id] = set
	}
	if set[p-1] != nil {
		return violationf("player %d provider already registered", p)
	}
	set[p-1] = prov
	return nil
}

func (s *Store) providerLocked(id string, p state.Player) (secrets.Provider, error) {
	set := s.providers[id]
	if set == nil || set[p-1] == nil {
		return nil, violationf("player %d has no registered provider", p)
	}
	return set[p-1], nil
}

// withGame stages one call: it clones the game, runs fn against the clone,
// and swaps the clone in only if fn succeeds.
func (s *Store) withGame(id string, fn func(*state.Game) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.st.Games[id]
	if !ok {
		return violationf("unknown game %q", id)
	}
	staged, err := state.CloneGame(g)
	if err != nil {
		return arithmeticf("stage game: %v", err)
	}
	if err := fn(staged); err != nil {
		return err
	}
	s.st.Games[id] = staged
	return nil
}

// readGame runs a read-only query against the live game.
func (s *Store) readGame(id string, fn func(*state.Game) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.st.Games[id]
	if !ok {
		return violationf("unknown game %q", id)
	}
	return fn(g)
}
