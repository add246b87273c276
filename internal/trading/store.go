// internal/trading/store.go
package trading

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

var (
	// ErrNotFound is returned when a position is not in the active set, or a
	// close for it is already in progress.
	ErrNotFound = errors.New("position not found")

	// ErrDuplicateKey is returned when inserting a position whose id is
	// already active or archived.
	ErrDuplicateKey = errors.New("duplicate position id")

	ErrInvalidInput = errors.New("invalid position")
)

// Store owns the active positions and the append-only trade history.
// Every mutation is a single critical section; readers get copies.
type Store struct {
	mu        sync.RWMutex
	active    map[string]*types.Position
	closing   map[string]struct{}
	lastPrice map[string]float64
	history   []types.Position
	archived  map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		active:    make(map[string]*types.Position),
		closing:   make(map[string]struct{}),
		lastPrice: make(map[string]float64),
		archived:  make(map[string]struct{}),
	}
}

// Insert adds a new active position.
func (s *Store) Insert(p types.Position) error {
	if p.ID == "" || p.Status != types.StatusActive {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[p.ID]; exists {
		return ErrDuplicateKey
	}
	if _, exists := s.archived[p.ID]; exists {
		return ErrDuplicateKey
	}
	pos := p
	s.active[p.ID] = &pos
	return nil
}

// Get returns a copy of an active position.
func (s *Store) Get(id string) (types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.active[id]
	if !ok {
		return types.Position{}, ErrNotFound
	}
	return *p, nil
}

// Claim reserves an active position for closing. Only one claim per id can
// be outstanding; a second claim gets ErrNotFound.
func (s *Store) Claim(id string) (types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.active[id]
	if !ok {
		return types.Position{}, ErrNotFound
	}
	if _, busy := s.closing[id]; busy {
		return types.Position{}, ErrNotFound
	}
	s.closing[id] = struct{}{}
	return *p, nil
}

// Release drops a claim after a failed close; the position stays active.
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.closing, id)
}

// Commit moves a claimed position to history in one step.
func (s *Store) Commit(closed types.Position) error {
	if closed.Status != types.StatusClosed {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[closed.ID]; !ok {
		return ErrNotFound
	}
	if _, claimed := s.closing[closed.ID]; !claimed {
		return ErrNotFound
	}

	delete(s.active, closed.ID)
	delete(s.closing, closed.ID)
	delete(s.lastPrice, closed.ID)
	s.archived[closed.ID] = struct{}{}
	s.history = append(s.history, closed)
	return nil
}

// ObservePrice records price as the latest observation for an active
// position and returns the previous one (the entry price on first call).
func (s *Store) ObservePrice(id string, price float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.active[id]
	if !ok {
		return 0, ErrNotFound
	}
	prev, seen := s.lastPrice[id]
	if !seen {
		prev = p.EntryPrice
	}
	s.lastPrice[id] = price
	return prev, nil
}

// Active returns active positions ordered by open time. An empty wallet
// matches every position.
func (s *Store) Active(wallet string) []types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Position, 0, len(s.active))
	for _, p := range s.active {
		if wallet == "" || p.Wallet == wallet {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b types.Position) int {
		if c := a.OpenTime.Compare(b.OpenTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// History returns closed positions in close order.
func (s *Store) History(wallet string) []types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Position, 0, len(s.history))
	for _, p := range s.history {
		if wallet == "" || p.Wallet == wallet {
			out = append(out, p)
		}
	}
	return out
}

// HasActive reports whether wallet already holds token.
func (s *Store) HasActive(wallet, tokenAddress string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.active {
		if p.Wallet == wallet && p.TokenAddress == tokenAddress {
			return true
		}
	}
	return false
}
