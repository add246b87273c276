package trading

import (
	"errors"
	"testing"
	"time"

	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

func activePosition(id string, opened time.Time) types.Position {
	return types.Position{
		ID:           id,
		Wallet:       "W",
		TokenAddress: "T",
		EntryPrice:   1,
		OpenTime:     opened,
		Status:       types.StatusActive,
	}
}

func TestStoreInsertRejectsDuplicates(t *testing.T) {
	s := NewStore()
	now := time.Now()

	if err := s.Insert(activePosition("a", now)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(activePosition("a", now)); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := s.Insert(types.Position{ID: "b"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for non-active position, got %v", err)
	}
}

func TestStoreCommitRequiresClaim(t *testing.T) {
	s := NewStore()
	p := activePosition("a", time.Now())
	if err := s.Insert(p); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	closed := p
	closed.Status = types.StatusClosed
	if err := s.Commit(closed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Commit without claim: expected ErrNotFound, got %v", err)
	}

	if _, err := s.Claim("a"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := s.Claim("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Claim: expected ErrNotFound, got %v", err)
	}
	if got := s.Active(""); len(got) != 1 {
		t.Errorf("claimed position must stay listed, got %d", len(got))
	}
	if err := s.Commit(closed); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(s.Active("")) != 0 || len(s.History("")) != 1 {
		t.Errorf("position not moved to history")
	}

	// закрытый id не может быть открыт снова
	if err := s.Insert(p); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("reinsert of archived id: expected ErrDuplicateKey, got %v", err)
	}
}

func TestStoreObservePrice(t *testing.T) {
	s := NewStore()
	if err := s.Insert(activePosition("a", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	prev, err := s.ObservePrice("a", 1.2)
	if err != nil || prev != 1 {
		t.Fatalf("first observation: prev=%v err=%v, want entry price", prev, err)
	}
	prev, _ = s.ObservePrice("a", 0.9)
	if prev != 1.2 {
		t.Errorf("second observation: prev=%v, want 1.2", prev)
	}
	if _, err := s.ObservePrice("missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreActiveOrder(t *testing.T) {
	s := NewStore()
	base := time.Now()
	for i, id := range []string{"c", "a", "b"} {
		if err := s.Insert(activePosition(id, base.Add(time.Duration(3-i)*time.Second))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	got := s.Active("W")
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("Active order = %v, want %v", []string{got[0].ID, got[1].ID, got[2].ID}, want)
		}
	}
	if len(s.Active("other")) != 0 {
		t.Errorf("wallet filter should exclude everything")
	}
}
