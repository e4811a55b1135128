package domain

import (
	"errors"
	"testing"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		ok       bool
	}{
		{StatusWaiting, StatusActive, true},
		{StatusWaiting, StatusAbandoned, true},
		{StatusWaiting, StatusPaused, false},
		{StatusWaiting, StatusCompleted, false},
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusCompleted, true},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusAbandoned, true},
		{StatusCompleted, StatusActive, false},
		{StatusAbandoned, StatusActive, false},
		{StatusActive, StatusWaiting, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.ok, got)
		}
	}
}

func TestEventDeltas(t *testing.T) {
	want := map[EventType]int{
		EventGoal:       1,
		EventGamellized: -1,
		EventLobbed:     -3,
		EventTimeout:    0,
		EventCustom:     0,
	}
	for typ, delta := range want {
		if got := typ.Delta(); got != delta {
			t.Errorf("%s: expected %d, got %d", typ, delta, got)
		}
	}
}

func TestModePlayerCount(t *testing.T) {
	if Mode1v1.PlayerCount() != 2 || Mode2v2.PlayerCount() != 4 || Mode2v1.PlayerCount() != 3 {
		t.Fatal("unexpected player counts")
	}
	if Mode("3v3").Valid() {
		t.Fatal("expected 3v3 to be invalid")
	}
}

func TestMatchResult(t *testing.T) {
	m := Match{ScoreA: 10, ScoreB: 7}
	if m.Result(SideA) != 1 || m.Result(SideB) != -1 {
		t.Fatal("expected A to win")
	}
	m.ScoreB = 10
	if m.Result(SideA) != 0 {
		t.Fatal("expected draw")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	verr := NewValidationError("players", "2v2 requires exactly 4 players")
	if !errors.Is(verr, ErrValidation) {
		t.Fatal("expected validation error to match ErrValidation")
	}
	if verr.Error() != "validation failed: players: 2v2 requires exactly 4 players" {
		t.Fatalf("unexpected message %q", verr.Error())
	}

	var err error = NewConflict(ReasonAlreadyFinalized, "session %s already finalized", "s1")
	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected conflict error to match ErrConflict")
	}
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.Reason != ReasonAlreadyFinalized {
		t.Fatalf("expected conflict reason, got %v", err)
	}

	var empty *ValidationError
	if empty.OrNil() != nil {
		t.Fatal("expected nil from empty validation error")
	}
}
