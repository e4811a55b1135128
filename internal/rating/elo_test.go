package rating

import (
	"math"
	"testing"

	"github.com/foospulse/foospulse/internal/domain"
)

func TestActualIsMarginSensitive(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name     string
		for_     int
		against  int
		expected float64
	}{
		{"shutout win", 10, 0, 1.0},
		{"close win", 10, 9, 0.55},
		{"draw", 5, 5, 0.5},
		{"close loss", 9, 10, 0.45},
		{"shutout loss", 0, 10, 0.0},
		{"clamped beyond margin", 14, -3, 1.0},
		{"clamped below", -3, 14, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Actual(tt.for_, tt.against); math.Abs(got-tt.expected) > 1e-9 {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestExpectedIsSymmetric(t *testing.T) {
	if got := Expected(1200, 1200); got != 0.5 {
		t.Fatalf("expected 0.5 for equal ratings, got %v", got)
	}
	a, b := Expected(1400, 1200), Expected(1200, 1400)
	if math.Abs(a+b-1) > 1e-9 {
		t.Fatalf("expectations should sum to 1, got %v + %v", a, b)
	}
	if a <= 0.5 {
		t.Fatalf("higher rated side should be favoured, got %v", a)
	}
}

func TestLadderShutoutOneVsOne(t *testing.T) {
	ladder := NewLadder(DefaultParams())
	m := &domain.Match{
		Mode:   domain.Mode1v1,
		ScoreA: 10,
		ScoreB: 0,
		Players: []domain.MatchPlayer{
			{PlayerID: "a", Side: domain.SideA, Role: domain.RoleAttack},
			{PlayerID: "b", Side: domain.SideB, Role: domain.RoleAttack},
		},
	}
	changes, err := ladder.Apply(m)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if changes[0].Rating != 1216 || changes[1].Rating != 1184 {
		t.Fatalf("expected 1216/1184, got %+v", changes)
	}
	if ladder.Rating("a") != 1216 || ladder.Rating("unknown") != 1200 {
		t.Fatal("ladder not updated")
	}
}

func TestLadderUsesSideAverages(t *testing.T) {
	ladder := NewLadder(DefaultParams())
	ladder.Seed(map[string]int{"a1": 1300, "a2": 1100, "b": 1200})
	m := &domain.Match{
		Mode:   domain.Mode2v1,
		ScoreA: 5,
		ScoreB: 5,
		Players: []domain.MatchPlayer{
			{PlayerID: "a1", Side: domain.SideA, Role: domain.RoleAttack},
			{PlayerID: "a2", Side: domain.SideA, Role: domain.RoleDefense},
			{PlayerID: "b", Side: domain.SideB, Role: domain.RoleAttack},
		},
	}
	changes, err := ladder.Apply(m)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// both sides average 1200 and drew, so nobody moves
	for _, c := range changes {
		if c.Rating != c.Previous {
			t.Fatalf("expected no movement, got %+v", c)
		}
	}
}

func TestLadderRejectsUnratableMatches(t *testing.T) {
	ladder := NewLadder(DefaultParams())
	if _, err := ladder.Apply(&domain.Match{}); err != ErrNoPlayers {
		t.Fatalf("expected ErrNoPlayers, got %v", err)
	}
	oneSided := &domain.Match{Players: []domain.MatchPlayer{{PlayerID: "a", Side: domain.SideA}}}
	if _, err := ladder.Apply(oneSided); err != ErrMissingSide {
		t.Fatalf("expected ErrMissingSide, got %v", err)
	}
}

func TestNewRatingRoundsHalfToEven(t *testing.T) {
	p := Params{K: 1, Base: 1200, MaxMargin: 10}
	if got := p.NewRating(1200, 1, 0.5); got != 1200 {
		t.Fatalf("expected 1200.5 to round to 1200, got %d", got)
	}
	if got := p.NewRating(1201, 1, 0.5); got != 1202 {
		t.Fatalf("expected 1201.5 to round to 1202, got %d", got)
	}
}
