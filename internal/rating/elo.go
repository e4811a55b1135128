// Package rating keeps the per-mode Elo ladder of each league.
package rating

import (
	"errors"
	"math"

	"github.com/foospulse/foospulse/internal/domain"
)

var (
	ErrNoPlayers   = errors.New("match has no players")
	ErrMissingSide = errors.New("match is missing a side")
)

// Params are the Elo constants
type Params struct {
	K    float64
	Base int
	// MaxMargin is the goal difference that counts as a complete win
	MaxMargin int
}

// DefaultParams returns K=32, base 1200, margin 10.
func DefaultParams() Params {
	return Params{K: 32, Base: 1200, MaxMargin: 10}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.K <= 0 {
		p.K = d.K
	}
	if p.Base <= 0 {
		p.Base = d.Base
	}
	if p.MaxMargin <= 0 {
		p.MaxMargin = d.MaxMargin
	}
	return p
}

// Expected is the logistic win expectancy of a side rated avgSide against avgOpponent.
func Expected(avgSide, avgOpponent float64) float64 {
	return 1 / (1 + math.Pow(10, (avgOpponent-avgSide)/400))
}

// Actual maps a score line to [0, 1]: 0.5 plus half the goal difference
// over MaxMargin, clamped.
func (p Params) Actual(scoreFor, scoreAgainst int) float64 {
	actual := 0.5 + float64(scoreFor-scoreAgainst)/float64(p.MaxMargin)*0.5
	return math.Max(0, math.Min(1, actual))
}

// NewRating applies one Elo update. Halves round to even.
func (p Params) NewRating(old int, actual, expected float64) int {
	return int(math.RoundToEven(float64(old) + p.K*(actual-expected)))
}

// Average is the arithmetic mean of ratings.
func Average(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings))
}

// Prediction is the expected outcome of a pairing
type Prediction struct {
	AverageA float64 `json:"team_a_avg"`
	AverageB float64 `json:"team_b_avg"`
	WinProbA float64 `json:"team_a_win_probability"`
	WinProbB float64 `json:"team_b_win_probability"`
}

// Predict compares two side averages.
func Predict(avgA, avgB float64) Prediction {
	return Prediction{
		AverageA: avgA,
		AverageB: avgB,
		WinProbA: Expected(avgA, avgB),
		WinProbB: Expected(avgB, avgA),
	}
}

// Change is one player's rating movement in a match
type Change struct {
	PlayerID string
	Previous int
	Rating   int
}

// Ladder is an in-memory rating table for one league and mode. Matches
// must be applied in play order.
type Ladder struct {
	params  Params
	ratings map[string]int
}

// NewLadder starts a ladder with every player at the base rating.
func NewLadder(p Params) *Ladder {
	return &Ladder{params: p.withDefaults(), ratings: make(map[string]int)}
}

// Seed sets known ratings, e.g. the latest stored snapshots.
func (l *Ladder) Seed(ratings map[string]int) {
	for id, r := range ratings {
		l.ratings[id] = r
	}
}

// Rating returns a player's current rating.
func (l *Ladder) Rating(playerID string) int {
	if r, ok := l.ratings[playerID]; ok {
		return r
	}
	return l.params.Base
}

// SideAverage is the mean current rating of players.
func (l *Ladder) SideAverage(players []string) float64 {
	ratings := make([]int, len(players))
	for i, id := range players {
		ratings[i] = l.Rating(id)
	}
	return Average(ratings)
}

// Check reports why m cannot be rated, or nil.
func Check(m *domain.Match) error {
	if len(m.Players) == 0 {
		return ErrNoPlayers
	}
	if len(m.SidePlayers(domain.SideA)) == 0 || len(m.SidePlayers(domain.SideB)) == 0 {
		return ErrMissingSide
	}
	return nil
}

// Apply rates m against the current table, updates it, and returns each
// participant's change in roster order.
func (l *Ladder) Apply(m *domain.Match) ([]Change, error) {
	if err := Check(m); err != nil {
		return nil, err
	}

	avg := map[domain.Side]float64{
		domain.SideA: l.SideAverage(m.SidePlayers(domain.SideA)),
		domain.SideB: l.SideAverage(m.SidePlayers(domain.SideB)),
	}

	changes := make([]Change, 0, len(m.Players))
	for _, p := range m.Players {
		opp := p.Side.Opponent()
		expected := Expected(avg[p.Side], avg[opp])
		actual := l.params.Actual(m.Score(p.Side), m.Score(opp))
		old := l.Rating(p.PlayerID)
		changes = append(changes, Change{
			PlayerID: p.PlayerID,
			Previous: old,
			Rating:   l.params.NewRating(old, actual, expected),
		})
	}
	for _, c := range changes {
		l.ratings[c.PlayerID] = c.Rating
	}
	return changes, nil
}
