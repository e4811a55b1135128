package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/keylock"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/storage"
)

// Outcome describes what a rating run did
type Outcome struct {
	Skipped    bool
	Reason     string
	Snapshots  int
	Matches    int
	NewRatings map[string]int
	// Replayed is set when a match arrived behind one already rated and
	// the mode's ladder was rebuilt in play order instead.
	Replayed bool
}

func skipped(reason string) Outcome {
	return Outcome{Skipped: true, Reason: reason}
}

// Skip reasons
const (
	ReasonAlreadyRated = "already_rated"
	ReasonMatchVoid    = "match_void"
	ReasonMatchMissing = "match_not_found"
	ReasonNoPlayers    = "no_players"
	ReasonMissingSide  = "missing_side"
)

// Engine writes rating snapshots for matches. Work on one league and mode
// is serialized.
type Engine struct {
	store  *storage.Store
	params Params
	locks  *keylock.Locker
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a rating engine
func NewEngine(store *storage.Store, params Params, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		params: params.withDefaults(),
		locks:  keylock.New(),
		logger: logger,
		now:    storage.Now,
	}
}

// Params returns the constants in use.
func (e *Engine) Params() Params { return e.params }

func lockKey(leagueID string, mode domain.Mode) string {
	return leagueID + "/" + string(mode)
}

// ProcessMatch rates one match. Repeated calls for the same match are
// no-ops, as are void matches and matches that cannot be rated.
func (e *Engine) ProcessMatch(ctx context.Context, matchID string) (Outcome, error) {
	logger := logging.FromContext(ctx, e.logger)

	m, err := e.store.GetMatch(ctx, matchID)
	if errors.Is(err, domain.ErrNotFound) {
		return skipped(ReasonMatchMissing), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("loading match: %w", err)
	}
	if m.Status == domain.MatchVoid {
		return skipped(ReasonMatchVoid), nil
	}
	switch Check(m) {
	case ErrNoPlayers:
		return skipped(ReasonNoPlayers), nil
	case ErrMissingSide:
		return skipped(ReasonMissingSide), nil
	}

	// The lock keeps this process's jobs from queueing on the database;
	// the ledger transaction is what serializes writers across processes.
	unlock := e.locks.Lock(lockKey(m.LeagueID, m.Mode))
	defer unlock()

	var out Outcome
	err = e.store.UpdateRatings(ctx, func(l *storage.RatingLedger) error {
		done, err := l.Rated(m.ID, m.Mode)
		if err != nil {
			return fmt.Errorf("checking snapshots: %w", err)
		}
		if done {
			out = skipped(ReasonAlreadyRated)
			return nil
		}

		later, err := l.RatedAfter(m)
		if err != nil {
			return fmt.Errorf("checking ledger order: %w", err)
		}
		if later {
			out, err = e.replay(ctx, l, m.LeagueID, m.Mode)
			out.Replayed = true
			return err
		}

		ids := make([]string, len(m.Players))
		for i, p := range m.Players {
			ids[i] = p.PlayerID
		}
		current, err := l.Latest(m.LeagueID, m.Mode, ids)
		if err != nil {
			return fmt.Errorf("loading ratings: %w", err)
		}

		ladder := NewLadder(e.params)
		ladder.Seed(current)
		changes, err := ladder.Apply(m)
		if err != nil {
			return err
		}

		n, err := l.Append(e.snapshots(m, changes))
		if err != nil {
			return fmt.Errorf("writing snapshots: %w", err)
		}
		out = Outcome{Snapshots: n, Matches: 1, NewRatings: make(map[string]int, len(changes))}
		for _, c := range changes {
			out.NewRatings[c.PlayerID] = c.Rating
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	switch {
	case out.Skipped:
	case out.Replayed:
		logging.Info(logger, "match rated out of play order, ladder replayed", logging.FieldMatchID, m.ID,
			logging.FieldLeagueID, m.LeagueID, logging.FieldMode, m.Mode, "matches", out.Matches)
	default:
		logging.Info(logger, "match rated", logging.FieldMatchID, m.ID, logging.FieldLeagueID, m.LeagueID,
			logging.FieldMode, m.Mode, logging.FieldCount, out.Snapshots)
	}
	return out, nil
}

func (e *Engine) snapshots(m *domain.Match, changes []Change) []domain.RatingSnapshot {
	now := e.now()
	snaps := make([]domain.RatingSnapshot, len(changes))
	for i, c := range changes {
		snaps[i] = domain.RatingSnapshot{
			LeagueID:   m.LeagueID,
			SeasonID:   m.SeasonID,
			PlayerID:   c.PlayerID,
			Mode:       m.Mode,
			MatchID:    m.ID,
			Rating:     c.Rating,
			Previous:   c.Previous,
			ComputedAt: now,
		}
	}
	return snaps
}

// Recompute rebuilds every mode's ladder for a league from a clean slate,
// replaying valid matches in play order.
func (e *Engine) Recompute(ctx context.Context, leagueID string) (Outcome, error) {
	total := Outcome{}
	for _, mode := range []domain.Mode{domain.Mode1v1, domain.Mode2v2, domain.Mode2v1} {
		out, err := e.RecomputeMode(ctx, leagueID, mode)
		if err != nil {
			return total, err
		}
		total.Matches += out.Matches
		total.Snapshots += out.Snapshots
	}
	return total, nil
}

// RecomputeMode rebuilds one mode's ladder. Incremental jobs for the same
// league and mode wait until the replay is written.
func (e *Engine) RecomputeMode(ctx context.Context, leagueID string, mode domain.Mode) (Outcome, error) {
	logger := logging.FromContext(ctx, e.logger)

	unlock := e.locks.Lock(lockKey(leagueID, mode))
	defer unlock()

	var out Outcome
	err := e.store.UpdateRatings(ctx, func(l *storage.RatingLedger) error {
		var err error
		out, err = e.replay(ctx, l, leagueID, mode)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	logging.Info(logger, "ratings rebuilt", logging.FieldLeagueID, leagueID, logging.FieldMode, mode,
		"matches", out.Matches, logging.FieldCount, out.Snapshots)
	return out, nil
}

// replay rates every valid match of a league mode in play order from a clean
// slate and swaps the result in for the current ledger
func (e *Engine) replay(ctx context.Context, l *storage.RatingLedger, leagueID string, mode domain.Mode) (Outcome, error) {
	logger := logging.FromContext(ctx, e.logger)

	matches, err := l.Matches(leagueID, mode)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading matches: %w", err)
	}

	ladder := NewLadder(e.params)
	var snaps []domain.RatingSnapshot
	out := Outcome{}
	for i := range matches {
		m := &matches[i]
		changes, err := ladder.Apply(m)
		if err != nil {
			logging.Skipped(logger, "match not rated during replay", err.Error(), logging.FieldMatchID, m.ID)
			continue
		}
		snaps = append(snaps, e.snapshots(m, changes)...)
		out.Matches++
	}

	if err := l.Replace(leagueID, mode, snaps); err != nil {
		return Outcome{}, fmt.Errorf("replacing ratings: %w", err)
	}
	out.Snapshots = len(snaps)
	return out, nil
}

// CurrentRatings returns the latest rating per player, best first.
func (e *Engine) CurrentRatings(ctx context.Context, leagueID string, mode domain.Mode) ([]domain.PlayerRating, error) {
	return e.store.CurrentRatings(ctx, leagueID, mode)
}

// Predict returns the expected outcome of a pairing from current ratings.
func (e *Engine) Predict(ctx context.Context, leagueID string, mode domain.Mode, sideA, sideB []string) (Prediction, error) {
	if len(sideA) == 0 || len(sideB) == 0 {
		return Prediction{}, domain.NewValidationError("players", "both sides need at least one player")
	}
	current, err := e.store.LatestRatings(ctx, leagueID, mode, append(append([]string{}, sideA...), sideB...))
	if err != nil {
		return Prediction{}, err
	}
	ladder := NewLadder(e.params)
	ladder.Seed(current)
	return Predict(ladder.SideAverage(sideA), ladder.SideAverage(sideB)), nil
}
