package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/keylock"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/rating"
	"github.com/foospulse/foospulse/internal/storage"
)

// ReasonUnchanged marks a recompute skipped because the match set is the same
const ReasonUnchanged = "source_hash_unchanged"

// Outcome describes what a recompute did
type Outcome struct {
	Skipped    bool
	Reason     string
	SourceHash string
	Matches    int
	NewAwards  int
}

// AchievementsPayload is the stored achievements snapshot
type AchievementsPayload struct {
	Awards []domain.Achievement `json:"awards"`
}

// Engine recomputes league season snapshots
type Engine struct {
	store  *storage.Store
	params rating.Params
	locks  *keylock.Locker
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a stats engine. params drive the rating replay behind
// upset achievements.
func NewEngine(store *storage.Store, params rating.Params, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		params: params,
		locks:  keylock.New(),
		logger: logger,
		now:    storage.Now,
	}
}

// Recompute refreshes every stats kind for a league season unless the
// stored snapshots were built from the same inputs: the season's matches and
// the earlier league history its awards replay.
func (e *Engine) Recompute(ctx context.Context, leagueID, seasonID string) (Outcome, error) {
	logger := logging.FromContext(ctx, e.logger)

	unlock := e.locks.Lock(leagueID + "/" + seasonID)
	defer unlock()

	matches, err := e.store.ListValidMatches(ctx, leagueID, seasonID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading matches: %w", err)
	}
	history, err := e.store.ListAllLeagueMatches(ctx, leagueID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading league history: %w", err)
	}
	hash := SeasonSourceHash(matches, history)

	stored, ok, err := e.store.StatsSourceHash(ctx, leagueID, seasonID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading source hash: %w", err)
	}
	if ok && stored == hash {
		return Outcome{Skipped: true, Reason: ReasonUnchanged, SourceHash: hash, Matches: len(matches)}, nil
	}

	nicknames, err := e.store.PlayerNicknames(ctx, leagueID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading players: %w", err)
	}
	inScope := make(map[string]bool, len(matches))
	for _, m := range matches {
		inScope[m.ID] = true
	}

	awards := Achievements(leagueID, history, inScope, e.params)
	payloads := map[domain.StatsKind]any{
		domain.StatsLeaderboards: Leaderboards(matches, nicknames),
		domain.StatsSynergy:      ComputeSynergy(matches, nicknames),
		domain.StatsMatchups:     ComputeMatchups(matches, nicknames),
		domain.StatsAchievements: AchievementsPayload{Awards: awards},
	}

	now := e.now()
	snaps := make([]domain.StatsSnapshot, 0, len(domain.AllStatsKinds))
	for _, kind := range domain.AllStatsKinds {
		raw, err := json.Marshal(payloads[kind])
		if err != nil {
			return Outcome{}, fmt.Errorf("encoding %s: %w", kind, err)
		}
		snaps = append(snaps, domain.StatsSnapshot{
			LeagueID:   leagueID,
			SeasonID:   seasonID,
			Kind:       kind,
			SourceHash: hash,
			Payload:    raw,
			ComputedAt: now,
		})
	}

	newAwards, err := e.store.ReplaceStatsSnapshots(ctx, snaps, awards)
	if err != nil {
		return Outcome{}, fmt.Errorf("writing snapshots: %w", err)
	}

	logging.Info(logger, "stats recomputed", logging.FieldLeagueID, leagueID, logging.FieldSeasonID, seasonID,
		"matches", len(matches), "source_hash", hash, "new_achievements", newAwards)
	return Outcome{SourceHash: hash, Matches: len(matches), NewAwards: newAwards}, nil
}

// Snapshot returns the stored payload for one kind.
func (e *Engine) Snapshot(ctx context.Context, leagueID, seasonID string, kind domain.StatsKind) (*domain.StatsSnapshot, error) {
	if !kind.Valid() {
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown stats kind %q", kind))
	}
	return e.store.GetStatsSnapshot(ctx, leagueID, seasonID, kind)
}

// PlayerAchievements returns a player's awards in a league.
func (e *Engine) PlayerAchievements(ctx context.Context, playerID, leagueID string) ([]domain.Achievement, error) {
	return e.store.PlayerAchievements(ctx, playerID, leagueID)
}
