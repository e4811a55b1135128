package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/klauspost/compress/zstd"
)

// Stats payloads are stored zstd-compressed
var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// StatsSourceHash returns the hash shared by every stored kind for the pair.
// ok is false unless all kinds are present with one common hash.
func (s *Store) StatsSourceHash(ctx context.Context, leagueID, seasonID string) (hash string, ok bool, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, source_hash FROM stats_snapshots WHERE league_id = ? AND season_id = ?
	`, leagueID, seasonID)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	kinds := 0
	for rows.Next() {
		var kind, h string
		if err := rows.Scan(&kind, &h); err != nil {
			return "", false, err
		}
		if hash != "" && h != hash {
			return "", false, nil
		}
		hash = h
		kinds++
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}
	return hash, kinds == len(domain.AllStatsKinds), nil
}

// GetStatsSnapshot returns the stored payload for one kind
func (s *Store) GetStatsSnapshot(ctx context.Context, leagueID, seasonID string, kind domain.StatsKind) (*domain.StatsSnapshot, error) {
	snap := domain.StatsSnapshot{LeagueID: leagueID, SeasonID: seasonID, Kind: kind}
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT source_hash, payload, computed_at FROM stats_snapshots
		WHERE league_id = ? AND season_id = ? AND kind = ?
	`, leagueID, seasonID, kind).Scan(&snap.SourceHash, &compressed, &snap.ComputedAt)
	if err != nil {
		return nil, notFound(err, "stats snapshot")
	}
	payload, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing stats payload: %w", err)
	}
	snap.Payload = payload
	snap.ComputedAt = snap.ComputedAt.UTC()
	return &snap, nil
}

// ReplaceStatsSnapshots swaps every kind for a league season in one
// transaction and records new achievements. Achievements already held are
// kept as first awarded. It returns how many achievements were new.
func (s *Store) ReplaceStatsSnapshots(ctx context.Context, snaps []domain.StatsSnapshot, awards []domain.Achievement) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}
	awarded := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM stats_snapshots WHERE league_id = ? AND season_id = ?
		`, snaps[0].LeagueID, snaps[0].SeasonID); err != nil {
			return fmt.Errorf("clearing stats: %w", err)
		}
		for _, snap := range snaps {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO stats_snapshots (league_id, season_id, kind, source_hash, payload, computed_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, snap.LeagueID, snap.SeasonID, snap.Kind, snap.SourceHash,
				encoder.EncodeAll(snap.Payload, nil), formatTimestamp(snap.ComputedAt)); err != nil {
				return fmt.Errorf("inserting stats snapshot: %w", err)
			}
		}
		for _, a := range awards {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO player_achievements (player_id, league_id, kind, trigger_match_id, progress, awarded_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, a.PlayerID, a.LeagueID, a.Kind, a.TriggerMatchID, a.Progress, formatTimestamp(a.AwardedAt))
			if err != nil {
				return fmt.Errorf("inserting achievement: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				awarded++
			}
		}
		return nil
	})
	return awarded, err
}

// PlayerAchievements returns a player's awards in a league, oldest first
func (s *Store) PlayerAchievements(ctx context.Context, playerID, leagueID string) ([]domain.Achievement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, league_id, kind, trigger_match_id, progress, awarded_at
		FROM player_achievements WHERE player_id = ? AND league_id = ?
		ORDER BY awarded_at, kind
	`, playerID, leagueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	achievements := []domain.Achievement{}
	for rows.Next() {
		var a domain.Achievement
		var progress sql.NullInt64
		if err := rows.Scan(&a.PlayerID, &a.LeagueID, &a.Kind, &a.TriggerMatchID, &progress, &a.AwardedAt); err != nil {
			return nil, err
		}
		a.Progress = scanNullInt64ToIntPtr(progress)
		a.AwardedAt = a.AwardedAt.UTC()
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}
