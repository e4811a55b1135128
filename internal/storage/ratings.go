package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/foospulse/foospulse/internal/domain"
)

// HasRatingSnapshots reports whether a match already produced snapshots for mode
func (s *Store) HasRatingSnapshots(ctx context.Context, matchID string, mode domain.Mode) (bool, error) {
	return hasRatingSnapshots(ctx, s.db, matchID, mode)
}

func hasRatingSnapshots(ctx context.Context, q querier, matchID string, mode domain.Mode) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rating_snapshots WHERE match_id = ? AND mode = ?
	`, matchID, mode).Scan(&n)
	return n > 0, err
}

// LatestRatings returns the most recent rating per player for a league and mode.
// Players without a snapshot are absent from the map.
func (s *Store) LatestRatings(ctx context.Context, leagueID string, mode domain.Mode, playerIDs []string) (map[string]int, error) {
	return latestRatings(ctx, s.db, leagueID, mode, playerIDs)
}

func latestRatings(ctx context.Context, q querier, leagueID string, mode domain.Mode, playerIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(playerIDs))
	for _, id := range playerIDs {
		var rating int
		err := q.QueryRowContext(ctx, `
			SELECT rating FROM rating_snapshots
			WHERE league_id = ? AND mode = ? AND player_id = ?
			ORDER BY seq DESC LIMIT 1
		`, leagueID, mode, id).Scan(&rating)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = rating
	}
	return out, nil
}

func insertRatings(ctx context.Context, tx *sql.Tx, snaps []domain.RatingSnapshot) (int, error) {
	inserted := 0
	for i := range snaps {
		r := &snaps[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO rating_snapshots (league_id, season_id, player_id, mode, match_id, rating, previous_rating, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(player_id, match_id, mode) DO NOTHING
		`, r.LeagueID, r.SeasonID, r.PlayerID, r.Mode, r.MatchID, r.Rating, r.Previous, formatTimestamp(r.ComputedAt))
		if err != nil {
			return inserted, fmt.Errorf("inserting rating snapshot: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			inserted++
			r.Seq, _ = res.LastInsertId()
		}
	}
	return inserted, nil
}

// InsertRatingSnapshots appends snapshots atomically. Rows that already exist
// for (player, match, mode) are left untouched; the count of new rows is returned.
func (s *Store) InsertRatingSnapshots(ctx context.Context, snaps []domain.RatingSnapshot) (int, error) {
	var inserted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = insertRatings(ctx, tx, snaps)
		return err
	})
	return inserted, err
}

func replaceRatings(ctx context.Context, tx *sql.Tx, leagueID string, mode domain.Mode, snaps []domain.RatingSnapshot) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM rating_snapshots WHERE league_id = ? AND mode = ?
	`, leagueID, mode); err != nil {
		return fmt.Errorf("clearing ratings: %w", err)
	}
	_, err := insertRatings(ctx, tx, snaps)
	return err
}

// ReplaceRatings discards a league mode's ledger and writes a replayed one in its place
func (s *Store) ReplaceRatings(ctx context.Context, leagueID string, mode domain.Mode, snaps []domain.RatingSnapshot) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return replaceRatings(ctx, tx, leagueID, mode, snaps)
	})
}

// RatingLedger is the rating ledger seen from inside one write transaction.
// Nothing else writes to the database, from this process or another, until
// the transaction ends, so a read followed by a write cannot lose an update.
type RatingLedger struct {
	ctx context.Context
	tx  *sql.Tx
}

// UpdateRatings runs fn against the ledger in a single write transaction,
// committing when fn returns nil. fn must not call other Store methods.
func (s *Store) UpdateRatings(ctx context.Context, fn func(l *RatingLedger) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&RatingLedger{ctx: ctx, tx: tx})
	})
}

// Rated reports whether the match already produced snapshots for mode
func (l *RatingLedger) Rated(matchID string, mode domain.Mode) (bool, error) {
	return hasRatingSnapshots(l.ctx, l.tx, matchID, mode)
}

// Latest returns the most recent rating per player
func (l *RatingLedger) Latest(leagueID string, mode domain.Mode, playerIDs []string) (map[string]int, error) {
	return latestRatings(l.ctx, l.tx, leagueID, mode, playerIDs)
}

// RatedAfter reports whether the ledger already holds a match that plays
// after m, ordering by (played_at, created_at, id) as replays do.
func (l *RatingLedger) RatedAfter(m *domain.Match) (bool, error) {
	var later bool
	err := l.tx.QueryRowContext(l.ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rating_snapshots r JOIN matches m ON m.id = r.match_id
			WHERE r.league_id = ? AND r.mode = ?
			AND (m.played_at, m.created_at, m.id) > (?, ?, ?)
		)
	`, m.LeagueID, m.Mode, formatTimestamp(m.PlayedAt), formatTimestamp(m.CreatedAt), m.ID).Scan(&later)
	return later, err
}

// Matches returns a league mode's valid matches in play order
func (l *RatingLedger) Matches(leagueID string, mode domain.Mode) ([]domain.Match, error) {
	return leagueMatches(l.ctx, l.tx, leagueID, mode)
}

// Append writes snapshots, skipping rows that already exist
func (l *RatingLedger) Append(snaps []domain.RatingSnapshot) (int, error) {
	return insertRatings(l.ctx, l.tx, snaps)
}

// Replace discards a league mode's ledger and writes snaps in its place
func (l *RatingLedger) Replace(leagueID string, mode domain.Mode, snaps []domain.RatingSnapshot) error {
	return replaceRatings(l.ctx, l.tx, leagueID, mode, snaps)
}

// MatchRatings returns the snapshots a match produced
func (s *Store) MatchRatings(ctx context.Context, matchID string) ([]domain.RatingSnapshot, error) {
	return s.queryRatings(ctx, `
		SELECT `+ratingColumns+` FROM rating_snapshots WHERE match_id = ? ORDER BY seq
	`, matchID)
}

// LeagueRatings returns a league mode's whole ledger in write order
func (s *Store) LeagueRatings(ctx context.Context, leagueID string, mode domain.Mode) ([]domain.RatingSnapshot, error) {
	return s.queryRatings(ctx, `
		SELECT `+ratingColumns+` FROM rating_snapshots WHERE league_id = ? AND mode = ? ORDER BY seq
	`, leagueID, mode)
}

// PlayerRatingHistory returns a player's snapshots for a mode in write order
func (s *Store) PlayerRatingHistory(ctx context.Context, playerID string, mode domain.Mode) ([]domain.RatingSnapshot, error) {
	return s.queryRatings(ctx, `
		SELECT `+ratingColumns+` FROM rating_snapshots WHERE player_id = ? AND mode = ? ORDER BY seq
	`, playerID, mode)
}

func (s *Store) queryRatings(ctx context.Context, query string, args ...any) ([]domain.RatingSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := []domain.RatingSnapshot{}
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *r)
	}
	return snaps, rows.Err()
}

// CurrentRatings returns the latest rating of every rated player in a league mode, best first
func (s *Store) CurrentRatings(ctx context.Context, leagueID string, mode domain.Mode) ([]domain.PlayerRating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.player_id, p.nickname, r.rating, c.n
		FROM rating_snapshots r
		JOIN (
			SELECT player_id, MAX(seq) AS seq, COUNT(*) AS n FROM rating_snapshots
			WHERE league_id = ? AND mode = ? GROUP BY player_id
		) c ON c.seq = r.seq
		JOIN players p ON p.id = r.player_id
		ORDER BY r.rating DESC, r.player_id
	`, leagueID, mode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ratings := []domain.PlayerRating{}
	for rows.Next() {
		pr := domain.PlayerRating{Mode: mode}
		if err := rows.Scan(&pr.PlayerID, &pr.Nickname, &pr.Rating, &pr.Matches); err != nil {
			return nil, err
		}
		ratings = append(ratings, pr)
	}
	return ratings, rows.Err()
}
