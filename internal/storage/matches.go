package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/foospulse/foospulse/internal/domain"
)

// insertMatch writes a match with its players and events
func insertMatch(ctx context.Context, tx *sql.Tx, m *domain.Match) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO matches (id, league_id, season_id, mode, score_a, score_b, status, void_reason,
			played_at, created_at, live_session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.LeagueID, m.SeasonID, m.Mode, m.ScoreA, m.ScoreB, m.Status, nullIfEmpty(m.VoidReason),
		formatTimestamp(m.PlayedAt), formatTimestamp(m.CreatedAt), nullString(m.LiveSessionID))
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}

	for _, p := range m.Players {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO match_players (match_id, player_id, side, role) VALUES (?, ?, ?, ?)
		`, m.ID, p.PlayerID, p.Side, p.Role); err != nil {
			return fmt.Errorf("inserting match player: %w", err)
		}
	}

	for i := range m.Events {
		ev := &m.Events[i]
		if ev.ID == "" {
			ev.ID = NewID()
		}
		ev.MatchID = m.ID
		if ev.Count == 0 {
			ev.Count = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO match_events (id, match_id, kind, against_player_id, by_player_id, count, elapsed_seconds)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ev.ID, m.ID, ev.Kind, ev.AgainstPlayerID, nullString(ev.ByPlayerID), ev.Count, ev.ElapsedSeconds); err != nil {
			return fmt.Errorf("inserting match event: %w", err)
		}
	}
	return nil
}

// CreateMatch records a match directly and queues follow-up jobs with it
func (s *Store) CreateMatch(ctx context.Context, m *domain.Match, jobs []OutboxEntry) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = Now()
	}
	if m.PlayedAt.IsZero() {
		m.PlayedAt = m.CreatedAt
	}
	if m.Status == "" {
		m.Status = domain.MatchValid
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertMatch(ctx, tx, m); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, jobs)
	})
}

// FinalizeSession writes the match, links the session to it, and queues
// follow-up jobs, all in one transaction. It fails with a conflict if the
// session was already finalized or abandoned by the time it commits.
func (s *Store) FinalizeSession(ctx context.Context, sess *domain.LiveSession, m *domain.Match, jobs []OutboxEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var finalized sql.NullString
		var status domain.SessionStatus
		if err := tx.QueryRowContext(ctx, `
			SELECT finalized_match_id, status FROM live_sessions WHERE id = ?
		`, sess.ID).Scan(&finalized, &status); err != nil {
			return notFound(err, "live session")
		}
		if finalized.Valid {
			return domain.NewConflict(domain.ReasonAlreadyFinalized, "session already finalized into match %s", finalized.String)
		}
		if status == domain.StatusAbandoned {
			return domain.NewConflict(domain.ReasonAbandoned, "abandoned sessions cannot be finalized")
		}

		if err := insertMatch(ctx, tx, m); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE live_sessions SET status = ?, ended_at = ?, updated_at = ?, finalized_match_id = ?,
				version = version + 1
			WHERE id = ? AND version = ? AND finalized_match_id IS NULL
		`, sess.Status, formatNullTimestamp(sess.EndedAt), formatTimestamp(sess.UpdatedAt), m.ID, sess.ID, sess.Version)
		if err != nil {
			return fmt.Errorf("finalizing session: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return ErrStaleSession
		}
		sess.Version++

		return insertOutbox(ctx, tx, jobs)
	})
}

// GetMatch returns a match with its players and events
func (s *Store) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "match")
	}
	matches := []domain.Match{*m}
	if err := attachChildren(ctx, s.db, matches); err != nil {
		return nil, err
	}
	return &matches[0], nil
}

// ListValidMatches returns valid matches for a league season in play order
func (s *Store) ListValidMatches(ctx context.Context, leagueID, seasonID string) ([]domain.Match, error) {
	return queryMatches(ctx, s.db, `
		SELECT `+matchColumns+` FROM matches
		WHERE league_id = ? AND season_id = ? AND status = 'valid'
		ORDER BY played_at, created_at, id
	`, leagueID, seasonID)
}

// ListLeagueMatches returns valid matches of one mode across all seasons in play order
func (s *Store) ListLeagueMatches(ctx context.Context, leagueID string, mode domain.Mode) ([]domain.Match, error) {
	return leagueMatches(ctx, s.db, leagueID, mode)
}

func leagueMatches(ctx context.Context, q querier, leagueID string, mode domain.Mode) ([]domain.Match, error) {
	return queryMatches(ctx, q, `
		SELECT `+matchColumns+` FROM matches
		WHERE league_id = ? AND mode = ? AND status = 'valid'
		ORDER BY played_at, created_at, id
	`, leagueID, mode)
}

// ListAllLeagueMatches returns valid matches of every mode and season in play order
func (s *Store) ListAllLeagueMatches(ctx context.Context, leagueID string) ([]domain.Match, error) {
	return queryMatches(ctx, s.db, `
		SELECT `+matchColumns+` FROM matches
		WHERE league_id = ? AND status = 'valid'
		ORDER BY played_at, created_at, id
	`, leagueID)
}

func queryMatches(ctx context.Context, q querier, query string, args ...any) ([]domain.Match, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := attachChildren(ctx, q, matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// attachChildren loads players and events for a batch of matches
func attachChildren(ctx context.Context, q querier, matches []domain.Match) error {
	if len(matches) == 0 {
		return nil
	}
	index := make(map[string]int, len(matches))
	for i := range matches {
		index[matches[i].ID] = i
		matches[i].Players = nil
		matches[i].Events = nil
	}

	// One pass per child table keeps this two queries regardless of batch size.
	leagueID := matches[0].LeagueID
	rows, err := q.QueryContext(ctx, `
		SELECT mp.match_id, mp.player_id, mp.side, mp.role
		FROM match_players mp JOIN matches m ON m.id = mp.match_id
		WHERE m.league_id = ?
	`, leagueID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var matchID string
		var p domain.MatchPlayer
		if err := rows.Scan(&matchID, &p.PlayerID, &p.Side, &p.Role); err != nil {
			rows.Close()
			return err
		}
		if i, ok := index[matchID]; ok {
			matches[i].Players = append(matches[i].Players, p)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT me.id, me.match_id, me.kind, me.against_player_id, me.by_player_id, me.count, me.elapsed_seconds
		FROM match_events me JOIN matches m ON m.id = me.match_id
		WHERE m.league_id = ?
		ORDER BY me.elapsed_seconds, me.id
	`, leagueID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var ev domain.MatchEvent
		var by sql.NullString
		if err := rows.Scan(&ev.ID, &ev.MatchID, &ev.Kind, &ev.AgainstPlayerID, &by, &ev.Count, &ev.ElapsedSeconds); err != nil {
			return err
		}
		ev.ByPlayerID = scanNullString(by)
		if i, ok := index[ev.MatchID]; ok {
			matches[i].Events = append(matches[i].Events, ev)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range matches {
		sort.Slice(matches[i].Players, func(a, b int) bool {
			pa, pb := matches[i].Players[a], matches[i].Players[b]
			if pa.Side != pb.Side {
				return pa.Side < pb.Side
			}
			return pa.Role < pb.Role
		})
	}
	return nil
}

// VoidMatch flips a valid match to void and queues follow-up jobs
func (s *Store) VoidMatch(ctx context.Context, id, reason string, jobs []OutboxEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status domain.MatchStatus
		if err := tx.QueryRowContext(ctx, `SELECT status FROM matches WHERE id = ?`, id).Scan(&status); err != nil {
			return notFound(err, "match")
		}
		if status == domain.MatchVoid {
			return domain.NewConflict(domain.ReasonAlreadyVoid, "match %s is already void", id)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE matches SET status = 'void', void_reason = ? WHERE id = ? AND status = 'valid'
		`, reason, id); err != nil {
			return fmt.Errorf("voiding match: %w", err)
		}
		return insertOutbox(ctx, tx, jobs)
	})
}

// MatchTimeline returns the non-undone session events behind a finalized match
func (s *Store) MatchTimeline(ctx context.Context, matchID string) (*domain.Timeline, error) {
	var sessionID sql.NullString
	var startedAt, endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT ls.id, ls.started_at, ls.ended_at
		FROM matches m LEFT JOIN live_sessions ls ON ls.id = m.live_session_id
		WHERE m.id = ?
	`, matchID).Scan(&sessionID, &startedAt, &endedAt)
	if err != nil {
		return nil, notFound(err, "match")
	}
	if !sessionID.Valid {
		return nil, fmt.Errorf("match %s has no live session timeline: %w", matchID, domain.ErrNotFound)
	}

	tl := &domain.Timeline{MatchID: matchID, SessionID: sessionID.String, Events: []domain.TimelineEntry{}}
	if startedAt.Valid && endedAt.Valid {
		tl.DurationSeconds = int(endedAt.Time.Sub(startedAt.Time).Seconds())
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionEventColumns+` FROM live_session_events
		WHERE session_id = ? AND undone_at IS NULL
		ORDER BY elapsed_seconds, seq
	`, sessionID.String)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		ev, err := scanSessionEvent(rows)
		if err != nil {
			return nil, err
		}
		tl.Events = append(tl.Events, domain.TimelineEntry{
			Type:           ev.Type,
			Side:           ev.Side,
			ActorPlayerID:  ev.ActorPlayerID,
			TargetPlayerID: ev.TargetPlayerID,
			CustomType:     ev.CustomType,
			ElapsedSeconds: ev.ElapsedSeconds,
		})
	}
	return tl, rows.Err()
}

// LeagueSeason identifies a stats partition
type LeagueSeason struct {
	LeagueID string
	SeasonID string
}

// LeagueSeasonsWithMatches lists every league season holding at least one valid match
func (s *Store) LeagueSeasonsWithMatches(ctx context.Context) ([]LeagueSeason, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT league_id, season_id FROM matches WHERE status = 'valid' ORDER BY league_id, season_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeagueSeason
	for rows.Next() {
		var ls LeagueSeason
		if err := rows.Scan(&ls.LeagueID, &ls.SeasonID); err != nil {
			return nil, err
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}
