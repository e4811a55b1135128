package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/foospulse/foospulse/internal/domain"
)

// ErrStaleSession means the session row changed since it was loaded
var ErrStaleSession = errors.New("live session modified concurrently")

// CreateSession inserts a live session and its players in one transaction
func (s *Store) CreateSession(ctx context.Context, sess *domain.LiveSession) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO live_sessions (id, league_id, season_id, share_token, scorer_secret_hash, mode, status,
				score_a, score_b, version, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		`, sess.ID, sess.LeagueID, sess.SeasonID, sess.ShareToken, nullIfEmpty(sess.ScorerSecretHash),
			sess.Mode, sess.Status, sess.ScoreA, sess.ScoreB, nullString(sess.CreatedBy),
			formatTimestamp(sess.CreatedAt), formatTimestamp(sess.UpdatedAt))
		if err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}

		for _, p := range sess.Players {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO live_session_players (session_id, player_id, side, role) VALUES (?, ?, ?, ?)
			`, sess.ID, p.PlayerID, p.Side, p.Role); err != nil {
				return fmt.Errorf("inserting session player: %w", err)
			}
		}
		return nil
	})
}

// GetSession returns a session with its players and full event log
func (s *Store) GetSession(ctx context.Context, id string) (*domain.LiveSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM live_sessions WHERE id = ?`, id)
	return s.loadSession(ctx, row)
}

// GetSessionByShareToken returns a session by its public share token
func (s *Store) GetSessionByShareToken(ctx context.Context, token string) (*domain.LiveSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM live_sessions WHERE share_token = ?`, token)
	return s.loadSession(ctx, row)
}

func (s *Store) loadSession(ctx context.Context, row *sql.Row) (*domain.LiveSession, error) {
	sess, err := scanSession(row)
	if err != nil {
		return nil, notFound(err, "live session")
	}
	if sess.Players, err = s.sessionPlayers(ctx, sess.ID); err != nil {
		return nil, err
	}
	if sess.Events, err = s.sessionEvents(ctx, sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) sessionPlayers(ctx context.Context, sessionID string) ([]domain.SessionPlayer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lp.player_id, p.nickname, lp.side, lp.role
		FROM live_session_players lp
		JOIN players p ON p.id = lp.player_id
		WHERE lp.session_id = ?
		ORDER BY lp.side, lp.role
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []domain.SessionPlayer
	for rows.Next() {
		var p domain.SessionPlayer
		if err := rows.Scan(&p.PlayerID, &p.Nickname, &p.Side, &p.Role); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *Store) sessionEvents(ctx context.Context, sessionID string) ([]domain.SessionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionEventColumns+` FROM live_session_events WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.SessionEvent{}
	for rows.Next() {
		ev, err := scanSessionEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// ListActiveSessions returns non-terminal sessions for a league, newest first
func (s *Store) ListActiveSessions(ctx context.Context, leagueID string) ([]domain.LiveSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM live_sessions
		WHERE league_id = ? AND status IN ('waiting', 'active', 'paused')
		ORDER BY created_at DESC
	`, leagueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.LiveSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range sessions {
		if sessions[i].Players, err = s.sessionPlayers(ctx, sessions[i].ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// SessionPlayerUserIDs returns user accounts linked to the session's players
func (s *Store) SessionPlayerUserIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.user_id FROM live_session_players lp
		JOIN players p ON p.id = lp.player_id
		WHERE lp.session_id = ? AND p.user_id IS NOT NULL
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// updateSessionRow writes the mutable session columns, guarded by version
func updateSessionRow(ctx context.Context, tx *sql.Tx, sess *domain.LiveSession) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE live_sessions SET status = ?, score_a = ?, score_b = ?, started_at = ?, ended_at = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, sess.Status, sess.ScoreA, sess.ScoreB, formatNullTimestamp(sess.StartedAt),
		formatNullTimestamp(sess.EndedAt), formatTimestamp(sess.UpdatedAt), sess.ID, sess.Version)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrStaleSession
	}
	sess.Version++
	return nil
}

// UpdateSession persists status, scores, and timestamps
func (s *Store) UpdateSession(ctx context.Context, sess *domain.LiveSession) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updateSessionRow(ctx, tx, sess)
	})
}

// AppendEvent inserts an event and persists the session state it produced.
// The event's Seq is assigned here.
func (s *Store) AppendEvent(ctx context.Context, sess *domain.LiveSession, ev *domain.SessionEvent) error {
	var metadata any
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		metadata = string(raw)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateSessionRow(ctx, tx, sess); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(seq), 0) + 1 FROM live_session_events WHERE session_id = ?
		`, sess.ID).Scan(&ev.Seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO live_session_events (id, session_id, seq, event_type, side, actor_player_id,
				target_player_id, custom_type, metadata, elapsed_seconds, delta, recorded_by, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, ev.ID, sess.ID, ev.Seq, ev.Type, nullIfEmpty(string(ev.Side)), nullString(ev.ActorPlayerID),
			nullString(ev.TargetPlayerID), nullIfEmpty(ev.CustomType), metadata, ev.ElapsedSeconds,
			ev.Delta, nullString(ev.RecordedBy), formatTimestamp(ev.RecordedAt))
		if err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}
		return nil
	})
}

// MarkEventUndone soft-deletes an event and persists the reversed score
func (s *Store) MarkEventUndone(ctx context.Context, sess *domain.LiveSession, ev *domain.SessionEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE live_session_events SET undone_at = ?
			WHERE id = ? AND session_id = ? AND undone_at IS NULL
		`, formatNullTimestamp(ev.UndoneAt), ev.ID, sess.ID)
		if err != nil {
			return fmt.Errorf("marking event undone: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return domain.NewConflict(domain.ReasonAlreadyUndone, "event %s already undone", ev.ID)
		}
		return updateSessionRow(ctx, tx, sess)
	})
}

// DeleteSession removes a session; its players and events go with it
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM live_sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("live session: %w", domain.ErrNotFound)
	}
	return nil
}
