package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/foospulse/foospulse/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullString(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func scanNullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time.UTC()
		return &t
	}
	return nil
}

func scanNullInt64ToIntPtr(ni sql.NullInt64) *int {
	if ni.Valid {
		v := int(ni.Int64)
		return &v
	}
	return nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

const sessionColumns = `id, league_id, season_id, share_token, scorer_secret_hash, mode, status,
	score_a, score_b, version, created_by, created_at, updated_at, started_at, ended_at, finalized_match_id`

// scanSession scans a live_sessions row
func scanSession(s scanner) (*domain.LiveSession, error) {
	var sess domain.LiveSession
	var secretHash, createdBy, finalized sql.NullString
	var startedAt, endedAt sql.NullTime
	err := s.Scan(&sess.ID, &sess.LeagueID, &sess.SeasonID, &sess.ShareToken, &secretHash,
		&sess.Mode, &sess.Status, &sess.ScoreA, &sess.ScoreB, &sess.Version, &createdBy,
		&sess.CreatedAt, &sess.UpdatedAt, &startedAt, &endedAt, &finalized)
	if err != nil {
		return nil, err
	}
	sess.ScorerSecretHash = scanNullStringValue(secretHash)
	sess.CreatedBy = scanNullString(createdBy)
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	sess.StartedAt = scanNullTime(startedAt)
	sess.EndedAt = scanNullTime(endedAt)
	sess.FinalizedMatchID = scanNullString(finalized)
	return &sess, nil
}

const sessionEventColumns = `id, session_id, seq, event_type, side, actor_player_id, target_player_id,
	custom_type, metadata, elapsed_seconds, delta, recorded_by, recorded_at, undone_at`

// scanSessionEvent scans a live_session_events row
func scanSessionEvent(s scanner) (*domain.SessionEvent, error) {
	var ev domain.SessionEvent
	var side, actor, target, customType, metadata, recordedBy sql.NullString
	var undoneAt sql.NullTime
	err := s.Scan(&ev.ID, &ev.SessionID, &ev.Seq, &ev.Type, &side, &actor, &target,
		&customType, &metadata, &ev.ElapsedSeconds, &ev.Delta, &recordedBy, &ev.RecordedAt, &undoneAt)
	if err != nil {
		return nil, err
	}
	ev.Side = domain.Side(scanNullStringValue(side))
	ev.ActorPlayerID = scanNullString(actor)
	ev.TargetPlayerID = scanNullString(target)
	ev.CustomType = scanNullStringValue(customType)
	ev.RecordedBy = scanNullString(recordedBy)
	ev.RecordedAt = ev.RecordedAt.UTC()
	ev.UndoneAt = scanNullTime(undoneAt)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
			return nil, err
		}
	}
	return &ev, nil
}

const matchColumns = `id, league_id, season_id, mode, score_a, score_b, status, void_reason,
	played_at, created_at, live_session_id`

// scanMatch scans a matches row
func scanMatch(s scanner) (*domain.Match, error) {
	var m domain.Match
	var voidReason, sessionID sql.NullString
	err := s.Scan(&m.ID, &m.LeagueID, &m.SeasonID, &m.Mode, &m.ScoreA, &m.ScoreB, &m.Status,
		&voidReason, &m.PlayedAt, &m.CreatedAt, &sessionID)
	if err != nil {
		return nil, err
	}
	m.VoidReason = scanNullStringValue(voidReason)
	m.PlayedAt = m.PlayedAt.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	m.LiveSessionID = scanNullString(sessionID)
	return &m, nil
}

const ratingColumns = `seq, league_id, season_id, player_id, mode, match_id, rating, previous_rating, computed_at`

// scanRating scans a rating_snapshots row
func scanRating(s scanner) (*domain.RatingSnapshot, error) {
	var r domain.RatingSnapshot
	err := s.Scan(&r.Seq, &r.LeagueID, &r.SeasonID, &r.PlayerID, &r.Mode, &r.MatchID,
		&r.Rating, &r.Previous, &r.ComputedAt)
	if err != nil {
		return nil, err
	}
	r.ComputedAt = r.ComputedAt.UTC()
	return &r, nil
}
