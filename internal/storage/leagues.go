package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/foospulse/foospulse/internal/domain"
)

// --- League methods ---

// CreateLeague inserts a league, assigning ID and CreatedAt when empty
func (s *Store) CreateLeague(ctx context.Context, l *domain.League) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leagues (id, name, slug, created_at) VALUES (?, ?, ?, ?)
	`, l.ID, l.Name, l.Slug, formatTimestamp(l.CreatedAt))
	return err
}

// GetLeague returns a league by ID
func (s *Store) GetLeague(ctx context.Context, id string) (*domain.League, error) {
	var l domain.League
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, created_at FROM leagues WHERE id = ?
	`, id).Scan(&l.ID, &l.Name, &l.Slug, &l.CreatedAt)
	if err != nil {
		return nil, notFound(err, "league")
	}
	return &l, nil
}

// CreateSeason inserts a season
func (s *Store) CreateSeason(ctx context.Context, season *domain.Season) error {
	if season.ID == "" {
		season.ID = NewID()
	}
	now := Now()
	if season.CreatedAt.IsZero() {
		season.CreatedAt = now
	}
	if season.StartsAt.IsZero() {
		season.StartsAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seasons (id, league_id, name, starts_at, ends_at, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, season.ID, season.LeagueID, season.Name, formatTimestamp(season.StartsAt),
		formatNullTimestamp(season.EndsAt), season.IsActive, formatTimestamp(season.CreatedAt))
	return err
}

// GetSeason returns a season by ID
func (s *Store) GetSeason(ctx context.Context, id string) (*domain.Season, error) {
	var season domain.Season
	var endsAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, league_id, name, starts_at, ends_at, is_active, created_at FROM seasons WHERE id = ?
	`, id).Scan(&season.ID, &season.LeagueID, &season.Name, &season.StartsAt, &endsAt, &season.IsActive, &season.CreatedAt)
	if err != nil {
		return nil, notFound(err, "season")
	}
	season.EndsAt = scanNullTime(endsAt)
	return &season, nil
}

// ActiveSeason returns the league's active season
func (s *Store) ActiveSeason(ctx context.Context, leagueID string) (*domain.Season, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM seasons WHERE league_id = ? AND is_active = 1 ORDER BY starts_at DESC LIMIT 1
	`, leagueID).Scan(&id)
	if err != nil {
		return nil, notFound(err, "active season")
	}
	return s.GetSeason(ctx, id)
}

// --- Player methods ---

// CreatePlayer inserts a player
func (s *Store) CreatePlayer(ctx context.Context, p *domain.Player) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, league_id, nickname, user_id, created_at) VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.LeagueID, p.Nickname, nullString(p.UserID), formatTimestamp(p.CreatedAt))
	return err
}

// ListPlayers returns every player in a league ordered by nickname
func (s *Store) ListPlayers(ctx context.Context, leagueID string) ([]domain.Player, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, league_id, nickname, user_id, created_at FROM players WHERE league_id = ? ORDER BY nickname
	`, leagueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		var userID sql.NullString
		if err := rows.Scan(&p.ID, &p.LeagueID, &p.Nickname, &userID, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.UserID = scanNullString(userID)
		players = append(players, p)
	}
	return players, rows.Err()
}

// PlayerNicknames returns nickname by player ID for the given league
func (s *Store) PlayerNicknames(ctx context.Context, leagueID string) (map[string]string, error) {
	players, err := s.ListPlayers(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Nickname
	}
	return names, nil
}

// PlayersInLeague returns the subset of ids that belong to the league, with nicknames
func (s *Store) PlayersInLeague(ctx context.Context, leagueID string, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, leagueID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, nickname FROM players WHERE league_id = ? AND id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]string, len(ids))
	for rows.Next() {
		var id, nickname string
		if err := rows.Scan(&id, &nickname); err != nil {
			return nil, err
		}
		found[id] = nickname
	}
	return found, rows.Err()
}

// --- Membership methods ---

// AddLeagueMember adds or reactivates a league membership
func (s *Store) AddLeagueMember(ctx context.Context, m domain.LeagueMember) error {
	role := m.Role
	if role == "" {
		role = domain.MemberRolePlayer
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO league_members (league_id, user_id, role, active) VALUES (?, ?, ?, ?)
		ON CONFLICT(league_id, user_id) DO UPDATE SET role = excluded.role, active = excluded.active
	`, m.LeagueID, m.UserID, role, m.Active)
	return err
}

// IsActiveMember reports whether a user is an active member of a league
func (s *Store) IsActiveMember(ctx context.Context, leagueID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM league_members WHERE league_id = ? AND user_id = ? AND active = 1
	`, leagueID, userID).Scan(&n)
	return n > 0, err
}

// IsLeagueAdmin reports whether a user administers a league
func (s *Store) IsLeagueAdmin(ctx context.Context, leagueID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM league_members WHERE league_id = ? AND user_id = ? AND active = 1 AND role = ?
	`, leagueID, userID, domain.MemberRoleAdmin).Scan(&n)
	return n > 0, err
}
