package domain

import "time"

// League groups players, seasons, and matches
type League struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Season is a time-bounded slice of a league's history
type Season struct {
	ID        string     `json:"id"`
	LeagueID  string     `json:"league_id"`
	Name      string     `json:"name"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

// Player is a league-scoped participant identity
type Player struct {
	ID        string    `json:"id"`
	LeagueID  string    `json:"league_id"`
	Nickname  string    `json:"nickname"`
	UserID    *string   `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Member roles
const (
	MemberRoleAdmin  = "admin"
	MemberRolePlayer = "player"
)

// LeagueMember links a user account to a league
type LeagueMember struct {
	LeagueID string `json:"league_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

// Actor is the identity behind a request. A zero Actor is anonymous.
type Actor struct {
	UserID       string
	Admin        bool
	ScorerSecret string
}

// Anonymous reports whether no user identity is attached.
func (a Actor) Anonymous() bool {
	return a.UserID == ""
}
