package domain

import "time"

// Mode is the team layout of a session or match
type Mode string

const (
	Mode1v1 Mode = "1v1"
	Mode2v2 Mode = "2v2"
	Mode2v1 Mode = "2v1"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case Mode1v1, Mode2v2, Mode2v1:
		return true
	}
	return false
}

// PlayerCount is the total number of participants the mode requires.
func (m Mode) PlayerCount() int {
	switch m {
	case Mode1v1:
		return 2
	case Mode2v2:
		return 4
	case Mode2v1:
		return 3
	}
	return 0
}

// Side is a team in a session or match
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Valid reports whether s is A or B.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// Role is the table position a player takes
type Role string

const (
	RoleAttack  Role = "attack"
	RoleDefense Role = "defense"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAttack || r == RoleDefense
}

// SessionStatus is a live session's lifecycle state
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
)

var transitions = map[SessionStatus][]SessionStatus{
	StatusWaiting: {StatusActive, StatusAbandoned},
	StatusActive:  {StatusPaused, StatusCompleted, StatusAbandoned},
	StatusPaused:  {StatusActive, StatusCompleted, StatusAbandoned},
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusPaused, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EventType is the kind of a live session event
type EventType string

const (
	EventGoal       EventType = "goal"
	EventGamellized EventType = "gamellized"
	EventLobbed     EventType = "lobbed"
	EventTimeout    EventType = "timeout"
	EventCustom     EventType = "custom"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventGoal, EventGamellized, EventLobbed, EventTimeout, EventCustom:
		return true
	}
	return false
}

// Delta is the fixed score effect of the event on its side.
func (t EventType) Delta() int {
	switch t {
	case EventGoal:
		return 1
	case EventGamellized:
		return -1
	case EventLobbed:
		return -3
	}
	return 0
}

// Penalty reports whether the event is a gamelle or a lob.
func (t EventType) Penalty() bool {
	return t == EventGamellized || t == EventLobbed
}

// MaxCustomTypeLen bounds the free-form label on custom events
const MaxCustomTypeLen = 50

// Manual score overrides are bounded to this range on each side
const (
	MinManualScore = -20
	MaxManualScore = 20
)

// LiveSession is a real-time scoring session
type LiveSession struct {
	ID               string          `json:"id"`
	LeagueID         string          `json:"league_id"`
	SeasonID         string          `json:"season_id"`
	ShareToken       string          `json:"share_token"`
	ScorerSecretHash string          `json:"-"`
	Mode             Mode            `json:"mode"`
	Status           SessionStatus   `json:"status"`
	ScoreA           int             `json:"team_a_score"`
	ScoreB           int             `json:"team_b_score"`
	Version          int64           `json:"-"`
	CreatedBy        *string         `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
	FinalizedMatchID *string         `json:"finalized_match_id,omitempty"`
	Players          []SessionPlayer `json:"players"`
	Events           []SessionEvent  `json:"events"`
}

// Score returns the running score for side.
func (s *LiveSession) Score(side Side) int {
	if side == SideA {
		return s.ScoreA
	}
	return s.ScoreB
}

// AddScore moves side's running score by delta.
func (s *LiveSession) AddScore(side Side, delta int) {
	switch side {
	case SideA:
		s.ScoreA += delta
	case SideB:
		s.ScoreB += delta
	}
}

// HasPlayer reports whether playerID participates in the session.
func (s *LiveSession) HasPlayer(playerID string) bool {
	for _, p := range s.Players {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}

// Event returns the event with id, or nil.
func (s *LiveSession) Event(id string) *SessionEvent {
	for i := range s.Events {
		if s.Events[i].ID == id {
			return &s.Events[i]
		}
	}
	return nil
}

// SessionPlayer is a participant assignment, fixed at creation
type SessionPlayer struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname,omitempty"`
	Side     Side   `json:"team"`
	Role     Role   `json:"position"`
}

// SessionEvent is an append-only log entry. Delta is fixed at record time.
type SessionEvent struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	Seq            int64          `json:"seq"`
	Type           EventType      `json:"event_type"`
	Side           Side           `json:"team,omitempty"`
	ActorPlayerID  *string        `json:"by_player_id,omitempty"`
	TargetPlayerID *string        `json:"against_player_id,omitempty"`
	CustomType     string         `json:"custom_type,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	Delta          int            `json:"delta"`
	RecordedBy     *string        `json:"recorded_by,omitempty"`
	RecordedAt     time.Time      `json:"recorded_at"`
	UndoneAt       *time.Time     `json:"undone_at,omitempty"`
}

// Undone reports whether the event has been soft-deleted.
func (e *SessionEvent) Undone() bool {
	return e.UndoneAt != nil
}

// EventInput is a request to record an event
type EventInput struct {
	Type           EventType      `json:"event_type"`
	Side           Side           `json:"team,omitempty"`
	ActorPlayerID  *string        `json:"by_player_id,omitempty"`
	TargetPlayerID *string        `json:"against_player_id,omitempty"`
	CustomType     string         `json:"custom_type,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
}

// CreateSessionInput is a request to open a live session
type CreateSessionInput struct {
	LeagueID           string          `json:"league_id"`
	SeasonID           string          `json:"season_id"`
	Mode               Mode            `json:"mode"`
	Players            []SessionPlayer `json:"players"`
	GenerateScorerLink bool            `json:"generate_scorer_secret"`
}

// ScoreUpdate is the running score returned by mutations
type ScoreUpdate struct {
	ScoreA int `json:"team_a_score"`
	ScoreB int `json:"team_b_score"`
}
