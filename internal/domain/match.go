package domain

import "time"

// MatchStatus marks a match as counted or voided
type MatchStatus string

const (
	MatchValid MatchStatus = "valid"
	MatchVoid  MatchStatus = "void"
)

// MatchEventKind is the penalty shape stored on permanent matches
type MatchEventKind string

const (
	MatchEventGamelle MatchEventKind = "gamelle"
	MatchEventLob     MatchEventKind = "lob"
)

// Weight is how many gamelles one event of this kind counts for.
func (k MatchEventKind) Weight() int {
	if k == MatchEventLob {
		return 3
	}
	return 1
}

// Match is a permanent match record. Only Status and VoidReason change after creation.
type Match struct {
	ID            string        `json:"id"`
	LeagueID      string        `json:"league_id"`
	SeasonID      string        `json:"season_id"`
	Mode          Mode          `json:"mode"`
	ScoreA        int           `json:"team_a_score"`
	ScoreB        int           `json:"team_b_score"`
	Status        MatchStatus   `json:"status"`
	VoidReason    string        `json:"void_reason,omitempty"`
	PlayedAt      time.Time     `json:"played_at"`
	CreatedAt     time.Time     `json:"created_at"`
	LiveSessionID *string       `json:"live_session_id,omitempty"`
	Players       []MatchPlayer `json:"players"`
	Events        []MatchEvent  `json:"events,omitempty"`
}

// MatchPlayer is a participant in a permanent match
type MatchPlayer struct {
	PlayerID string `json:"player_id"`
	Side     Side   `json:"team"`
	Role     Role   `json:"position"`
}

// MatchEvent is a penalty carried into match history
type MatchEvent struct {
	ID              string         `json:"id"`
	MatchID         string         `json:"match_id"`
	Kind            MatchEventKind `json:"event_type"`
	AgainstPlayerID string         `json:"against_player_id"`
	ByPlayerID      *string        `json:"by_player_id,omitempty"`
	Count           int            `json:"count"`
	ElapsedSeconds  int            `json:"elapsed_seconds"`
}

// SidePlayers returns the ids of the players on side.
func (m *Match) SidePlayers(side Side) []string {
	var ids []string
	for _, p := range m.Players {
		if p.Side == side {
			ids = append(ids, p.PlayerID)
		}
	}
	return ids
}

// Score returns the final score for side.
func (m *Match) Score(side Side) int {
	if side == SideA {
		return m.ScoreA
	}
	return m.ScoreB
}

// Result is the outcome for side: 1 win, 0 draw, -1 loss.
func (m *Match) Result(side Side) int {
	diff := m.Score(side) - m.Score(side.Opponent())
	switch {
	case diff > 0:
		return 1
	case diff < 0:
		return -1
	}
	return 0
}

// PlayerSide returns the side playerID played on.
func (m *Match) PlayerSide(playerID string) (Side, bool) {
	for _, p := range m.Players {
		if p.PlayerID == playerID {
			return p.Side, true
		}
	}
	return "", false
}

// TimelineEntry is a non-undone session event shown on a match page
type TimelineEntry struct {
	Type           EventType `json:"event_type"`
	Side           Side      `json:"team,omitempty"`
	ActorPlayerID  *string   `json:"by_player_id,omitempty"`
	TargetPlayerID *string   `json:"against_player_id,omitempty"`
	CustomType     string    `json:"custom_type,omitempty"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
}

// Timeline is the replayable event history of a finalized match
type Timeline struct {
	MatchID         string          `json:"match_id"`
	SessionID       string          `json:"session_id"`
	DurationSeconds int             `json:"duration_seconds"`
	Events          []TimelineEntry `json:"events"`
}
