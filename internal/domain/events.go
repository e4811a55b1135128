package domain

import "time"

// Broadcast event names for live session subscribers
const (
	EventConnected    = "connected"
	EventHeartbeat    = "heartbeat"
	EventGoalScored   = "goal"
	EventPenaltyMinor = "penalty-minor"
	EventPenaltyMajor = "penalty-major"
	EventTimeoutCall  = "timeout"
	EventCustomCall   = "custom"
	EventScoreUpdate  = "score-update"
	EventStatusChange = "status-change"
	EventUndo         = "undo"
)

// Event is the envelope published to live session subscribers
type Event struct {
	Type      string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an envelope with the current time.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
}

// BroadcastName maps a session event type to its envelope name.
func BroadcastName(t EventType) string {
	switch t {
	case EventGoal:
		return EventGoalScored
	case EventGamellized:
		return EventPenaltyMinor
	case EventLobbed:
		return EventPenaltyMajor
	case EventTimeout:
		return EventTimeoutCall
	}
	return EventCustomCall
}

// EventRecorded is the payload for goal/penalty/timeout/custom broadcasts
type EventRecorded struct {
	Event  SessionEvent `json:"event"`
	ScoreA int          `json:"team_a_score"`
	ScoreB int          `json:"team_b_score"`
}

// EventUndone is the payload for undo broadcasts
type EventUndone struct {
	EventID string `json:"event_id"`
	ScoreA  int    `json:"team_a_score"`
	ScoreB  int    `json:"team_b_score"`
}

// StatusChanged is the payload for status-change broadcasts
type StatusChanged struct {
	From             SessionStatus `json:"from"`
	Status           SessionStatus `json:"status"`
	FinalizedMatchID *string       `json:"finalized_match_id,omitempty"`
}

// Connected is the first message a subscriber receives
type Connected struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	ScoreA    int           `json:"team_a_score"`
	ScoreB    int           `json:"team_b_score"`
}
