// Package jobs carries rating and stats work from the request path to the
// worker pool: typed jobs, a durable queue, retries, and the outbox relay.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/foospulse/foospulse/internal/storage"
)

// Kind names a job type
type Kind string

const (
	KindRatingUpdate    Kind = "rating_update"
	KindStatsRecompute  Kind = "stats_recompute"
	KindRatingRecompute Kind = "rating_recompute"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRatingUpdate, KindStatsRecompute, KindRatingRecompute:
		return true
	}
	return false
}

// Job is a unit of work on the queue. ID is the outbox row id and doubles
// as the broker's deduplication key.
type Job struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`

	// touch extends the broker's ack deadline while a job is retrying
	touch func()
}

// RatingUpdatePayload asks for one match to be rated
type RatingUpdatePayload struct {
	MatchID string `json:"match_id"`
}

// StatsRecomputePayload asks for a league season's stats
type StatsRecomputePayload struct {
	LeagueID string `json:"league_id"`
	SeasonID string `json:"season_id"`
}

// RatingRecomputePayload asks for a league's ratings to be replayed
type RatingRecomputePayload struct {
	LeagueID string `json:"league_id"`
}

func entry(kind Kind, payload any) storage.OutboxEntry {
	// payload types are flat string structs; Marshal cannot fail on them
	raw, _ := json.Marshal(payload)
	return storage.OutboxEntry{ID: storage.NewID(), Kind: string(kind), Payload: raw}
}

// RatingUpdate builds the outbox entry that rates a match.
func RatingUpdate(matchID string) storage.OutboxEntry {
	return entry(KindRatingUpdate, RatingUpdatePayload{MatchID: matchID})
}

// StatsRecompute builds the outbox entry that refreshes a season's stats.
func StatsRecompute(leagueID, seasonID string) storage.OutboxEntry {
	return entry(KindStatsRecompute, StatsRecomputePayload{LeagueID: leagueID, SeasonID: seasonID})
}

// RatingRecompute builds the outbox entry that rebuilds a league's ratings.
func RatingRecompute(leagueID string) storage.OutboxEntry {
	return entry(KindRatingRecompute, RatingRecomputePayload{LeagueID: leagueID})
}

// FromOutbox converts a stored outbox row into a job.
func FromOutbox(e storage.OutboxEntry) Job {
	return Job{ID: e.ID, Kind: Kind(e.Kind), Payload: json.RawMessage(e.Payload)}
}

// Decode unmarshals the job payload into v. A malformed payload can never
// succeed, so the error is permanent.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decoding %s payload: %w", j.Kind, err))
	}
	return nil
}

func (j Job) keepAlive() {
	if j.touch != nil {
		j.touch()
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// SkipError reports an idempotent no-op. It is a success, not a failure.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "skipped: " + e.Reason }

// Skip returns a SkipError with reason.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// ErrExhausted is returned by Pool.Handle once a job has used every attempt
// and been recorded as a failure. Queues drop such messages.
var ErrExhausted = errors.New("job exhausted retries")
