// Package live runs real-time scoring sessions: creation, the event log with
// undo, status changes, and finalization into a permanent match.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foospulse/foospulse/internal/auth"
	"github.com/foospulse/foospulse/internal/broadcast"
	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/keylock"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/storage"
)

const (
	shareTokenLen   = 22
	scorerSecretLen = 32

	// a stale version means another process wrote the row; reload and retry
	maxStaleRetries = 3
)

// Dispatcher pushes committed outbox rows to the job queue
type Dispatcher interface {
	Kick(ctx context.Context)
}

// Engine applies session mutations. Mutations on one session are serialized
// in-process, and the session row's version column catches writers in other
// processes.
type Engine struct {
	store      *storage.Store
	publisher  broadcast.Publisher
	dispatcher Dispatcher
	locks      *keylock.Locker
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine creates a session engine. publisher and dispatcher may be nil.
func NewEngine(store *storage.Store, publisher broadcast.Publisher, dispatcher Dispatcher, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		publisher:  publisher,
		dispatcher: dispatcher,
		locks:      keylock.New(),
		logger:     logger,
		now:        storage.Now,
	}
}

// Create opens a session in the waiting state. Everything is validated
// before the first write. The scorer secret, when requested, is returned
// here and never again.
func (e *Engine) Create(ctx context.Context, in domain.CreateSessionInput, actor domain.Actor) (*domain.LiveSession, string, error) {
	if actor.Anonymous() {
		return nil, "", fmt.Errorf("creating a session requires a user: %w", domain.ErrForbidden)
	}
	member, err := e.store.IsActiveMember(ctx, in.LeagueID, actor.UserID)
	if err != nil {
		return nil, "", err
	}
	if !member && !actor.Admin {
		return nil, "", fmt.Errorf("not a member of league %s: %w", in.LeagueID, domain.ErrForbidden)
	}

	season, err := e.resolveSeason(ctx, in.LeagueID, in.SeasonID)
	if err != nil {
		return nil, "", err
	}
	if err := ValidatePlayers(in.Mode, in.Players); err != nil {
		return nil, "", err
	}

	ids := make([]string, len(in.Players))
	for i, p := range in.Players {
		ids[i] = p.PlayerID
	}
	nicknames, err := e.store.PlayersInLeague(ctx, in.LeagueID, ids)
	if err != nil {
		return nil, "", fmt.Errorf("loading players: %w", err)
	}
	verr := &domain.ValidationError{}
	for _, id := range ids {
		if _, ok := nicknames[id]; !ok {
			verr.Add("players", fmt.Sprintf("player %s not found in league", id))
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, "", err
	}

	shareToken, err := auth.RandomToken(shareTokenLen)
	if err != nil {
		return nil, "", fmt.Errorf("generating share token: %w", err)
	}
	var secret, secretHash string
	if in.GenerateScorerLink {
		if secret, err = auth.RandomToken(scorerSecretLen); err != nil {
			return nil, "", fmt.Errorf("generating scorer secret: %w", err)
		}
		if secretHash, err = auth.HashSecret(secret); err != nil {
			return nil, "", fmt.Errorf("hashing scorer secret: %w", err)
		}
	}

	now := e.now()
	creator := actor.UserID
	sess := &domain.LiveSession{
		ID:               storage.NewID(),
		LeagueID:         in.LeagueID,
		SeasonID:         season.ID,
		ShareToken:       shareToken,
		ScorerSecretHash: secretHash,
		Mode:             in.Mode,
		Status:           domain.StatusWaiting,
		CreatedBy:        &creator,
		CreatedAt:        now,
		UpdatedAt:        now,
		Events:           []domain.SessionEvent{},
	}
	for _, p := range in.Players {
		p.Nickname = nicknames[p.PlayerID]
		sess.Players = append(sess.Players, p)
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, "", err
	}

	logging.Info(e.logger, "live session created", logging.FieldSessionID, sess.ID,
		logging.FieldLeagueID, sess.LeagueID, logging.FieldMode, sess.Mode)
	return sess, secret, nil
}

func (e *Engine) resolveSeason(ctx context.Context, leagueID, seasonID string) (*domain.Season, error) {
	if seasonID == "" {
		season, err := e.store.ActiveSeason(ctx, leagueID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError("season_id", "league has no active season")
		}
		return season, err
	}
	season, err := e.store.GetSeason(ctx, seasonID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && season.LeagueID != leagueID) {
		return nil, domain.NewValidationError("season_id", "season not found in league")
	}
	return season, err
}

// PublicSession is what spectators see through the share token
type PublicSession struct {
	ShareToken       string                 `json:"share_token"`
	Mode             domain.Mode            `json:"mode"`
	Status           domain.SessionStatus   `json:"status"`
	ScoreA           int                    `json:"team_a_score"`
	ScoreB           int                    `json:"team_b_score"`
	Players          []domain.SessionPlayer `json:"players"`
	Events           []domain.SessionEvent  `json:"events"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	EndedAt          *time.Time             `json:"ended_at,omitempty"`
	FinalizedMatchID *string                `json:"finalized_match_id,omitempty"`
	CanScore         bool                   `json:"can_score"`
}

// GetByShareToken returns the public view of a session. Undone events are
// left out.
func (e *Engine) GetByShareToken(ctx context.Context, token string, actor domain.Actor) (*PublicSession, error) {
	sess, err := e.store.GetSessionByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	canScore, err := e.CanScore(ctx, sess, actor)
	if err != nil {
		return nil, err
	}

	view := &PublicSession{
		ShareToken:       sess.ShareToken,
		Mode:             sess.Mode,
		Status:           sess.Status,
		ScoreA:           sess.ScoreA,
		ScoreB:           sess.ScoreB,
		Players:          sess.Players,
		Events:           []domain.SessionEvent{},
		StartedAt:        sess.StartedAt,
		EndedAt:          sess.EndedAt,
		FinalizedMatchID: sess.FinalizedMatchID,
		CanScore:         canScore,
	}
	for _, ev := range sess.Events {
		if !ev.Undone() {
			view.Events = append(view.Events, ev)
		}
	}
	return view, nil
}

// Lookup resolves a share token without any access check.
func (e *Engine) Lookup(ctx context.Context, token string) (*domain.LiveSession, error) {
	return e.store.GetSessionByShareToken(ctx, token)
}

// GetByID returns the full session, undone events included, to league
// members. Anyone else gets not found.
func (e *Engine) GetByID(ctx context.Context, id string, actor domain.Actor) (*domain.LiveSession, error) {
	sess, err := e.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := e.isMember(ctx, sess.LeagueID, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("live session: %w", domain.ErrNotFound)
	}
	return sess, nil
}

// ListActive returns a league's waiting, active, and paused sessions.
func (e *Engine) ListActive(ctx context.Context, leagueID string, actor domain.Actor) ([]domain.LiveSession, error) {
	ok, err := e.isMember(ctx, leagueID, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("not a member of league %s: %w", leagueID, domain.ErrForbidden)
	}
	sessions, err := e.store.ListActiveSessions(ctx, leagueID)
	if sessions == nil {
		sessions = []domain.LiveSession{}
	}
	return sessions, err
}

// Delete removes a session with its players and events. A match it was
// finalized into is kept.
func (e *Engine) Delete(ctx context.Context, id string, actor domain.Actor) error {
	sess, err := e.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	allowed := actor.Admin
	if !allowed && !actor.Anonymous() {
		if allowed, err = e.store.IsLeagueAdmin(ctx, sess.LeagueID, actor.UserID); err != nil {
			return err
		}
	}
	if !allowed {
		return fmt.Errorf("deleting a session requires a league admin: %w", domain.ErrForbidden)
	}

	unlock := e.locks.Lock(sess.ID)
	defer unlock()
	if err := e.store.DeleteSession(ctx, sess.ID); err != nil {
		return err
	}
	logging.Info(e.logger, "live session deleted", logging.FieldSessionID, sess.ID)
	return nil
}

// Timeline returns the live event history behind a finalized match.
func (e *Engine) Timeline(ctx context.Context, matchID string) (*domain.Timeline, error) {
	return e.store.MatchTimeline(ctx, matchID)
}

func (e *Engine) isMember(ctx context.Context, leagueID string, actor domain.Actor) (bool, error) {
	if actor.Admin {
		return true, nil
	}
	if actor.Anonymous() {
		return false, nil
	}
	return e.store.IsActiveMember(ctx, leagueID, actor.UserID)
}

// CanScore reports whether actor may mutate sess: its creator, a user
// playing in it, an active league member, or a holder of the scorer secret.
func (e *Engine) CanScore(ctx context.Context, sess *domain.LiveSession, actor domain.Actor) (bool, error) {
	if !actor.Anonymous() {
		if sess.CreatedBy != nil && *sess.CreatedBy == actor.UserID {
			return true, nil
		}
		users, err := e.store.SessionPlayerUserIDs(ctx, sess.ID)
		if err != nil {
			return false, err
		}
		for _, u := range users {
			if u == actor.UserID {
				return true, nil
			}
		}
		member, err := e.store.IsActiveMember(ctx, sess.LeagueID, actor.UserID)
		if err != nil || member {
			return member, err
		}
	}
	return auth.CheckSecret(actor.ScorerSecret, sess.ScorerSecretHash), nil
}

// mutate loads the session behind token, checks the actor, and runs fn
// under the session lock. fn changes the session and persists it; the
// events it returns are published once it succeeds.
func (e *Engine) mutate(ctx context.Context, token string, actor domain.Actor, fn func(*domain.LiveSession) ([]domain.Event, error)) (*domain.LiveSession, error) {
	sess, err := e.store.GetSessionByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	ok, err := e.CanScore(ctx, sess, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("not allowed to score this session: %w", domain.ErrForbidden)
	}

	unlock := e.locks.Lock(sess.ID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		// reload under the lock so fn sees every earlier mutation
		if sess, err = e.store.GetSession(ctx, sess.ID); err != nil {
			return nil, err
		}
		events, err := fn(sess)
		if err == nil {
			e.publish(sess, events)
			return sess, nil
		}
		if !errors.Is(err, storage.ErrStaleSession) {
			return nil, err
		}
		if attempt == maxStaleRetries {
			return nil, domain.NewConflict(domain.ReasonConcurrentUpdate, "session %s kept changing, try again", sess.ID)
		}
		logging.Warn(e.logger, "stale session write, retrying", logging.FieldSessionID, sess.ID, logging.FieldAttempt, attempt)
	}
}

func (e *Engine) publish(sess *domain.LiveSession, events []domain.Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range events {
		e.publisher.Publish(sess.ShareToken, ev)
	}
}
