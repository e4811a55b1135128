package live

import (
	"context"
	"time"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/jobs"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/storage"
)

// Finalize turns the session into a permanent match and queues its rating
// and stats jobs, all in one transaction. It works once per session.
func (e *Engine) Finalize(ctx context.Context, token string, confirm bool, actor domain.Actor) (*domain.Match, error) {
	if !confirm {
		return nil, domain.NewConflict(domain.ReasonConfirmRequired, "finalizing must be confirmed")
	}

	var match *domain.Match
	sess, err := e.mutate(ctx, token, actor, func(sess *domain.LiveSession) ([]domain.Event, error) {
		if sess.FinalizedMatchID != nil {
			return nil, domain.NewConflict(domain.ReasonAlreadyFinalized, "session already finalized into match %s", *sess.FinalizedMatchID)
		}
		if sess.Status == domain.StatusAbandoned {
			return nil, domain.NewConflict(domain.ReasonAbandoned, "abandoned sessions cannot be finalized")
		}

		now := e.now()
		m := MatchFromSession(sess, now)
		from := sess.Status
		sess.Status = domain.StatusCompleted
		if sess.EndedAt == nil {
			sess.EndedAt = &now
		}
		sess.UpdatedAt = now

		jobsOut := []storage.OutboxEntry{
			jobs.RatingUpdate(m.ID),
			jobs.StatsRecompute(m.LeagueID, m.SeasonID),
		}
		if err := e.store.FinalizeSession(ctx, sess, m, jobsOut); err != nil {
			return nil, err
		}
		sess.FinalizedMatchID = &m.ID
		match = m

		return []domain.Event{domain.NewEvent(domain.EventStatusChange, domain.StatusChanged{
			From: from, Status: sess.Status, FinalizedMatchID: sess.FinalizedMatchID,
		})}, nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info(e.logger, "live session finalized", logging.FieldSessionID, sess.ID,
		logging.FieldMatchID, match.ID, logging.FieldLeagueID, match.LeagueID)
	if e.dispatcher != nil {
		e.dispatcher.Kick(ctx)
	}
	return match, nil
}

// MatchFromSession builds the permanent match for sess. Only penalties that
// were not undone and name a target player are carried over.
func MatchFromSession(sess *domain.LiveSession, now time.Time) *domain.Match {
	playedAt := sess.CreatedAt
	if sess.StartedAt != nil {
		playedAt = *sess.StartedAt
	}
	sessionID := sess.ID
	m := &domain.Match{
		ID:            storage.NewID(),
		LeagueID:      sess.LeagueID,
		SeasonID:      sess.SeasonID,
		Mode:          sess.Mode,
		ScoreA:        sess.ScoreA,
		ScoreB:        sess.ScoreB,
		Status:        domain.MatchValid,
		PlayedAt:      playedAt,
		CreatedAt:     now,
		LiveSessionID: &sessionID,
	}
	for _, p := range sess.Players {
		m.Players = append(m.Players, domain.MatchPlayer{PlayerID: p.PlayerID, Side: p.Side, Role: p.Role})
	}
	for _, ev := range sess.Events {
		if ev.Undone() || ev.TargetPlayerID == nil {
			continue
		}
		var kind domain.MatchEventKind
		switch ev.Type {
		case domain.EventGamellized:
			kind = domain.MatchEventGamelle
		case domain.EventLobbed:
			kind = domain.MatchEventLob
		default:
			continue
		}
		m.Events = append(m.Events, domain.MatchEvent{
			Kind:            kind,
			AgainstPlayerID: *ev.TargetPlayerID,
			ByPlayerID:      ev.ActorPlayerID,
			Count:           1,
			ElapsedSeconds:  ev.ElapsedSeconds,
		})
	}
	return m
}
