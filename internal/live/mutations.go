package live

import (
	"context"
	"fmt"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/storage"
)

func userRef(actor domain.Actor) *string {
	if actor.Anonymous() {
		return nil
	}
	id := actor.UserID
	return &id
}

func terminalConflict(sess *domain.LiveSession) error {
	return domain.NewConflict(domain.ReasonTerminalSession, "session is %s", sess.Status)
}

// activate moves a waiting session to active, stamping started_at the first
// time, and returns the status-change broadcast.
func (e *Engine) activate(sess *domain.LiveSession) domain.Event {
	from := sess.Status
	sess.Status = domain.StatusActive
	if sess.StartedAt == nil {
		now := e.now()
		sess.StartedAt = &now
	}
	return domain.NewEvent(domain.EventStatusChange, domain.StatusChanged{From: from, Status: sess.Status})
}

// RecordEvent appends an event and applies its score delta. The first
// event of a waiting session starts it.
func (e *Engine) RecordEvent(ctx context.Context, token string, in domain.EventInput, actor domain.Actor) (*domain.SessionEvent, domain.ScoreUpdate, error) {
	var recorded domain.SessionEvent
	sess, err := e.mutate(ctx, token, actor, func(sess *domain.LiveSession) ([]domain.Event, error) {
		switch sess.Status {
		case domain.StatusWaiting, domain.StatusActive:
		case domain.StatusPaused:
			return nil, domain.NewConflict(domain.ReasonNotRecording, "session is paused")
		default:
			return nil, terminalConflict(sess)
		}
		if err := ValidateEvent(sess, in); err != nil {
			return nil, err
		}

		var out []domain.Event
		if sess.Status == domain.StatusWaiting {
			out = append(out, e.activate(sess))
		}

		now := e.now()
		ev := domain.SessionEvent{
			ID:             storage.NewID(),
			SessionID:      sess.ID,
			Type:           in.Type,
			Side:           in.Side,
			ActorPlayerID:  in.ActorPlayerID,
			TargetPlayerID: in.TargetPlayerID,
			CustomType:     in.CustomType,
			Metadata:       in.Metadata,
			ElapsedSeconds: in.ElapsedSeconds,
			RecordedBy:     userRef(actor),
			RecordedAt:     now,
		}
		// an event without a side is informational
		if ev.Side != "" {
			ev.Delta = ev.Type.Delta()
			sess.AddScore(ev.Side, ev.Delta)
		}
		sess.UpdatedAt = now

		if err := e.store.AppendEvent(ctx, sess, &ev); err != nil {
			return nil, err
		}
		sess.Events = append(sess.Events, ev)
		recorded = ev

		out = append(out, domain.NewEvent(domain.BroadcastName(ev.Type), domain.EventRecorded{
			Event: ev, ScoreA: sess.ScoreA, ScoreB: sess.ScoreB,
		}))
		return out, nil
	})
	if err != nil {
		return nil, domain.ScoreUpdate{}, err
	}

	logging.Info(e.logger, "live event recorded", logging.FieldSessionID, sess.ID,
		"event_type", recorded.Type, "delta", recorded.Delta)
	return &recorded, domain.ScoreUpdate{ScoreA: sess.ScoreA, ScoreB: sess.ScoreB}, nil
}

// UndoEvent soft-deletes an event and reverses exactly the delta it applied.
// Events may be undone in any order.
func (e *Engine) UndoEvent(ctx context.Context, token, eventID string, actor domain.Actor) (domain.ScoreUpdate, error) {
	sess, err := e.mutate(ctx, token, actor, func(sess *domain.LiveSession) ([]domain.Event, error) {
		if sess.Status.Terminal() {
			return nil, terminalConflict(sess)
		}
		ev := sess.Event(eventID)
		if ev == nil {
			return nil, fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
		}
		if ev.Undone() {
			return nil, domain.NewConflict(domain.ReasonAlreadyUndone, "event %s already undone", ev.ID)
		}

		now := e.now()
		ev.UndoneAt = &now
		sess.AddScore(ev.Side, -ev.Delta)
		sess.UpdatedAt = now
		if err := e.store.MarkEventUndone(ctx, sess, ev); err != nil {
			return nil, err
		}
		return []domain.Event{domain.NewEvent(domain.EventUndo, domain.EventUndone{
			EventID: ev.ID, ScoreA: sess.ScoreA, ScoreB: sess.ScoreB,
		})}, nil
	})
	if err != nil {
		return domain.ScoreUpdate{}, err
	}
	return domain.ScoreUpdate{ScoreA: sess.ScoreA, ScoreB: sess.ScoreB}, nil
}

// SetScore overrides the running score without touching the event log.
func (e *Engine) SetScore(ctx context.Context, token string, scoreA, scoreB int, actor domain.Actor) (domain.ScoreUpdate, error) {
	if err := ValidateScore(scoreA, scoreB); err != nil {
		return domain.ScoreUpdate{}, err
	}
	sess, err := e.mutate(ctx, token, actor, func(sess *domain.LiveSession) ([]domain.Event, error) {
		if sess.Status.Terminal() {
			return nil, terminalConflict(sess)
		}
		sess.ScoreA, sess.ScoreB = scoreA, scoreB
		sess.UpdatedAt = e.now()
		if err := e.store.UpdateSession(ctx, sess); err != nil {
			return nil, err
		}
		return []domain.Event{domain.NewEvent(domain.EventScoreUpdate, domain.ScoreUpdate{
			ScoreA: sess.ScoreA, ScoreB: sess.ScoreB,
		})}, nil
	})
	if err != nil {
		return domain.ScoreUpdate{}, err
	}
	logging.Info(e.logger, "live score overridden", logging.FieldSessionID, sess.ID)
	return domain.ScoreUpdate{ScoreA: sess.ScoreA, ScoreB: sess.ScoreB}, nil
}

// ChangeStatus moves the session along the status table. Entering active the
// first time stamps started_at; entering a terminal status stamps ended_at.
func (e *Engine) ChangeStatus(ctx context.Context, token string, status domain.SessionStatus, actor domain.Actor) (*domain.LiveSession, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	sess, err := e.mutate(ctx, token, actor, func(sess *domain.LiveSession) ([]domain.Event, error) {
		from := sess.Status
		if from.Terminal() {
			return nil, terminalConflict(sess)
		}
		if !domain.CanTransition(from, status) {
			return nil, domain.NewConflict(domain.ReasonInvalidTransition, "cannot move from %s to %s", from, status)
		}

		now := e.now()
		sess.Status = status
		if status == domain.StatusActive && sess.StartedAt == nil {
			sess.StartedAt = &now
		}
		if status.Terminal() {
			sess.EndedAt = &now
		}
		sess.UpdatedAt = now
		if err := e.store.UpdateSession(ctx, sess); err != nil {
			return nil, err
		}
		return []domain.Event{domain.NewEvent(domain.EventStatusChange, domain.StatusChanged{From: from, Status: status})}, nil
	})
	if err != nil {
		return nil, err
	}
	logging.Info(e.logger, "live session status changed", logging.FieldSessionID, sess.ID, "status", sess.Status)
	return sess, nil
}

// Abandon ends the session without creating a match.
func (e *Engine) Abandon(ctx context.Context, token string, actor domain.Actor) (*domain.LiveSession, error) {
	return e.ChangeStatus(ctx, token, domain.StatusAbandoned, actor)
}
