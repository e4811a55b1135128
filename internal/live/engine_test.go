package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ string, ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type countingDispatcher struct{ kicks atomic.Int32 }

func (d *countingDispatcher) Kick(context.Context) { d.kicks.Add(1) }

type harness struct {
	*testutil.Fixture
	engine     *Engine
	pub        *recordingPublisher
	dispatcher *countingDispatcher
	member     domain.Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := testutil.Seed(t, testutil.NewStore(t), 4)
	h := &harness{
		Fixture:    f,
		pub:        &recordingPublisher{},
		dispatcher: &countingDispatcher{},
		member:     domain.Actor{UserID: "user-0"},
	}
	h.engine = NewEngine(f.Store, h.pub, h.dispatcher, nil)
	return h
}

func (h *harness) roster(mode domain.Mode) []domain.SessionPlayer {
	switch mode {
	case domain.Mode2v2:
		return []domain.SessionPlayer{
			{PlayerID: h.PlayerID(0), Side: domain.SideA, Role: domain.RoleAttack},
			{PlayerID: h.PlayerID(1), Side: domain.SideA, Role: domain.RoleDefense},
			{PlayerID: h.PlayerID(2), Side: domain.SideB, Role: domain.RoleAttack},
			{PlayerID: h.PlayerID(3), Side: domain.SideB, Role: domain.RoleDefense},
		}
	case domain.Mode2v1:
		return []domain.SessionPlayer{
			{PlayerID: h.PlayerID(0), Side: domain.SideA, Role: domain.RoleAttack},
			{PlayerID: h.PlayerID(1), Side: domain.SideB, Role: domain.RoleAttack},
			{PlayerID: h.PlayerID(2), Side: domain.SideB, Role: domain.RoleDefense},
		}
	}
	return []domain.SessionPlayer{
		{PlayerID: h.PlayerID(0), Side: domain.SideA, Role: domain.RoleAttack},
		{PlayerID: h.PlayerID(1), Side: domain.SideB, Role: domain.RoleAttack},
	}
}

func (h *harness) create(t *testing.T, mode domain.Mode, secret bool) (*domain.LiveSession, string) {
	t.Helper()
	sess, sec, err := h.engine.Create(context.Background(), domain.CreateSessionInput{
		LeagueID:           h.League.ID,
		SeasonID:           h.Season.ID,
		Mode:               mode,
		Players:            h.roster(mode),
		GenerateScorerLink: secret,
	}, h.member)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess, sec
}

func (h *harness) record(t *testing.T, token string, typ domain.EventType, side domain.Side) *domain.SessionEvent {
	t.Helper()
	ev, _, err := h.engine.RecordEvent(context.Background(), token, domain.EventInput{Type: typ, Side: side}, h.member)
	if err != nil {
		t.Fatalf("record %s: %v", typ, err)
	}
	return ev
}

func (h *harness) score(t *testing.T, token string) (int, int) {
	t.Helper()
	sess, err := h.Store.GetSessionByShareToken(context.Background(), token)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return sess.ScoreA, sess.ScoreB
}

func conflictReason(err error) string {
	var ce *domain.ConflictError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}

func TestCreateRejectsWrongCardinalityBeforeWriting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.engine.Create(ctx, domain.CreateSessionInput{
		LeagueID: h.League.ID,
		SeasonID: h.Season.ID,
		Mode:     domain.Mode2v2,
		Players:  h.roster(domain.Mode2v2)[:3],
	}, h.member)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Fields["players"] == "" {
		t.Fatalf("expected a players field error, got %v", err)
	}

	active, err := h.Store.ListActiveSessions(ctx, h.League.ID)
	if err != nil || len(active) != 0 {
		t.Fatalf("nothing should be persisted, got %d sessions (%v)", len(active), err)
	}
}

func TestValidatePlayers(t *testing.T) {
	a := func(id string, side domain.Side, role domain.Role) domain.SessionPlayer {
		return domain.SessionPlayer{PlayerID: id, Side: side, Role: role}
	}
	tests := []struct {
		name    string
		mode    domain.Mode
		players []domain.SessionPlayer
		field   string
	}{
		{"1v1 ok", domain.Mode1v1, []domain.SessionPlayer{a("p1", "A", "attack"), a("p2", "B", "attack")}, ""},
		{"1v1 same side", domain.Mode1v1, []domain.SessionPlayer{a("p1", "A", "attack"), a("p2", "A", "defense")}, "teams"},
		{"2v2 two attackers", domain.Mode2v2, []domain.SessionPlayer{
			a("p1", "A", "attack"), a("p2", "A", "attack"), a("p3", "B", "attack"), a("p4", "B", "defense"),
		}, "team_a_positions"},
		{"2v1 pair on B", domain.Mode2v1, []domain.SessionPlayer{a("p1", "A", "attack"), a("p2", "B", "attack"), a("p3", "B", "defense")}, ""},
		{"2v1 three on one side", domain.Mode2v1, []domain.SessionPlayer{a("p1", "A", "attack"), a("p2", "A", "defense"), a("p3", "A", "attack")}, "teams"},
		{"duplicate", domain.Mode1v1, []domain.SessionPlayer{a("p1", "A", "attack"), a("p1", "B", "attack")}, "duplicate_players"},
		{"bad side", domain.Mode1v1, []domain.SessionPlayer{a("p1", "C", "attack"), a("p2", "B", "attack")}, "players[0].team"},
		{"unknown mode", domain.Mode("3v3"), nil, "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlayers(tt.mode, tt.players)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid roster, got %v", err)
				}
				return
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || verr.Fields[tt.field] == "" {
				t.Fatalf("expected error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestCreateRejectsPlayersOutsideLeague(t *testing.T) {
	h := newHarness(t)
	players := h.roster(domain.Mode1v1)
	players[1].PlayerID = "someone-else"

	_, _, err := h.engine.Create(context.Background(), domain.CreateSessionInput{
		LeagueID: h.League.ID, Mode: domain.Mode1v1, Players: players,
	}, h.member)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateIssuesTokens(t *testing.T) {
	h := newHarness(t)
	sess, secret := h.create(t, domain.Mode2v1, true)

	if len(sess.ShareToken) != shareTokenLen || len(secret) != scorerSecretLen {
		t.Fatalf("unexpected token lengths: share %d, secret %d", len(sess.ShareToken), len(secret))
	}
	if sess.ScorerSecretHash == "" || sess.ScorerSecretHash == secret {
		t.Fatal("scorer secret must be stored hashed")
	}
	if sess.Status != domain.StatusWaiting || sess.Players[0].Nickname == "" {
		t.Fatalf("unexpected session %+v", sess)
	}

	_, none := h.create(t, domain.Mode1v1, false)
	if none != "" {
		t.Fatal("no secret should be issued unless asked for")
	}
}

func TestLobbedPenaltyAndUndo(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.create(t, domain.Mode1v1, false)

	h.record(t, sess.ShareToken, domain.EventGoal, domain.SideA)
	h.record(t, sess.ShareToken, domain.EventGoal, domain.SideA)
	lob := h.record(t, sess.ShareToken, domain.EventLobbed, domain.SideA)

	if a, b := h.score(t, sess.ShareToken); a != -1 || b != 0 {
		t.Fatalf("expected -1-0 after the lob, got %d-%d", a, b)
	}

	score, err := h.engine.UndoEvent(context.Background(), sess.ShareToken, lob.ID, h.member)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if score.ScoreA != 2 || score.ScoreB != 0 {
		t.Fatalf("expected 2-0 after undo, got %+v", score)
	}

	_, err = h.engine.UndoEvent(context.Background(), sess.ShareToken, lob.ID, h.member)
	if conflictReason(err) != domain.ReasonAlreadyUndone {
		t.Fatalf("expected already undone conflict, got %v", err)
	}
}

func TestUndoingEverythingRestoresStartingScore(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.create(t, domain.Mode1v1, false)
	ctx := context.Background()

	if _, err := h.engine.SetScore(ctx, sess.ShareToken, 3, 1, h.member); err != nil {
		t.Fatalf("set score: %v", err)
	}

	sequence := []struct {
		typ  domain.EventType
		side domain.Side
	}{
		{domain.EventGoal, domain.SideA}, {domain.EventGamellized, domain.SideB}, {domain.EventTimeout, domain.SideA},
		{domain.EventLobbed, domain.SideA}, {domain.EventGoal, domain.SideB}, {domain.EventCustom, ""},
		{domain.EventGoal, domain.SideB}, {domain.EventGamellized, domain.SideA},
	}
	var ids []string
	for _, s := range sequence {
		ids = append(ids, h.record(t, sess.ShareToken, s.typ, s.side).ID)
	}

	// undo out of order, interleaved with more recording
	order := []int{3, 0, 7, 5, 1, 6, 2, 4}
	for i := 0; i < len(order); i++ {
		idx := order[i]
		if _, err := h.engine.UndoEvent(ctx, sess.ShareToken, ids[idx], h.member); err != nil {
			t.Fatalf("undo %d: %v", idx, err)
		}
		if i == 3 {
			extra := h.record(t, sess.ShareToken, domain.EventLobbed, domain.SideB)
			ids = append(ids, extra.ID)
			order = append(order, len(ids)-1)
		}
	}

	if a, b := h.score(t, sess.ShareToken); a != 3 || b != 1 {
		t.Fatalf("expected 3-1 after undoing everything, got %d-%d", a, b)
	}
}

func TestConcurrentEventsOnOppositeSides(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.create(t, domain.Mode1v1, false)

	const perSide = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*perSide)
	for i := 0; i < perSide; i++ {
		for _, side := range []domain.Side{domain.SideA, domain.SideB} {
			wg.Add(1)
			go func(side domain.Side) {
				defer wg.Done()
				_, _, err := h.engine.RecordEvent(context.Background(), sess.ShareToken,
					domain.EventInput{Type: domain.EventGoal, Side: side}, h.member)
				errs <- err
			}(side)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	loaded, err := h.Store.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ScoreA != perSide || loaded.ScoreB != perSide || len(loaded.Events) != 2*perSide {
		t.Fatalf("lost update: %d-%d with %d events", loaded.ScoreA, loaded.ScoreB, len(loaded.Events))
	}
	for i, ev := range loaded.Events {
		if ev.Seq != int64(i+1) {
			t.Fatalf("event log out of order at %d: seq %d", i, ev.Seq)
		}
	}
}

func TestFirstEventActivatesSession(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.create(t, domain.Mode1v1, false)

	h.record(t, sess.ShareToken, domain.EventGoal, domain.SideB)

	loaded, _ := h.Store.GetSession(context.Background(), sess.ID)
	if loaded.Status != domain.StatusActive || loaded.StartedAt == nil {
		t.Fatalf("expected active session with started_at, got %s", loaded.Status)
	}
	got := h.pub.types()
	if len(got) != 2 || got[0] != domain.EventStatusChange || got[1] != domain.EventGoalScored {
		t.Fatalf("expected status-change before goal, got %v", got)
	}
}

func TestStatusTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, _ := h.create(t, domain.Mode1v1, false)

	if _, err := h.engine.ChangeStatus(ctx, sess.ShareToken, domain.StatusPaused, h.member); conflictReason(err) != domain.ReasonInvalidTransition {
		t.Fatalf("waiting -> paused must be rejected, got %v", err)
	}
	if _, err := h.engine.ChangeStatus(ctx, sess.ShareToken, domain.StatusActive, h.member); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.engine.ChangeStatus(ctx, sess.ShareToken, domain.StatusPaused, h.member); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, _, err := h.engine.RecordEvent(ctx, sess.ShareToken, domain.EventInput{Type: domain.EventGoal, Side: domain.SideA}, h.member)
	if conflictReason(err) != domain.ReasonNotRecording {
		t.Fatalf("recording while paused must be rejected, got %v", err)
	}

	done, err := h.engine.Abandon(ctx, sess.ShareToken, h.member)
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if done.EndedAt == nil {
		t.Fatal("terminal status must stamp ended_at")
	}
	if _, err := h.engine.SetScore(ctx, sess.ShareToken, 1, 1, h.member); conflictReason(err) != domain.ReasonTerminalSession {
		t.Fatalf("terminal session must reject mutations, got %v", err)
	}
	if _, err := h.engine.Finalize(ctx, sess.ShareToken, true, h.member); conflictReason(err) != domain.ReasonAbandoned {
		t.Fatalf("abandoned session must not finalize, got %v", err)
	}
}

func TestEventValidation(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.create(t, domain.Mode1v1, false)
	outsider := h.PlayerID(3)
	long := make([]byte, domain.MaxCustomTypeLen+1)
	for i := range long {
		long[i] = 'x'
	}

	for name, in := range map[string]domain.EventInput{
		"unknown type":   {Type: "own-goal", Side: domain.SideA},
		"bad side":       {Type: domain.EventGoal, Side: "C"},
		"outsider":       {Type: domain.EventGamellized, Side: domain.SideA, TargetPlayerID: &outsider},
		"long label":     {Type: domain.EventCustom, CustomType: string(long)},
		"negative clock": {Type: domain.EventTimeout, ElapsedSeconds: -1},
	} {
		_, _, err := h.engine.RecordEvent(context.Background(), sess.ShareToken, in, h.member)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}

	if _, err := h.engine.SetScore(context.Background(), sess.ShareToken, 21, 0, h.member); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("score above bound must be rejected, got %v", err)
	}
}

func TestFinalizeOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, _ := h.create(t, domain.Mode1v1, false)

	target := h.PlayerID(1)
	by := h.PlayerID(0)
	h.record(t, sess.ShareToken, domain.EventGoal, domain.SideA)
	_, _, err := h.engine.RecordEvent(ctx, sess.ShareToken, domain.EventInput{
		Type: domain.EventGamellized, Side: domain.SideB, TargetPlayerID: &target, ActorPlayerID: &by, ElapsedSeconds: 40,
	}, h.member)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	undone, _, _ := h.engine.RecordEvent(ctx, sess.ShareToken, domain.EventInput{
		Type: domain.EventLobbed, Side: domain.SideB, TargetPlayerID: &target,
	}, h.member)
	if _, err := h.engine.UndoEvent(ctx, sess.ShareToken, undone.ID, h.member); err != nil {
		t.Fatalf("undo: %v", err)
	}
	h.record(t, sess.ShareToken, domain.EventLobbed, domain.SideB) // no target, stays in the session log

	if _, err := h.engine.Finalize(ctx, sess.ShareToken, false, h.member); conflictReason(err) != domain.ReasonConfirmRequired {
		t.Fatalf("finalize without confirm must be rejected, got %v", err)
	}

	m, err := h.engine.Finalize(ctx, sess.ShareToken, true, h.member)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if m.ScoreA != 1 || m.ScoreB != -4 || len(m.Players) != 2 {
		t.Fatalf("unexpected match %+v", m)
	}
	if len(m.Events) != 1 || m.Events[0].Kind != domain.MatchEventGamelle || m.Events[0].AgainstPlayerID != target {
		t.Fatalf("expected only the kept gamelle to carry over, got %+v", m.Events)
	}
	_, err = h.engine.Finalize(ctx, sess.ShareToken, true, h.member)
	if conflictReason(err) != domain.ReasonAlreadyFinalized {
		t.Fatalf("second finalize must conflict, got %v", err)
	}

	matches, err := h.Store.ListValidMatches(ctx, h.League.ID, h.Season.ID)
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected exactly one match, got %d (%v)", len(matches), err)
	}
	loaded, _ := h.Store.GetSession(ctx, sess.ID)
	if loaded.Status != domain.StatusCompleted || loaded.FinalizedMatchID == nil || *loaded.FinalizedMatchID != m.ID {
		t.Fatalf("session not linked to match: %+v", loaded)
	}
	if !loaded.StartedAt.Equal(m.PlayedAt) {
		t.Fatalf("played_at should be the session start, got %v want %v", m.PlayedAt, loaded.StartedAt)
	}

	pending, _ := h.Store.PendingOutbox(ctx, 10)
	if len(pending) != 2 {
		t.Fatalf("expected a rating and a stats job in the outbox, got %d", len(pending))
	}
	if h.dispatcher.kicks.Load() != 1 {
		t.Fatalf("expected one dispatch kick, got %d", h.dispatcher.kicks.Load())
	}
}

func TestScoringAuthorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, secret := h.create(t, domain.Mode1v1, true)
	goal := domain.EventInput{Type: domain.EventGoal, Side: domain.SideA}

	for name, actor := range map[string]domain.Actor{
		"anonymous":    {},
		"wrong secret": {ScorerSecret: "not-the-secret"},
		"stranger":     {UserID: "stranger"},
	} {
		if _, _, err := h.engine.RecordEvent(ctx, sess.ShareToken, goal, actor); !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("%s: expected forbidden, got %v", name, err)
		}
	}

	if _, _, err := h.engine.RecordEvent(ctx, sess.ShareToken, goal, domain.Actor{ScorerSecret: secret}); err != nil {
		t.Fatalf("secret holder should score: %v", err)
	}
	if _, _, err := h.engine.RecordEvent(ctx, "no-such-token", goal, h.member); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown token should be not found, got %v", err)
	}

	view, err := h.engine.GetByShareToken(ctx, sess.ShareToken, domain.Actor{})
	if err != nil || view.CanScore {
		t.Fatalf("anonymous spectator must not be able to score: %+v %v", view, err)
	}
	if _, err := h.engine.GetByID(ctx, sess.ID, domain.Actor{UserID: "stranger"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("non-members must not see the full session, got %v", err)
	}
}

func TestPublicViewHidesUndoneEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, _ := h.create(t, domain.Mode1v1, false)

	h.record(t, sess.ShareToken, domain.EventGoal, domain.SideA)
	ev := h.record(t, sess.ShareToken, domain.EventGoal, domain.SideB)
	if _, err := h.engine.UndoEvent(ctx, sess.ShareToken, ev.ID, h.member); err != nil {
		t.Fatalf("undo: %v", err)
	}

	view, err := h.engine.GetByShareToken(ctx, sess.ShareToken, h.member)
	if err != nil {
		t.Fatalf("public view: %v", err)
	}
	if len(view.Events) != 1 || !view.CanScore {
		t.Fatalf("expected one visible event for a scorer, got %+v", view)
	}

	full, err := h.engine.GetByID(ctx, sess.ID, h.member)
	if err != nil || len(full.Events) != 2 {
		t.Fatalf("member view should keep undone events: %v", err)
	}
}
