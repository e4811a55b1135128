package rating

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/storage"
	"github.com/foospulse/foospulse/internal/testutil"
)

func TestProcessMatchShutout(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 2)
	engine := NewEngine(f.Store, DefaultParams(), nil)

	m := f.AddMatch(t, domain.Mode1v1, 10, 0, time.Now(), []int{0}, []int{1})
	out, err := engine.ProcessMatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Skipped || out.Snapshots != 2 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	winner, loser := out.NewRatings[f.PlayerID(0)], out.NewRatings[f.PlayerID(1)]
	if winner <= 1200 || loser >= 1200 {
		t.Fatalf("expected winner above and loser below 1200, got %d / %d", winner, loser)
	}
	if winner != 1216 || loser != 1184 {
		t.Fatalf("expected 1216 / 1184, got %d / %d", winner, loser)
	}
}

func TestProcessMatchIsIdempotentUnderDuplicates(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 4)
	engine := NewEngine(f.Store, DefaultParams(), nil)
	m := f.AddMatch(t, domain.Mode2v2, 10, 6, time.Now(), []int{0, 1}, []int{2, 3})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.ProcessMatch(ctx, m.ID); err != nil {
				t.Errorf("process: %v", err)
			}
		}()
	}
	wg.Wait()

	snaps, err := f.Store.MatchRatings(ctx, m.ID)
	if err != nil {
		t.Fatalf("match ratings: %v", err)
	}
	if len(snaps) != 4 {
		t.Fatalf("expected one snapshot per participant, got %d", len(snaps))
	}

	out, _ := engine.ProcessMatch(ctx, m.ID)
	if !out.Skipped || out.Reason != ReasonAlreadyRated {
		t.Fatalf("expected already_rated skip, got %+v", out)
	}
}

func TestProcessMatchSkipsVoidAndMissing(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 2)
	engine := NewEngine(f.Store, DefaultParams(), nil)

	m := f.AddMatch(t, domain.Mode1v1, 10, 3, time.Now(), []int{0}, []int{1})
	if err := f.Store.VoidMatch(ctx, m.ID, "entered twice", nil); err != nil {
		t.Fatalf("void: %v", err)
	}
	if out, _ := engine.ProcessMatch(ctx, m.ID); out.Reason != ReasonMatchVoid {
		t.Fatalf("expected void skip, got %+v", out)
	}
	if out, _ := engine.ProcessMatch(ctx, "nope"); out.Reason != ReasonMatchMissing {
		t.Fatalf("expected missing skip, got %+v", out)
	}

	oneSided := f.AddMatch(t, domain.Mode1v1, 10, 0, time.Now(), []int{0}, nil)
	if out, _ := engine.ProcessMatch(ctx, oneSided.ID); out.Reason != ReasonMissingSide {
		t.Fatalf("expected missing side skip, got %+v", out)
	}
}

func TestBulkRecomputeMatchesIncremental(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 4)
	engine := NewEngine(f.Store, DefaultParams(), nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lines := []struct {
		a, b   []int
		sa, sb int
	}{
		{[]int{0}, []int{1}, 10, 4},
		{[]int{2}, []int{0}, 10, 9},
		{[]int{1}, []int{3}, 2, 10},
		{[]int{3}, []int{0}, 10, 0},
		{[]int{0}, []int{2}, 7, 10},
		{[]int{1}, []int{2}, 10, 8},
	}
	for i, l := range lines {
		m := f.AddMatch(t, domain.Mode1v1, l.sa, l.sb, base.Add(time.Duration(i)*time.Hour), l.a, l.b)
		if _, err := engine.ProcessMatch(ctx, m.ID); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	incremental, err := engine.CurrentRatings(ctx, f.League.ID, domain.Mode1v1)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	before, _ := f.Store.LeagueRatings(ctx, f.League.ID, domain.Mode1v1)

	out, err := engine.Recompute(ctx, f.League.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if out.Matches != len(lines) {
		t.Fatalf("expected %d replayed matches, got %d", len(lines), out.Matches)
	}

	after, _ := f.Store.LeagueRatings(ctx, f.League.ID, domain.Mode1v1)
	if len(after) != len(before) {
		t.Fatalf("ledger size changed: %d vs %d", len(after), len(before))
	}
	for i := range before {
		if before[i].PlayerID != after[i].PlayerID || before[i].MatchID != after[i].MatchID ||
			before[i].Rating != after[i].Rating || before[i].Previous != after[i].Previous {
			t.Fatalf("ledger row %d differs: %+v vs %+v", i, before[i], after[i])
		}
	}

	replayed, _ := engine.CurrentRatings(ctx, f.League.ID, domain.Mode1v1)
	for i := range incremental {
		if incremental[i].PlayerID != replayed[i].PlayerID || incremental[i].Rating != replayed[i].Rating {
			t.Fatalf("current ratings differ at %d: %+v vs %+v", i, incremental[i], replayed[i])
		}
	}
}

// sameRatings fails unless the incremental ladder equals a clean replay
func sameRatings(t *testing.T, engine *Engine, leagueID string, mode domain.Mode) {
	t.Helper()
	ctx := context.Background()
	incremental, err := engine.CurrentRatings(ctx, leagueID, mode)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if _, err := engine.RecomputeMode(ctx, leagueID, mode); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	replayed, _ := engine.CurrentRatings(ctx, leagueID, mode)
	if len(incremental) != len(replayed) {
		t.Fatalf("ladder size differs: %d vs %d", len(incremental), len(replayed))
	}
	for i := range incremental {
		if incremental[i].PlayerID != replayed[i].PlayerID || incremental[i].Rating != replayed[i].Rating {
			t.Fatalf("rating %d differs from replay: %+v vs %+v", i, incremental[i], replayed[i])
		}
	}
}

func TestLateArrivingMatchReplaysInPlayOrder(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 3)
	engine := NewEngine(f.Store, DefaultParams(), nil)

	t0 := time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)
	earlier := f.AddMatch(t, domain.Mode1v1, 10, 5, t0, []int{0}, []int{1})
	later := f.AddMatch(t, domain.Mode1v1, 3, 10, t0.Add(time.Hour), []int{0}, []int{2})

	out, err := engine.ProcessMatch(ctx, later.ID)
	if err != nil || out.Replayed {
		t.Fatalf("process later: %+v, %v", out, err)
	}
	out, err = engine.ProcessMatch(ctx, earlier.ID)
	if err != nil {
		t.Fatalf("process earlier: %v", err)
	}
	if !out.Replayed || out.Matches != 2 {
		t.Fatalf("expected a two-match replay, got %+v", out)
	}

	history, _ := f.Store.PlayerRatingHistory(ctx, f.PlayerID(0), domain.Mode1v1)
	if len(history) != 2 || history[0].MatchID != earlier.ID || history[1].MatchID != later.ID {
		t.Fatalf("expected ledger in play order, got %+v", history)
	}
	if history[1].Previous != history[0].Rating {
		t.Fatalf("second rating does not build on the first: %+v", history)
	}

	if out, _ := engine.ProcessMatch(ctx, earlier.ID); out.Reason != ReasonAlreadyRated {
		t.Fatalf("expected already_rated after replay, got %+v", out)
	}
	sameRatings(t, engine, f.League.ID, domain.Mode1v1)
}

func TestEnginesOnSharedDatabaseDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	first, err := storage.New(path)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	defer first.Close()
	second, err := storage.New(path)
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	defer second.Close()

	a := NewEngine(first, DefaultParams(), nil)
	b := NewEngine(second, DefaultParams(), nil)
	t0 := time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)

	for round := 0; round < 10; round++ {
		f := testutil.Seed(t, first, 3)
		m1 := f.AddMatch(t, domain.Mode1v1, 10, 4, t0, []int{0}, []int{1})
		m2 := f.AddMatch(t, domain.Mode1v1, 10, 7, t0.Add(time.Minute), []int{0}, []int{2})

		var wg sync.WaitGroup
		for _, job := range []struct {
			engine  *Engine
			matchID string
		}{{a, m1.ID}, {b, m2.ID}} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := job.engine.ProcessMatch(ctx, job.matchID); err != nil {
					t.Errorf("round %d: process %s: %v", round, job.matchID, err)
				}
			}()
		}
		wg.Wait()

		history, err := first.PlayerRatingHistory(ctx, f.PlayerID(0), domain.Mode1v1)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("round %d: expected two snapshots for player 0, got %d", round, len(history))
		}
		if history[0].Previous != DefaultParams().Base || history[1].Previous != history[0].Rating {
			t.Fatalf("round %d: lost update in %+v", round, history)
		}
		sameRatings(t, a, f.League.ID, domain.Mode1v1)
	}
}

func TestRecomputeDropsVoidedMatches(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 2)
	engine := NewEngine(f.Store, DefaultParams(), nil)

	m := f.AddMatch(t, domain.Mode1v1, 10, 0, time.Now(), []int{0}, []int{1})
	if _, err := engine.ProcessMatch(ctx, m.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := f.Store.VoidMatch(ctx, m.ID, "wrong league", nil); err != nil {
		t.Fatalf("void: %v", err)
	}
	if _, err := engine.Recompute(ctx, f.League.ID); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	current, _ := engine.CurrentRatings(ctx, f.League.ID, domain.Mode1v1)
	if len(current) != 0 {
		t.Fatalf("expected empty ladder after void, got %+v", current)
	}
}

func TestPredictFavoursHigherRated(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 2)
	engine := NewEngine(f.Store, DefaultParams(), nil)

	m := f.AddMatch(t, domain.Mode1v1, 10, 0, time.Now(), []int{0}, []int{1})
	if _, err := engine.ProcessMatch(ctx, m.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	p, err := engine.Predict(ctx, f.League.ID, domain.Mode1v1, []string{f.PlayerID(0)}, []string{f.PlayerID(1)})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if p.WinProbA <= 0.5 || p.AverageA != 1216 {
		t.Fatalf("unexpected prediction: %+v", p)
	}
	if _, err := engine.Predict(ctx, f.League.ID, domain.Mode1v1, nil, []string{"x"}); err == nil {
		t.Fatal("expected validation error for empty side")
	}
}
