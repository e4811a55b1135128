package stats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/rating"
	"github.com/foospulse/foospulse/internal/testutil"
)

func TestRecomputeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 2)
	engine := NewEngine(f.Store, rating.DefaultParams(), nil)

	f.AddMatch(t, domain.Mode1v1, 10, 0, time.Now().Add(-time.Hour), []int{0}, []int{1})
	f.AddMatch(t, domain.Mode1v1, 10, 7, time.Now(), []int{1}, []int{0})

	first, err := engine.Recompute(ctx, f.League.ID, f.Season.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if first.Skipped || first.Matches != 2 || first.NewAwards == 0 {
		t.Fatalf("unexpected first outcome: %+v", first)
	}
	snap, err := engine.Snapshot(ctx, f.League.ID, f.Season.ID, domain.StatsLeaderboards)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	second, err := engine.Recompute(ctx, f.League.ID, f.Season.ID)
	if err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if !second.Skipped || second.Reason != ReasonUnchanged || second.SourceHash != first.SourceHash {
		t.Fatalf("expected unchanged skip, got %+v", second)
	}
	again, _ := engine.Snapshot(ctx, f.League.ID, f.Season.ID, domain.StatsLeaderboards)
	if !again.ComputedAt.Equal(snap.ComputedAt) {
		t.Fatal("skipped recompute rewrote the snapshot")
	}

	var boards map[string]Board
	if err := json.Unmarshal(snap.Payload, &boards); err != nil {
		t.Fatalf("decode leaderboards: %v", err)
	}
	if len(boards[BoardWinRate].Entries) != 2 {
		t.Fatalf("expected two ranked players, got %+v", boards[BoardWinRate])
	}
}

func TestRecomputeAfterNewMatch(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 2)
	engine := NewEngine(f.Store, rating.DefaultParams(), nil)

	f.AddMatch(t, domain.Mode1v1, 10, 0, time.Now(), []int{0}, []int{1})
	first, _ := engine.Recompute(ctx, f.League.ID, f.Season.ID)

	f.AddMatch(t, domain.Mode1v1, 10, 4, time.Now(), []int{1}, []int{0})
	second, err := engine.Recompute(ctx, f.League.ID, f.Season.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if second.Skipped || second.SourceHash == first.SourceHash {
		t.Fatalf("expected a fresh computation, got %+v", second)
	}

	awards, err := engine.PlayerAchievements(ctx, f.PlayerID(0), f.League.ID)
	if err != nil {
		t.Fatalf("achievements: %v", err)
	}
	kinds := map[domain.AchievementKind]bool{}
	for _, a := range awards {
		if kinds[a.Kind] {
			t.Fatalf("achievement %s awarded twice", a.Kind)
		}
		kinds[a.Kind] = true
	}
	if !kinds[domain.AchievementFirstWin] || !kinds[domain.AchievementFlawless] {
		t.Fatalf("expected first_win and flawless for player 0, got %+v", awards)
	}
}

func TestRecomputeEmptySeasonWritesSnapshots(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 2)
	engine := NewEngine(f.Store, rating.DefaultParams(), nil)

	out, err := engine.Recompute(ctx, f.League.ID, f.Season.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if out.Skipped || out.Matches != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	for _, kind := range domain.AllStatsKinds {
		if _, err := engine.Snapshot(ctx, f.League.ID, f.Season.ID, kind); err != nil {
			t.Fatalf("expected %s snapshot: %v", kind, err)
		}
	}
	if again, _ := engine.Recompute(ctx, f.League.ID, f.Season.ID); !again.Skipped {
		t.Fatal("expected second empty recompute to be skipped")
	}
}

func TestSnapshotRejectsUnknownKind(t *testing.T) {
	f := testutil.Seed(t, testutil.NewStore(t), 0)
	engine := NewEngine(f.Store, rating.DefaultParams(), nil)
	if _, err := engine.Snapshot(context.Background(), f.League.ID, f.Season.ID, "elo"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestVoidInEarlierSeasonRefreshesLaterSeason(t *testing.T) {
	ctx := context.Background()
	f := testutil.Seed(t, testutil.NewStore(t), 2)
	engine := NewEngine(f.Store, rating.DefaultParams(), nil)

	past := domain.Season{LeagueID: f.League.ID, Name: "Season 0"}
	if err := f.Store.CreateSeason(ctx, &past); err != nil {
		t.Fatalf("create season: %v", err)
	}
	t0 := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	old := &domain.Match{
		LeagueID: f.League.ID,
		SeasonID: past.ID,
		Mode:     domain.Mode1v1,
		ScoreA:   10,
		ScoreB:   0,
		PlayedAt: t0,
		Players: []domain.MatchPlayer{
			{PlayerID: f.PlayerID(0), Side: domain.SideA, Role: domain.RoleAttack},
			{PlayerID: f.PlayerID(1), Side: domain.SideB, Role: domain.RoleAttack},
		},
	}
	if err := f.Store.CreateMatch(ctx, old, nil); err != nil {
		t.Fatalf("create match: %v", err)
	}
	f.AddMatch(t, domain.Mode1v1, 10, 6, t0.Add(30*24*time.Hour), []int{0}, []int{1})

	first, err := engine.Recompute(ctx, f.League.ID, f.Season.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if err := f.Store.VoidMatch(ctx, old.ID, "wrong players", nil); err != nil {
		t.Fatalf("void: %v", err)
	}
	second, err := engine.Recompute(ctx, f.League.ID, f.Season.ID)
	if err != nil {
		t.Fatalf("recompute after void: %v", err)
	}
	if second.Skipped || second.SourceHash == first.SourceHash {
		t.Fatalf("expected the void to invalidate the snapshot, got %+v", second)
	}
	snap, err := engine.Snapshot(ctx, f.League.ID, f.Season.ID, domain.StatsAchievements)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.SourceHash != second.SourceHash {
		t.Fatalf("stored hash %s, want %s", snap.SourceHash, second.SourceHash)
	}
}
