package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/storage"
)

// NewStore opens a fresh on-disk SQLite store that is closed with the test.
func NewStore(t testing.TB) *storage.Store {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "foospulse.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Fixture is a seeded league with one active season and a roster.
type Fixture struct {
	Store   *storage.Store
	League  domain.League
	Season  domain.Season
	Players []domain.Player
}

// Seed creates a league, an active season, and n players, each linked to a
// member user "user-<i>".
func Seed(t testing.TB, store *storage.Store, n int) *Fixture {
	t.Helper()
	ctx := context.Background()

	f := &Fixture{Store: store}
	f.League = domain.League{Name: "Office", Slug: fmt.Sprintf("office-%d", time.Now().UnixNano())}
	if err := store.CreateLeague(ctx, &f.League); err != nil {
		t.Fatalf("create league: %v", err)
	}
	f.Season = domain.Season{LeagueID: f.League.ID, Name: "Season 1", IsActive: true}
	if err := store.CreateSeason(ctx, &f.Season); err != nil {
		t.Fatalf("create season: %v", err)
	}

	for i := 0; i < n; i++ {
		userID := fmt.Sprintf("user-%d", i)
		p := domain.Player{LeagueID: f.League.ID, Nickname: fmt.Sprintf("player-%d", i), UserID: &userID}
		if err := store.CreatePlayer(ctx, &p); err != nil {
			t.Fatalf("create player: %v", err)
		}
		if err := store.AddLeagueMember(ctx, domain.LeagueMember{LeagueID: f.League.ID, UserID: userID, Active: true}); err != nil {
			t.Fatalf("add member: %v", err)
		}
		f.Players = append(f.Players, p)
	}
	return f
}

// PlayerID returns the id of the i-th seeded player.
func (f *Fixture) PlayerID(i int) string {
	return f.Players[i].ID
}

// AddMatch records a valid match directly. sideA and sideB are player
// indexes; the first on each side attacks.
func (f *Fixture) AddMatch(t testing.TB, mode domain.Mode, scoreA, scoreB int, playedAt time.Time, sideA, sideB []int, events ...domain.MatchEvent) *domain.Match {
	t.Helper()
	m := &domain.Match{
		LeagueID: f.League.ID,
		SeasonID: f.Season.ID,
		Mode:     mode,
		ScoreA:   scoreA,
		ScoreB:   scoreB,
		PlayedAt: playedAt.UTC().Truncate(time.Microsecond),
		Events:   events,
	}
	add := func(side domain.Side, idx []int) {
		for i, pi := range idx {
			role := domain.RoleAttack
			if i > 0 {
				role = domain.RoleDefense
			}
			m.Players = append(m.Players, domain.MatchPlayer{PlayerID: f.PlayerID(pi), Side: side, Role: role})
		}
	}
	add(domain.SideA, sideA)
	add(domain.SideB, sideB)

	if err := f.Store.CreateMatch(context.Background(), m, nil); err != nil {
		t.Fatalf("create match: %v", err)
	}
	return m
}
