package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gosimple/slug"
	flag "github.com/spf13/pflag"

	"github.com/foospulse/foospulse/internal/auth"
	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/jobs"
	"github.com/foospulse/foospulse/internal/storage"
)

func openStore(path string) *storage.Store {
	store, err := storage.New(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cmdRecompute writes a rating rebuild and a stats recompute to the outbox.
// A running relay dispatches them.
func cmdRecompute(args []string) {
	fs := flag.NewFlagSet("recompute", flag.ExitOnError)
	configPath := configFlag(fs)
	leagueID := fs.String("league", "", "league to rebuild (required)")
	seasonID := fs.String("season", "", "season for the stats recompute (default: active season)")
	fs.Parse(args)

	if *leagueID == "" {
		fmt.Fprintln(os.Stderr, "Error: --league is required")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	store := openStore(cfg.Database.Path)
	defer store.Close()
	ctx := context.Background()

	_, err := store.GetLeague(ctx, *leagueID)
	exitOnError(err)

	season := *seasonID
	if season == "" {
		active, err := store.ActiveSeason(ctx, *leagueID)
		exitOnError(err)
		season = active.ID
	}

	entries := []storage.OutboxEntry{jobs.RatingRecompute(*leagueID), jobs.StatsRecompute(*leagueID, season)}
	exitOnError(store.EnqueueOutbox(ctx, entries))

	for _, e := range entries {
		fmt.Printf("queued %s %s\n", e.Kind, e.ID)
	}
	fmt.Printf("The relay dispatches queued jobs within %s.\n", cfg.Outbox.RelayInterval)
}

// cmdToken mints a user token, or an operator token when scopes are given
func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := configFlag(fs)
	userID := fs.String("user", "", "user id for a user token")
	admin := fs.Bool("admin", false, "mark the user as a global admin")
	subject := fs.String("subject", "operator", "subject of an operator token")
	scopes := fs.StringSlice("scope", nil, "operator scope (repeatable): "+strings.Join(auth.KnownScopes, ", "))
	duration := fs.Duration("duration", 0, "token lifetime (default from config)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "Warning: no JWT secret configured, the token is signed with an empty secret")
	}

	if len(*scopes) > 0 {
		for _, s := range *scopes {
			if !slices.Contains(auth.KnownScopes, s) {
				fmt.Fprintf(os.Stderr, "Error: unknown scope %q\n", s)
				os.Exit(1)
			}
		}
		d := *duration
		if d == 0 {
			d = cfg.Auth.OperatorTokenDuration
		}
		token, err := auth.NewService(cfg.Auth.JWTSecret, d).GenerateOperatorToken(*subject, *scopes, d)
		exitOnError(err)
		fmt.Println(token)
		return
	}

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Error: --user or at least one --scope is required")
		os.Exit(1)
	}
	d := *duration
	if d == 0 {
		d = cfg.Auth.TokenDuration
	}
	token, err := auth.NewService(cfg.Auth.JWTSecret, d).GenerateToken(*userID, *userID, *admin)
	exitOnError(err)
	fmt.Println(token)
}

// leagueSlug makes a URL-safe slug from a league name. The timestamp suffix
// lets seed run repeatedly against one database.
func leagueSlug(name string, now time.Time) string {
	base := slug.Make(name)
	if base == "" {
		base = "league"
	}
	return fmt.Sprintf("%s-%d", base, now.Unix())
}

// cmdSeed creates a league with an active season and a roster for local play.
// Player i is linked to user "user-<i>"; user-0 administers the league.
func cmdSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := configFlag(fs)
	name := fs.String("name", "Office League", "league name")
	players := fs.Int("players", 4, "number of players")
	fs.Parse(args)

	if *players < 2 {
		fmt.Fprintln(os.Stderr, "Error: --players must be at least 2")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	store := openStore(cfg.Database.Path)
	defer store.Close()
	ctx := context.Background()

	league := domain.League{
		Name: *name,
		Slug: leagueSlug(*name, time.Now()),
	}
	exitOnError(store.CreateLeague(ctx, &league))
	season := domain.Season{LeagueID: league.ID, Name: fmt.Sprintf("Season %d", time.Now().Year()), IsActive: true}
	exitOnError(store.CreateSeason(ctx, &season))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "LEAGUE\t%s\t%s\n", league.ID, league.Name)
	fmt.Fprintf(w, "SEASON\t%s\t%s\n", season.ID, season.Name)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "PLAYER ID\tNICKNAME\tUSER\tROLE")
	fmt.Fprintln(w, "---------\t--------\t----\t----")

	for i := 0; i < *players; i++ {
		userID := fmt.Sprintf("user-%d", i)
		p := domain.Player{LeagueID: league.ID, Nickname: fmt.Sprintf("player-%d", i), UserID: &userID}
		exitOnError(store.CreatePlayer(ctx, &p))

		role := domain.MemberRolePlayer
		if i == 0 {
			role = domain.MemberRoleAdmin
		}
		exitOnError(store.AddLeagueMember(ctx, domain.LeagueMember{LeagueID: league.ID, UserID: userID, Role: role, Active: true}))
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Nickname, userID, role)
	}
	w.Flush()
}
