package domain

import (
	"encoding/json"
	"time"
)

// StatsKind names a cached statistic payload
type StatsKind string

const (
	StatsLeaderboards StatsKind = "leaderboards"
	StatsSynergy      StatsKind = "synergy"
	StatsMatchups     StatsKind = "matchups"
	StatsAchievements StatsKind = "achievements"
)

// AllStatsKinds lists every kind written by a recompute, in write order.
var AllStatsKinds = []StatsKind{StatsLeaderboards, StatsSynergy, StatsMatchups, StatsAchievements}

// Valid reports whether k is a known kind.
func (k StatsKind) Valid() bool {
	for _, kind := range AllStatsKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// StatsSnapshot is the latest computed payload for one (league, season, kind)
type StatsSnapshot struct {
	LeagueID   string          `json:"league_id"`
	SeasonID   string          `json:"season_id"`
	Kind       StatsKind       `json:"snapshot_type"`
	SourceHash string          `json:"source_hash"`
	Payload    json.RawMessage `json:"data"`
	ComputedAt time.Time       `json:"computed_at"`
}

// AchievementKind names a milestone
type AchievementKind string

const (
	AchievementFirstWin      AchievementKind = "first_win"
	AchievementWins10        AchievementKind = "wins_10"
	AchievementWins50        AchievementKind = "wins_50"
	AchievementWins100       AchievementKind = "wins_100"
	AchievementMatches10     AchievementKind = "matches_10"
	AchievementMatches50     AchievementKind = "matches_50"
	AchievementMatches100    AchievementKind = "matches_100"
	AchievementWinStreak3    AchievementKind = "win_streak_3"
	AchievementWinStreak5    AchievementKind = "win_streak_5"
	AchievementWinStreak10   AchievementKind = "win_streak_10"
	AchievementFirstGamelle  AchievementKind = "first_gamelle"
	AchievementGamelles5     AchievementKind = "gamelles_5"
	AchievementGamelles10    AchievementKind = "gamelles_10"
	AchievementGamelleMaster AchievementKind = "gamelle_master"
	AchievementFlawless      AchievementKind = "flawless"
	AchievementGiantSlayer   AchievementKind = "giant_slayer"
)

// Achievement is an award, held at most once per (player, league, kind)
type Achievement struct {
	PlayerID       string          `json:"player_id"`
	LeagueID       string          `json:"league_id"`
	Kind           AchievementKind `json:"achievement_type"`
	TriggerMatchID string          `json:"trigger_match_id"`
	Progress       *int            `json:"progress_value,omitempty"`
	AwardedAt      time.Time       `json:"unlocked_at"`
}
