// Package stats computes the cached league season aggregates: leaderboards,
// synergy, matchups and achievements.
package stats

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/foospulse/foospulse/internal/domain"
)

// SourceHash identifies a match set by its ids and creation times. Order of
// the input does not matter.
func SourceHash(matches []domain.Match) string {
	parts := make([]string, len(matches))
	for i := range matches {
		parts[i] = matches[i].ID + ":" + matches[i].CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// SeasonSourceHash identifies the inputs of a season's snapshots. Awards
// replay league history, so matches from other seasons that play before the
// season's last match count too. With no such matches it equals SourceHash.
// history must be in play order.
func SeasonSourceHash(season, history []domain.Match) string {
	inSeason := make(map[string]bool, len(season))
	for i := range season {
		inSeason[season[i].ID] = true
	}
	last := -1
	for i := range history {
		if inSeason[history[i].ID] {
			last = i
		}
	}
	var earlier []domain.Match
	for i := 0; i <= last; i++ {
		if !inSeason[history[i].ID] {
			earlier = append(earlier, history[i])
		}
	}

	own := SourceHash(season)
	if len(earlier) == 0 {
		return own
	}
	sum := sha256.Sum256([]byte(own + "|" + SourceHash(earlier)))
	return hex.EncodeToString(sum[:])
}
