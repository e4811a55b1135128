package stats

import (
	"math"
	"sort"

	"github.com/foospulse/foospulse/internal/domain"
)

// Leaderboard names
const (
	BoardWinRate           = "win_rate"
	BoardAttackWinRate     = "attack_win_rate"
	BoardDefenseWinRate    = "defense_win_rate"
	BoardGamellesDelivered = "gamelles_delivered"
	BoardGamellesReceived  = "gamelles_received"
	BoardCurrentStreak     = "current_streak"
)

// Board is one ranked leaderboard
type Board struct {
	Name    string       `json:"name"`
	Entries []BoardEntry `json:"entries"`
}

// BoardEntry is a ranked player on a board
type BoardEntry struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"player_id"`
	Nickname string  `json:"nickname"`
	Value    float64 `json:"value"`
	Matches  int     `json:"n_matches"`
}

// playerLine accumulates one player's record over a match set
type playerLine struct {
	matches, wins                 int
	attackMatches, attackWins     int
	defenseMatches, defenseWins   int
	gamellesDelivered, gamellesIn int
	results                       []bool
}

// currentStreak is positive for a run of wins and negative for a run of
// non-wins, counted back from the latest match.
func (l *playerLine) currentStreak() int {
	if len(l.results) == 0 {
		return 0
	}
	last := l.results[len(l.results)-1]
	n := 0
	for i := len(l.results) - 1; i >= 0 && l.results[i] == last; i-- {
		n++
	}
	if !last {
		return -n
	}
	return n
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*1000) / 1000
}

// tally builds per-player lines from matches in play order. Draws count as
// non-wins for both sides.
func tally(matches []domain.Match) map[string]*playerLine {
	lines := make(map[string]*playerLine)
	line := func(id string) *playerLine {
		l, ok := lines[id]
		if !ok {
			l = &playerLine{}
			lines[id] = l
		}
		return l
	}

	for i := range matches {
		m := &matches[i]
		for _, p := range m.Players {
			l := line(p.PlayerID)
			won := m.Result(p.Side) > 0
			l.matches++
			if won {
				l.wins++
			}
			if p.Role == domain.RoleAttack {
				l.attackMatches++
				if won {
					l.attackWins++
				}
			} else {
				l.defenseMatches++
				if won {
					l.defenseWins++
				}
			}
			l.results = append(l.results, won)
		}
		for _, ev := range m.Events {
			n := ev.Count * ev.Kind.Weight()
			line(ev.AgainstPlayerID).gamellesIn += n
			if ev.ByPlayerID != nil {
				line(*ev.ByPlayerID).gamellesDelivered += n
			}
		}
	}
	return lines
}

// Leaderboards ranks every player that appeared in matches.
func Leaderboards(matches []domain.Match, nicknames map[string]string) map[string]Board {
	lines := tally(matches)

	build := func(name string, value func(*playerLine) float64, ascending bool) Board {
		entries := []BoardEntry{}
		for id, l := range lines {
			if l.matches == 0 {
				continue
			}
			entries = append(entries, BoardEntry{
				PlayerID: id,
				Nickname: nickname(nicknames, id),
				Value:    value(l),
				Matches:  l.matches,
			})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Value != entries[j].Value {
				if ascending {
					return entries[i].Value < entries[j].Value
				}
				return entries[i].Value > entries[j].Value
			}
			return entries[i].PlayerID < entries[j].PlayerID
		})
		for i := range entries {
			entries[i].Rank = i + 1
		}
		return Board{Name: name, Entries: entries}
	}

	return map[string]Board{
		BoardWinRate: build(BoardWinRate, func(l *playerLine) float64 {
			return ratio(l.wins, l.matches)
		}, false),
		BoardAttackWinRate: build(BoardAttackWinRate, func(l *playerLine) float64 {
			return ratio(l.attackWins, l.attackMatches)
		}, false),
		BoardDefenseWinRate: build(BoardDefenseWinRate, func(l *playerLine) float64 {
			return ratio(l.defenseWins, l.defenseMatches)
		}, false),
		BoardGamellesDelivered: build(BoardGamellesDelivered, func(l *playerLine) float64 {
			return float64(l.gamellesDelivered)
		}, false),
		BoardGamellesReceived: build(BoardGamellesReceived, func(l *playerLine) float64 {
			return float64(l.gamellesIn)
		}, true),
		BoardCurrentStreak: build(BoardCurrentStreak, func(l *playerLine) float64 {
			return float64(l.currentStreak())
		}, false),
	}
}

func nickname(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return "Unknown"
}
