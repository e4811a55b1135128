package stats

import (
	"sort"

	"github.com/foospulse/foospulse/internal/domain"
)

const (
	minPairMatches = 2
	duoLimit       = 10
	matchupLimit   = 50
)

// Duo is a same-team pairing's record
type Duo struct {
	Player1ID       string  `json:"player1_id"`
	Player1Nickname string  `json:"player1_nickname"`
	Player2ID       string  `json:"player2_id"`
	Player2Nickname string  `json:"player2_nickname"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRate         float64 `json:"win_rate"`
	Matches         int     `json:"n_matches"`
}

// Synergy lists the best and worst 2v2 duos
type Synergy struct {
	Best  []Duo `json:"best_duos"`
	Worst []Duo `json:"worst_duos"`
}

// Matchup is a 1v1 head-to-head record. Player1 sorts before Player2.
type Matchup struct {
	Player1ID       string `json:"player1_id"`
	Player1Nickname string `json:"player1_nickname"`
	Player2ID       string `json:"player2_id"`
	Player2Nickname string `json:"player2_nickname"`
	Player1Wins     int    `json:"player1_wins"`
	Player2Wins     int    `json:"player2_wins"`
	Draws           int    `json:"draws"`
	Matches         int    `json:"n_matches"`
}

type pairKey struct{ a, b string }

func orderedPair(x, y string) (pairKey, bool) {
	if x > y {
		return pairKey{y, x}, true
	}
	return pairKey{x, y}, false
}

// ComputeSynergy ranks 2v2 duos with at least two joint matches.
func ComputeSynergy(matches []domain.Match, nicknames map[string]string) Synergy {
	type record struct{ wins, losses int }
	records := make(map[pairKey]*record)

	for i := range matches {
		m := &matches[i]
		if m.Mode != domain.Mode2v2 {
			continue
		}
		for _, side := range []domain.Side{domain.SideA, domain.SideB} {
			ids := m.SidePlayers(side)
			if len(ids) != 2 {
				continue
			}
			key, _ := orderedPair(ids[0], ids[1])
			r, ok := records[key]
			if !ok {
				r = &record{}
				records[key] = r
			}
			if m.Result(side) > 0 {
				r.wins++
			} else {
				r.losses++
			}
		}
	}

	duos := []Duo{}
	for key, r := range records {
		total := r.wins + r.losses
		if total < minPairMatches {
			continue
		}
		duos = append(duos, Duo{
			Player1ID:       key.a,
			Player1Nickname: nickname(nicknames, key.a),
			Player2ID:       key.b,
			Player2Nickname: nickname(nicknames, key.b),
			Wins:            r.wins,
			Losses:          r.losses,
			WinRate:         ratio(r.wins, total),
			Matches:         total,
		})
	}

	tiebreak := func(a, b Duo) bool {
		if a.Matches != b.Matches {
			return a.Matches > b.Matches
		}
		if a.Player1ID != b.Player1ID {
			return a.Player1ID < b.Player1ID
		}
		return a.Player2ID < b.Player2ID
	}

	best := append([]Duo{}, duos...)
	sort.Slice(best, func(i, j int) bool {
		if best[i].WinRate != best[j].WinRate {
			return best[i].WinRate > best[j].WinRate
		}
		return tiebreak(best[i], best[j])
	})
	worst := append([]Duo{}, duos...)
	sort.Slice(worst, func(i, j int) bool {
		if worst[i].WinRate != worst[j].WinRate {
			return worst[i].WinRate < worst[j].WinRate
		}
		return tiebreak(worst[i], worst[j])
	})

	return Synergy{Best: limit(best, duoLimit), Worst: limit(worst, duoLimit)}
}

// ComputeMatchups returns 1v1 head-to-heads with at least two matches,
// most played first.
func ComputeMatchups(matches []domain.Match, nicknames map[string]string) []Matchup {
	records := make(map[pairKey]*Matchup)

	for i := range matches {
		m := &matches[i]
		if m.Mode != domain.Mode1v1 || len(m.Players) != 2 {
			continue
		}
		a, b := m.SidePlayers(domain.SideA), m.SidePlayers(domain.SideB)
		if len(a) != 1 || len(b) != 1 {
			continue
		}
		key, swapped := orderedPair(a[0], b[0])
		r, ok := records[key]
		if !ok {
			r = &Matchup{
				Player1ID:       key.a,
				Player1Nickname: nickname(nicknames, key.a),
				Player2ID:       key.b,
				Player2Nickname: nickname(nicknames, key.b),
			}
			records[key] = r
		}
		r.Matches++
		result := m.Result(domain.SideA)
		if swapped {
			result = -result
		}
		switch result {
		case 1:
			r.Player1Wins++
		case -1:
			r.Player2Wins++
		default:
			r.Draws++
		}
	}

	out := []Matchup{}
	for _, r := range records {
		if r.Matches >= minPairMatches {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Matches != out[j].Matches {
			return out[i].Matches > out[j].Matches
		}
		if out[i].Player1ID != out[j].Player1ID {
			return out[i].Player1ID < out[j].Player1ID
		}
		return out[i].Player2ID < out[j].Player2ID
	})
	return limit(out, matchupLimit)
}

func limit[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
