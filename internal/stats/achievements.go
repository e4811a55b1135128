package stats

import (
	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/rating"
)

const (
	flawlessScore  = 10
	giantSlayerGap = 100
	gamelleMaster  = 25
)

type milestone struct {
	kind      domain.AchievementKind
	threshold int
}

var (
	winMilestones     = []milestone{{domain.AchievementWins10, 10}, {domain.AchievementWins50, 50}, {domain.AchievementWins100, 100}}
	matchMilestones   = []milestone{{domain.AchievementMatches10, 10}, {domain.AchievementMatches50, 50}, {domain.AchievementMatches100, 100}}
	streakMilestones  = []milestone{{domain.AchievementWinStreak3, 3}, {domain.AchievementWinStreak5, 5}, {domain.AchievementWinStreak10, 10}}
	gamelleMilestones = []milestone{{domain.AchievementGamelles5, 5}, {domain.AchievementGamelles10, 10}, {domain.AchievementGamelleMaster, gamelleMaster}}
)

type progress struct {
	matches, wins, streak, delivered int
}

type awardKey struct {
	player string
	kind   domain.AchievementKind
}

// Achievements replays a league's history in play order and returns the
// awards first triggered by a match in scope. Each (player, kind) is
// awarded once, at the first match that satisfies it.
func Achievements(leagueID string, history []domain.Match, inScope map[string]bool, params rating.Params) []domain.Achievement {
	ladders := make(map[domain.Mode]*rating.Ladder)
	players := make(map[string]*progress)
	held := make(map[awardKey]bool)
	awards := []domain.Achievement{}

	award := func(m *domain.Match, playerID string, kind domain.AchievementKind, value int) {
		key := awardKey{playerID, kind}
		if held[key] {
			return
		}
		held[key] = true
		if !inScope[m.ID] {
			return
		}
		a := domain.Achievement{
			PlayerID:       playerID,
			LeagueID:       leagueID,
			Kind:           kind,
			TriggerMatchID: m.ID,
			AwardedAt:      m.PlayedAt,
		}
		if value > 0 {
			v := value
			a.Progress = &v
		}
		awards = append(awards, a)
	}

	for i := range history {
		m := &history[i]

		ladder, ok := ladders[m.Mode]
		if !ok {
			ladder = rating.NewLadder(params)
			ladders[m.Mode] = ladder
		}
		avg := map[domain.Side]float64{
			domain.SideA: ladder.SideAverage(m.SidePlayers(domain.SideA)),
			domain.SideB: ladder.SideAverage(m.SidePlayers(domain.SideB)),
		}
		_, rateErr := ladder.Apply(m)

		for _, ev := range m.Events {
			if ev.ByPlayerID == nil {
				continue
			}
			p := players[*ev.ByPlayerID]
			if p == nil {
				p = &progress{}
				players[*ev.ByPlayerID] = p
			}
			p.delivered += ev.Count * ev.Kind.Weight()
		}

		for _, mp := range m.Players {
			p := players[mp.PlayerID]
			if p == nil {
				p = &progress{}
				players[mp.PlayerID] = p
			}
			won := m.Result(mp.Side) > 0
			p.matches++
			if won {
				p.wins++
				p.streak++
			} else {
				p.streak = 0
			}

			if won && p.wins == 1 {
				award(m, mp.PlayerID, domain.AchievementFirstWin, 0)
			}
			for _, ms := range matchMilestones {
				if p.matches >= ms.threshold {
					award(m, mp.PlayerID, ms.kind, ms.threshold)
				}
			}
			if won {
				for _, ms := range winMilestones {
					if p.wins >= ms.threshold {
						award(m, mp.PlayerID, ms.kind, ms.threshold)
					}
				}
				for _, ms := range streakMilestones {
					if p.streak >= ms.threshold {
						award(m, mp.PlayerID, ms.kind, ms.threshold)
					}
				}
				if m.Score(mp.Side) == flawlessScore && m.Score(mp.Side.Opponent()) == 0 {
					award(m, mp.PlayerID, domain.AchievementFlawless, 0)
				}
				if rateErr == nil && avg[mp.Side.Opponent()]-avg[mp.Side] >= giantSlayerGap {
					award(m, mp.PlayerID, domain.AchievementGiantSlayer, 0)
				}
			}
		}

		for _, id := range deliverers(m) {
			p := players[id]
			award(m, id, domain.AchievementFirstGamelle, 0)
			for _, ms := range gamelleMilestones {
				if p.delivered >= ms.threshold {
					award(m, id, ms.kind, ms.threshold)
				}
			}
		}
	}
	return awards
}

// deliverers lists who delivered a penalty in m, in event order.
func deliverers(m *domain.Match) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, ev := range m.Events {
		if ev.ByPlayerID == nil || seen[*ev.ByPlayerID] {
			continue
		}
		seen[*ev.ByPlayerID] = true
		ids = append(ids, *ev.ByPlayerID)
	}
	return ids
}
