package live

import (
	"fmt"

	"github.com/foospulse/foospulse/internal/domain"
)

// ValidatePlayers checks a roster against the mode's layout: 1v1 is one
// player a side, 2v2 is an attacker and a defender on each side, and 2v1
// puts an attacker and a defender on one side against a single player.
func ValidatePlayers(mode domain.Mode, players []domain.SessionPlayer) error {
	if !mode.Valid() {
		return domain.NewValidationError("mode", fmt.Sprintf("unknown mode %q", mode))
	}
	if want := mode.PlayerCount(); len(players) != want {
		return domain.NewValidationError("players", fmt.Sprintf("%s requires exactly %d players", mode, want))
	}

	verr := &domain.ValidationError{}
	seen := make(map[string]bool, len(players))
	bySide := map[domain.Side][]domain.Role{}
	for i, p := range players {
		switch {
		case p.PlayerID == "":
			verr.Add(fmt.Sprintf("players[%d].player_id", i), "required")
		case seen[p.PlayerID]:
			verr.Add("duplicate_players", "each player can only be in the match once")
		}
		seen[p.PlayerID] = true
		if !p.Side.Valid() {
			verr.Add(fmt.Sprintf("players[%d].team", i), "must be A or B")
			continue
		}
		if !p.Role.Valid() {
			verr.Add(fmt.Sprintf("players[%d].position", i), "must be attack or defense")
			continue
		}
		bySide[p.Side] = append(bySide[p.Side], p.Role)
	}
	if !verr.Empty() {
		return verr
	}

	a, b := bySide[domain.SideA], bySide[domain.SideB]
	switch mode {
	case domain.Mode1v1:
		if len(a) != 1 || len(b) != 1 {
			verr.Add("teams", "each team must have exactly 1 player")
		}
	case domain.Mode2v2:
		if len(a) != 2 || len(b) != 2 {
			verr.Add("teams", "each team must have exactly 2 players")
			break
		}
		if !fullPair(a) {
			verr.Add("team_a_positions", "team A must have one attacker and one defender")
		}
		if !fullPair(b) {
			verr.Add("team_b_positions", "team B must have one attacker and one defender")
		}
	case domain.Mode2v1:
		pair := a
		if len(b) == 2 {
			pair = b
		}
		if len(pair) != 2 || len(a)+len(b) != 3 {
			verr.Add("teams", "one team must have 2 players and the other 1")
		} else if !fullPair(pair) {
			verr.Add("positions", "the team of two must have one attacker and one defender")
		}
	}
	return verr.OrNil()
}

func fullPair(roles []domain.Role) bool {
	return len(roles) == 2 && roles[0] != roles[1]
}

// ValidateEvent checks an event against the session it is recorded in.
func ValidateEvent(sess *domain.LiveSession, in domain.EventInput) error {
	verr := &domain.ValidationError{}
	if !in.Type.Valid() {
		verr.Add("event_type", fmt.Sprintf("unknown event type %q", in.Type))
	}
	if in.Side != "" && !in.Side.Valid() {
		verr.Add("team", "must be A or B")
	}
	if in.ActorPlayerID != nil && !sess.HasPlayer(*in.ActorPlayerID) {
		verr.Add("by_player_id", "player is not in this session")
	}
	if in.TargetPlayerID != nil && !sess.HasPlayer(*in.TargetPlayerID) {
		verr.Add("against_player_id", "player is not in this session")
	}
	if len([]rune(in.CustomType)) > domain.MaxCustomTypeLen {
		verr.Add("custom_type", fmt.Sprintf("at most %d characters", domain.MaxCustomTypeLen))
	}
	if in.ElapsedSeconds < 0 {
		verr.Add("elapsed_seconds", "must not be negative")
	}
	return verr.OrNil()
}

// ValidateScore checks a manual score override.
func ValidateScore(scoreA, scoreB int) error {
	verr := &domain.ValidationError{}
	for field, v := range map[string]int{"team_a_score": scoreA, "team_b_score": scoreB} {
		if v < domain.MinManualScore || v > domain.MaxManualScore {
			verr.Add(field, fmt.Sprintf("must be between %d and %d", domain.MinManualScore, domain.MaxManualScore))
		}
	}
	return verr.OrNil()
}
