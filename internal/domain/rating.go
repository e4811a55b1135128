package domain

import "time"

// RatingSnapshot is a player's rating immediately after a match. Never mutated.
type RatingSnapshot struct {
	Seq        int64     `json:"seq"`
	LeagueID   string    `json:"league_id"`
	SeasonID   string    `json:"season_id"`
	PlayerID   string    `json:"player_id"`
	Mode       Mode      `json:"mode"`
	MatchID    string    `json:"as_of_match_id"`
	Rating     int       `json:"rating"`
	Previous   int       `json:"previous_rating"`
	ComputedAt time.Time `json:"computed_at"`
}

// Delta is the change this match caused.
func (r RatingSnapshot) Delta() int {
	return r.Rating - r.Previous
}

// PlayerRating is the current rating of a player in one mode
type PlayerRating struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname,omitempty"`
	Mode     Mode   `json:"mode"`
	Rating   int    `json:"rating"`
	Matches  int    `json:"n_matches"`
}
