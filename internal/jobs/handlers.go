package jobs

import (
	"context"
	"fmt"

	"github.com/foospulse/foospulse/internal/rating"
	"github.com/foospulse/foospulse/internal/stats"
)

// NewHandlers binds each job kind to the engine that processes it.
func NewHandlers(ratings *rating.Engine, st *stats.Engine) map[Kind]Handler {
	return map[Kind]Handler{
		KindRatingUpdate: func(ctx context.Context, job Job) error {
			var p RatingUpdatePayload
			if err := job.Decode(&p); err != nil {
				return err
			}
			if p.MatchID == "" {
				return Permanent(fmt.Errorf("rating_update without match_id"))
			}
			out, err := ratings.ProcessMatch(ctx, p.MatchID)
			if err != nil {
				return err
			}
			if out.Skipped {
				return Skip(out.Reason)
			}
			return nil
		},
		KindRatingRecompute: func(ctx context.Context, job Job) error {
			var p RatingRecomputePayload
			if err := job.Decode(&p); err != nil {
				return err
			}
			if p.LeagueID == "" {
				return Permanent(fmt.Errorf("rating_recompute without league_id"))
			}
			_, err := ratings.Recompute(ctx, p.LeagueID)
			return err
		},
		KindStatsRecompute: func(ctx context.Context, job Job) error {
			var p StatsRecomputePayload
			if err := job.Decode(&p); err != nil {
				return err
			}
			if p.LeagueID == "" || p.SeasonID == "" {
				return Permanent(fmt.Errorf("stats_recompute without league_id and season_id"))
			}
			out, err := st.Recompute(ctx, p.LeagueID, p.SeasonID)
			if err != nil {
				return err
			}
			if out.Skipped {
				return Skip(out.Reason)
			}
			return nil
		},
	}
}
