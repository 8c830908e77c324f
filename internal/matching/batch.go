package matching

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"landmatch/server/internal/models"
)

type ranked struct {
	result   models.MatchResult
	listedAt time.Time
}

// rank scores every available property for one customer and keeps scores at or
// above minScore, in property order.
func (e *Engine) rank(c *models.LandConditions, properties []*models.LandProperty, minScore int) []ranked {
	var out []ranked
	for _, p := range properties {
		if !p.IsAvailable() {
			continue
		}
		res := e.Calculate(c, p)
		if res.MatchScore < minScore {
			continue
		}
		out = append(out, ranked{result: res, listedAt: p.ListedAt})
	}
	return out
}

// sortRanked orders by score, then newest listing first. Remaining ties keep
// encounter order.
func sortRanked(rs []ranked) []models.MatchResult {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].result.MatchScore != rs[j].result.MatchScore {
			return rs[i].result.MatchScore > rs[j].result.MatchScore
		}
		return rs[i].listedAt.After(rs[j].listedAt)
	})
	out := make([]models.MatchResult, len(rs))
	for i, r := range rs {
		out[i] = r.result
	}
	return out
}

// MatchCustomer ranks the available properties for a single customer, keeping
// results at or above minScore.
func (e *Engine) MatchCustomer(c *models.LandConditions, properties []*models.LandProperty, minScore int) []models.MatchResult {
	return sortRanked(e.rank(c, properties, minScore))
}

// Batch scores every conditions/property pair, drops properties that are not
// available and results below the medium threshold, and returns the rest best first.
// Customers are scored concurrently; the output does not depend on scheduling.
func (e *Engine) Batch(ctx context.Context, conditions []*models.LandConditions, properties []*models.LandProperty) ([]models.MatchResult, error) {
	perCustomer := make([][]ranked, len(conditions))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.weights.Workers)
	for i, c := range conditions {
		i, c := i, c
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			perCustomer[i] = e.rank(c, properties, e.weights.MediumThreshold)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []ranked
	for _, rs := range perCustomer {
		all = append(all, rs...)
	}
	return sortRanked(all), nil
}

// BatchMatchLandProperties runs Batch with the default engine
func BatchMatchLandProperties(conditions []*models.LandConditions, properties []*models.LandProperty) []models.MatchResult {
	results, _ := defaultEngine.Batch(context.Background(), conditions, properties)
	return results
}
