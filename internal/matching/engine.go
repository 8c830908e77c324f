package matching

import (
	"math"

	"landmatch/server/internal/models"
)

// AreaResolver expands an area name into the names it stands for, e.g. a named
// group of municipalities. Names that are not groups resolve to themselves.
type AreaResolver interface {
	Expand(area string) []string
}

type identityResolver struct{}

func (identityResolver) Expand(area string) []string {
	return []string{area}
}

// Engine scores land conditions against properties. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	weights Weights
	areas   AreaResolver
}

type Option func(*Engine)

// WithAreaResolver makes the engine expand desired and excluded areas before matching
func WithAreaResolver(r AreaResolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.areas = r
		}
	}
}

// NewEngine creates an engine with the given scoring constants
func NewEngine(w Weights, opts ...Option) *Engine {
	if w.Workers <= 0 {
		w.Workers = 1
	}
	e := &Engine{weights: w, areas: identityResolver{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine(DefaultWeights())

// Weights returns the engine's scoring constants
func (e *Engine) Weights() Weights {
	return e.weights
}

// scorecard accumulates category contributions for one pair
type scorecard struct {
	total   float64
	max     float64
	details []models.MatchDetail
}

func (s *scorecard) add(category, label string, weight, credit float64, reason string) {
	if weight <= 0 {
		return
	}
	score := math.Max(0, math.Min(weight, weight*credit))
	s.total += score
	s.max += weight
	s.details = append(s.details, models.MatchDetail{
		Category: category,
		Label:    label,
		Score:    math.Round(score*10) / 10,
		MaxScore: weight,
		Reason:   reason,
	})
}

// Calculate scores one property against one customer's conditions. Categories the
// conditions leave open, or the property cannot be compared on, are skipped.
func (e *Engine) Calculate(c *models.LandConditions, p *models.LandProperty) models.MatchResult {
	card := &scorecard{details: make([]models.MatchDetail, 0, 8)}
	pr := c.Priorities.Clamp()

	e.scoreArea(card, c, p, pr)
	e.scorePrice(card, c, p, pr)
	e.scoreSize(card, c, p, pr)
	e.scoreStation(card, c, p, pr)
	e.scoreFacilities(card, c, p, pr)
	e.scoreRoadWidth(card, c, p, pr)
	e.scoreLotFeatures(card, c, p, pr)

	score := 0
	if card.max > 0 {
		score = int(math.Round(100 * card.total / card.max))
	}

	return models.MatchResult{
		PropertyID:   p.ID,
		CustomerID:   c.CustomerID,
		MatchScore:   score,
		MatchDetails: card.details,
		AlertLevel:   e.weights.AlertLevel(score),
	}
}

// CalculateLandMatch scores a pair with the default weights and no area groups
func CalculateLandMatch(c *models.LandConditions, p *models.LandProperty) models.MatchResult {
	return defaultEngine.Calculate(c, p)
}
