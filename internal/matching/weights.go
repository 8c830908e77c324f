package matching

import (
	"landmatch/server/config"
	"landmatch/server/internal/models"
)

// Weights holds every tunable constant used by the scorer. Multipliers are applied to
// the customer's 1-5 priority for the category that owns them.
type Weights struct {
	AreaMultiplier       float64
	PriceMultiplier      float64
	SizeMultiplier       float64
	StationMultiplier    float64
	FacilityMultiplier   float64
	RoadWidthMultiplier  float64
	LotFeatureMultiplier float64

	// UnmatchedAreaCredit is the share of the area weight given when no desired area matches
	UnmatchedAreaCredit float64
	// OpenRangePriceCredit is the share given for an affordable property when only a max price is set
	OpenRangePriceCredit float64
	// OverBudgetDecay scales how fast price credit falls per unit of over-budget rate
	OverBudgetDecay float64

	// SizeWindowMin and SizeWindowMax derive the acceptable land area window from the
	// preferred area when no explicit bound is set
	SizeWindowMin   float64
	SizeWindowMax   float64
	SizeFloorCredit float64

	// AccessDecayMinutes is the excess walk time at which access credit reaches zero
	AccessDecayMinutes float64

	HighThreshold   int
	MediumThreshold int

	// Workers bounds the goroutines used by Batch
	Workers int
}

// DefaultWeights returns the standard scoring constants
func DefaultWeights() Weights {
	return Weights{
		AreaMultiplier:       2 * 5,
		PriceMultiplier:      2 * 4,
		SizeMultiplier:       2 * 3,
		StationMultiplier:    2 * 3,
		FacilityMultiplier:   2,
		RoadWidthMultiplier:  2 * 2,
		LotFeatureMultiplier: 2,
		UnmatchedAreaCredit:  0.3,
		OpenRangePriceCredit: 0.9,
		OverBudgetDecay:      2,
		SizeWindowMin:        0.8,
		SizeWindowMax:        1.5,
		SizeFloorCredit:      0.5,
		AccessDecayMinutes:   10,
		HighThreshold:        70,
		MediumThreshold:      50,
		Workers:              4,
	}
}

// WeightsFromConfig reads the scoring constants from the service configuration
func WeightsFromConfig(cfg *config.Config) Weights {
	m := cfg.Matching
	return Weights{
		AreaMultiplier:       m.AreaMultiplier,
		PriceMultiplier:      m.PriceMultiplier,
		SizeMultiplier:       m.SizeMultiplier,
		StationMultiplier:    m.StationMultiplier,
		FacilityMultiplier:   m.FacilityMultiplier,
		RoadWidthMultiplier:  m.RoadWidthMultiplier,
		LotFeatureMultiplier: m.LotFeatureMultiplier,
		UnmatchedAreaCredit:  m.UnmatchedAreaCredit,
		OpenRangePriceCredit: m.OpenRangePriceCredit,
		OverBudgetDecay:      m.OverBudgetDecay,
		SizeWindowMin:        m.SizeWindowMin,
		SizeWindowMax:        m.SizeWindowMax,
		SizeFloorCredit:      m.SizeFloorCredit,
		AccessDecayMinutes:   m.AccessDecayMinutes,
		HighThreshold:        m.HighThreshold,
		MediumThreshold:      m.MediumThreshold,
		Workers:              m.Workers,
	}
}

// AlertLevel buckets a match score using the configured thresholds
func (w Weights) AlertLevel(score int) models.AlertLevel {
	switch {
	case score >= w.HighThreshold:
		return models.AlertHigh
	case score >= w.MediumThreshold:
		return models.AlertMedium
	default:
		return models.AlertLow
	}
}

// AlertLevelFor classifies a score with the default 70/50 thresholds
func AlertLevelFor(score int) models.AlertLevel {
	return DefaultWeights().AlertLevel(score)
}
