package matching

import (
	"fmt"
	"math"
	"strings"

	"landmatch/server/internal/models"
)

func (e *Engine) expandAll(areas []string) []string {
	out := make([]string, 0, len(areas))
	for _, a := range areas {
		for _, name := range e.areas.Expand(strings.TrimSpace(a)) {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func locatedIn(p *models.LandProperty, area string) bool {
	return strings.Contains(p.Area, area) || strings.Contains(p.Address, area)
}

// scoreArea is evaluated only when desired areas are set. It gives full credit when
// any desired area appears in the property's area label or address, and an excluded
// area vetoes the category.
func (e *Engine) scoreArea(card *scorecard, c *models.LandConditions, p *models.LandProperty, pr models.Priorities) {
	desired := e.expandAll(c.DesiredAreas)
	if len(desired) == 0 {
		return
	}
	weight := float64(pr.Area) * e.weights.AreaMultiplier

	for _, area := range e.expandAll(c.ExcludedAreas) {
		if locatedIn(p, area) {
			card.add("area", "エリア", weight, 0, fmt.Sprintf("除外エリア「%s」に該当", area))
			return
		}
	}

	for _, area := range desired {
		if locatedIn(p, area) {
			card.add("area", "エリア", weight, 1, fmt.Sprintf("希望エリア「%s」に該当", area))
			return
		}
	}
	card.add("area", "エリア", weight, e.weights.UnmatchedAreaCredit,
		fmt.Sprintf("希望エリア外 (%s)", strings.Join(c.DesiredAreas, "・")))
}

// scorePrice is evaluated only when a max price is set. Cheaper never scores lower:
// a property under the min price gets the same credit as one inside the range.
func (e *Engine) scorePrice(card *scorecard, c *models.LandConditions, p *models.LandProperty, pr models.Priorities) {
	if c.MaxPrice == nil {
		return
	}
	weight := float64(pr.Price) * e.weights.PriceMultiplier
	maxPrice := *c.MaxPrice

	if p.Price <= maxPrice {
		switch {
		case c.MinPrice == nil:
			card.add("price", "価格", weight, e.weights.OpenRangePriceCredit,
				fmt.Sprintf("%d万円 (予算%d万円以内)", p.Price, maxPrice))
		case p.Price >= *c.MinPrice:
			card.add("price", "価格", weight, 1,
				fmt.Sprintf("%d万円 (予算%d〜%d万円)", p.Price, *c.MinPrice, maxPrice))
		default:
			card.add("price", "価格", weight, 1,
				fmt.Sprintf("%d万円 (予算下限%d万円未満)", p.Price, *c.MinPrice))
		}
		return
	}

	credit := 0.0
	overRate := math.Inf(1)
	if maxPrice > 0 {
		overRate = float64(p.Price-maxPrice) / float64(maxPrice)
		credit = math.Max(0, 1-e.weights.OverBudgetDecay*overRate)
	}
	reason := fmt.Sprintf("%d万円 (予算%d万円を超過)", p.Price, maxPrice)
	if !math.IsInf(overRate, 1) {
		reason = fmt.Sprintf("%d万円 (予算%d万円を%.0f%%超過)", p.Price, maxPrice, overRate*100)
	}
	card.add("price", "価格", weight, credit, reason)
}

// scoreSize checks the land area against a window derived from the explicit bounds
// or, failing those, from the preferred area. Inside the window credit falls with the
// relative deviation from the preferred area, down to SizeFloorCredit.
func (e *Engine) scoreSize(card *scorecard, c *models.LandConditions, p *models.LandProperty, pr models.Priorities) {
	if c.PreferredLandArea == nil && c.MinLandArea == nil && c.MaxLandArea == nil {
		return
	}
	weight := float64(pr.Size) * e.weights.SizeMultiplier

	lo, hi := 0.0, math.Inf(1)
	switch {
	case c.MinLandArea != nil:
		lo = *c.MinLandArea
	case c.PreferredLandArea != nil:
		lo = *c.PreferredLandArea * e.weights.SizeWindowMin
	}
	switch {
	case c.MaxLandArea != nil:
		hi = *c.MaxLandArea
	case c.PreferredLandArea != nil:
		hi = *c.PreferredLandArea * e.weights.SizeWindowMax
	}

	if p.LandArea < lo || p.LandArea > hi {
		card.add("size", "土地面積", weight, 0,
			fmt.Sprintf("%s坪 (希望範囲%s外)", formatTsubo(p.LandArea), formatWindow(lo, hi)))
		return
	}

	if c.PreferredLandArea == nil || *c.PreferredLandArea <= 0 {
		card.add("size", "土地面積", weight, 1,
			fmt.Sprintf("%s坪 (希望範囲%s内)", formatTsubo(p.LandArea), formatWindow(lo, hi)))
		return
	}
	preferred := *c.PreferredLandArea
	deviation := math.Abs(p.LandArea-preferred) / preferred
	credit := math.Max(e.weights.SizeFloorCredit, 1-deviation)
	card.add("size", "土地面積", weight, credit,
		fmt.Sprintf("%s坪 (希望%s坪)", formatTsubo(p.LandArea), formatTsubo(preferred)))
}

func formatTsubo(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

func formatWindow(lo, hi float64) string {
	if math.IsInf(hi, 1) {
		return formatTsubo(lo) + "坪以上"
	}
	return formatTsubo(lo) + "〜" + formatTsubo(hi) + "坪"
}

// accessCredit is full within the limit and decays linearly per excess minute
func (e *Engine) accessCredit(actual, limit int) float64 {
	if actual <= limit {
		return 1
	}
	if e.weights.AccessDecayMinutes <= 0 {
		return 0
	}
	return math.Max(0, 1-float64(actual-limit)/e.weights.AccessDecayMinutes)
}

func (e *Engine) scoreStation(card *scorecard, c *models.LandConditions, p *models.LandProperty, pr models.Priorities) {
	if c.StationDistance == nil {
		return
	}
	weight := float64(pr.Access) * e.weights.StationMultiplier
	limit := *c.StationDistance
	reason := fmt.Sprintf("徒歩%d分 (希望%d分以内)", p.StationDistance, limit)
	if p.NearestStation != "" {
		reason = fmt.Sprintf("%s駅 徒歩%d分 (希望%d分以内)", strings.TrimSuffix(p.NearestStation, "駅"), p.StationDistance, limit)
	}
	card.add("access", "駅距離", weight, e.accessCredit(p.StationDistance, limit), reason)
}

// scoreFacilities scores walk time to daily facilities. Each is skipped unless both
// the conditions and the property carry it.
func (e *Engine) scoreFacilities(card *scorecard, c *models.LandConditions, p *models.LandProperty, pr models.Priorities) {
	weight := float64(pr.Access) * e.weights.FacilityMultiplier
	facilities := []struct {
		category string
		label    string
		limit    *int
		actual   *int
	}{
		{"school", "小学校", c.SchoolDistance, p.SchoolDistance},
		{"supermarket", "スーパー", c.SupermarketDistance, p.SupermarketDistance},
		{"hospital", "病院", c.HospitalDistance, p.HospitalDistance},
	}
	for _, f := range facilities {
		if f.limit == nil || f.actual == nil {
			continue
		}
		card.add(f.category, f.label, weight, e.accessCredit(*f.actual, *f.limit),
			fmt.Sprintf("%sまで徒歩%d分 (希望%d分以内)", f.label, *f.actual, *f.limit))
	}
}

func (e *Engine) scoreRoadWidth(card *scorecard, c *models.LandConditions, p *models.LandProperty, pr models.Priorities) {
	if c.RoadWidth == nil || p.RoadWidth == nil {
		return
	}
	weight := float64(pr.Environment) * e.weights.RoadWidthMultiplier
	required, actual := *c.RoadWidth, *p.RoadWidth

	credit := 1.0
	if actual < required {
		credit = math.Max(0, actual/required)
	}
	card.add("road_width", "前面道路幅", weight, credit,
		fmt.Sprintf("前面道路%.1fm (希望%.1fm以上)", actual, required))
}

// scoreLotFeatures covers corner lot and new development, which only count when
// required, plus flat land and road direction.
func (e *Engine) scoreLotFeatures(card *scorecard, c *models.LandConditions, p *models.LandProperty, pr models.Priorities) {
	weight := float64(pr.Environment) * e.weights.LotFeatureMultiplier

	if c.CornerLot == models.TriRequired {
		if p.CornerLot {
			card.add("corner_lot", "角地", weight, 1, "角地")
		} else {
			card.add("corner_lot", "角地", weight, 0, "角地ではない")
		}
	}

	if c.NewDevelopment == models.TriRequired {
		if p.NewDevelopment {
			card.add("new_development", "分譲地", weight, 1, "分譲地")
		} else {
			card.add("new_development", "分譲地", weight, 0, "分譲地ではない")
		}
	}

	if c.FlatLand != models.TriAny && p.FlatLand != nil {
		reason := "高低差あり"
		if *p.FlatLand {
			reason = "平坦地"
		}
		credit := 0.0
		if c.FlatLand.Accepts(*p.FlatLand) {
			credit = 1
		}
		card.add("flat_land", "平坦地", weight, credit, reason)
	}

	if len(c.RoadDirection) > 0 && p.RoadDirection != nil && *p.RoadDirection != "" {
		credit := 0.0
		for _, dir := range c.RoadDirection {
			if dir = strings.TrimSpace(dir); dir != "" && strings.Contains(*p.RoadDirection, dir) {
				credit = 1
				break
			}
		}
		card.add("road_direction", "道路方位", weight, credit,
			fmt.Sprintf("%s (希望: %s)", *p.RoadDirection, strings.Join(c.RoadDirection, "・")))
	}
}
