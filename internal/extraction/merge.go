package extraction

import "landmatch/server/internal/models"

// Merge applies a partial update to a copy of existing.
//
// When existing was last written by an operator and the update comes from an
// automated source, the fields operators decide on (desired areas, max price,
// preferred land area, notes) keep their current values. Slice fields are merged
// as a set union; every other present field replaces the existing value.
// LastUpdatedAt is always refreshed; LastUpdatedFrom changes only when the update
// names a source.
func Merge(existing *models.LandConditions, u models.ConditionsUpdate) models.LandConditions {
	merged := *existing
	merged.DesiredAreas = cloneStrings(existing.DesiredAreas)
	merged.ExcludedAreas = cloneStrings(existing.ExcludedAreas)
	merged.RoadDirection = cloneStrings(existing.RoadDirection)
	merged.ZoningTypes = cloneStrings(existing.ZoningTypes)

	protected := existing.LastUpdatedFrom == models.SourceManual &&
		(u.LastUpdatedFrom == nil || *u.LastUpdatedFrom != models.SourceManual)

	if !protected {
		if u.DesiredAreas != nil {
			merged.DesiredAreas = union(merged.DesiredAreas, u.DesiredAreas)
		}
		if u.MaxPrice != nil {
			merged.MaxPrice = cloneInt(u.MaxPrice)
		}
		if u.PreferredLandArea != nil {
			merged.PreferredLandArea = cloneFloat(u.PreferredLandArea)
		}
		if u.Notes != nil {
			merged.Notes = *u.Notes
		}
	}

	if u.ExcludedAreas != nil {
		merged.ExcludedAreas = union(merged.ExcludedAreas, u.ExcludedAreas)
	}
	if u.RoadDirection != nil {
		merged.RoadDirection = union(merged.RoadDirection, u.RoadDirection)
	}
	if u.ZoningTypes != nil {
		merged.ZoningTypes = union(merged.ZoningTypes, u.ZoningTypes)
	}

	if u.MinLandArea != nil {
		merged.MinLandArea = cloneFloat(u.MinLandArea)
	}
	if u.MaxLandArea != nil {
		merged.MaxLandArea = cloneFloat(u.MaxLandArea)
	}
	if u.MinPrice != nil {
		merged.MinPrice = cloneInt(u.MinPrice)
	}
	if u.StationDistance != nil {
		merged.StationDistance = cloneInt(u.StationDistance)
	}
	if u.SchoolDistance != nil {
		merged.SchoolDistance = cloneInt(u.SchoolDistance)
	}
	if u.SupermarketDistance != nil {
		merged.SupermarketDistance = cloneInt(u.SupermarketDistance)
	}
	if u.HospitalDistance != nil {
		merged.HospitalDistance = cloneInt(u.HospitalDistance)
	}
	if u.RoadWidth != nil {
		merged.RoadWidth = cloneFloat(u.RoadWidth)
	}
	if u.CornerLot != nil {
		merged.CornerLot = *u.CornerLot
	}
	if u.NewDevelopment != nil {
		merged.NewDevelopment = *u.NewDevelopment
	}
	if u.FlatLand != nil {
		merged.FlatLand = *u.FlatLand
	}
	if u.ExistingBuilding != nil {
		merged.ExistingBuilding = *u.ExistingBuilding
	}
	if u.BuildingCoverage != nil {
		merged.BuildingCoverage = cloneFloat(u.BuildingCoverage)
	}
	if u.FloorAreaRatio != nil {
		merged.FloorAreaRatio = cloneFloat(u.FloorAreaRatio)
	}
	if u.ShapePreference != nil {
		merged.ShapePreference = *u.ShapePreference
	}
	if u.Priorities != nil {
		merged.Priorities = u.Priorities.ApplyTo(merged.Priorities)
	}

	if u.LastUpdatedFrom != nil {
		merged.LastUpdatedFrom = *u.LastUpdatedFrom
	}
	merged.LastUpdatedAt = now()
	if u.LastUpdatedAt != nil {
		merged.LastUpdatedAt = *u.LastUpdatedAt
	}
	return merged
}

// union appends the values of b missing from a, keeping a's order first
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneInt(v *int) *int {
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	c := *v
	return &c
}
