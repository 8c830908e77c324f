// Package extraction derives partial land-condition updates from upstream
// documents (hearing sheets, reception records, negotiation notes, manual edits)
// and merges them into a customer's stored conditions.
package extraction

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"

	"landmatch/server/internal/models"
)

// Extractor is implemented by every upstream document type. Extract never fails:
// text that does not match a pattern simply leaves that field out of the update.
type Extractor interface {
	Source() models.UpdateSource
	Extract(existing *models.LandConditions, h Heuristics) models.ConditionsUpdate
}

// Heuristics holds the rule-of-thumb constants used when a document only gives
// indirect information.
type Heuristics struct {
	// LandBudgetRatio is the share of the total household budget assumed for land
	LandBudgetRatio float64
	// TsuboPerMember and MinFamilyLandArea size the plot from the household size
	TsuboPerMember    float64
	MinFamilyLandArea float64
}

func DefaultHeuristics() Heuristics {
	return Heuristics{
		LandBudgetRatio:   0.4,
		TsuboPerMember:    10,
		MinFamilyLandArea: 40,
	}
}

// Apply extracts an update from doc and merges it into existing
func Apply(existing *models.LandConditions, doc Extractor, h Heuristics) models.LandConditions {
	return Merge(existing, doc.Extract(existing, h))
}

// now is replaced in tests
var now = time.Now

var (
	tsuboPattern       = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:坪|つぼ)`)
	stationPattern     = regexp.MustCompile(`駅.*?(\d+)\s*分`)
	cornerLotPattern   = regexp.MustCompile(`角地|かどち`)
	developmentPattern = regexp.MustCompile(`分譲|新規`)
	flatLandPattern    = regexp.MustCompile(`平坦|フラット`)
	familySizePattern  = regexp.MustCompile(`(\d+)\s*人`)
	areaSplitPattern   = regexp.MustCompile(`[、,・\s　]+`)
	areaLabelPattern   = regexp.MustCompile(`希望(?:エリア|地域)\s*:\s*([^\s、,。]+)`)
	budgetLabelPattern = regexp.MustCompile(`予算\s*:\s*(\d+)\s*万`)
)

// normalizeText folds full-width digits and punctuation so "５０坪" reads as "50坪"
func normalizeText(s string) string {
	return width.Fold.String(s)
}

func splitAreas(s string) []string {
	var out []string
	for _, part := range areaSplitPattern.Split(normalizeText(s), -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyRequirements runs the independent land-requirement passes over free text
func applyRequirements(u *models.ConditionsUpdate, text string) {
	if text == "" {
		return
	}
	text = normalizeText(text)

	if m := tsuboPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			u.PreferredLandArea = &v
		}
	}
	if m := stationPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			u.StationDistance = &v
		}
	}
	if cornerLotPattern.MatchString(text) {
		u.CornerLot = models.TriRequired.Ptr()
	}
	if developmentPattern.MatchString(text) {
		u.NewDevelopment = models.TriRequired.Ptr()
	}
	if flatLandPattern.MatchString(text) {
		u.FlatLand = models.TriRequired.Ptr()
	}
}

// applyLabels reads "希望エリア: X" and "予算: N万" labels from free-text notes
func applyLabels(u *models.ConditionsUpdate, text string) {
	if text == "" {
		return
	}
	text = normalizeText(text)

	if m := areaLabelPattern.FindStringSubmatch(text); m != nil {
		u.DesiredAreas = []string{m[1]}
	}
	if m := budgetLabelPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			u.MaxPrice = &v
		}
	}
}

func stamp(u *models.ConditionsUpdate, source models.UpdateSource) {
	t := now()
	u.LastUpdatedFrom = source.Ptr()
	u.LastUpdatedAt = &t
}

// HearingSheet holds the hearing-sheet answers relevant to land search
type HearingSheet struct {
	DesiredArea      string `json:"desired_area"`
	DesiredLocation  string `json:"desired_location"`
	Budget           *int64 `json:"budget"`
	LandRequirements string `json:"land_requirements"`
	FamilyStructure  string `json:"family_structure"`
}

func (HearingSheet) Source() models.UpdateSource { return models.SourceHearingSheet }

// Extract reads desired areas, a land budget, land requirements and, when no land
// size is known yet, a size estimate from the household size.
func (s HearingSheet) Extract(existing *models.LandConditions, h Heuristics) models.ConditionsUpdate {
	var u models.ConditionsUpdate

	areaText := s.DesiredArea
	if strings.TrimSpace(areaText) == "" {
		areaText = s.DesiredLocation
	}
	if areas := splitAreas(areaText); len(areas) > 0 {
		u.DesiredAreas = areas
	}

	if s.Budget != nil && *s.Budget > 0 {
		maxPrice := int(math.Round(float64(*s.Budget) * h.LandBudgetRatio / 10000))
		u.MaxPrice = &maxPrice
	}

	applyRequirements(&u, s.LandRequirements)

	knownSize := u.PreferredLandArea != nil || (existing != nil && existing.PreferredLandArea != nil)
	if !knownSize {
		if m := familySizePattern.FindStringSubmatch(normalizeText(s.FamilyStructure)); m != nil {
			if members, err := strconv.Atoi(m[1]); err == nil && members > 0 {
				size := math.Max(h.MinFamilyLandArea, float64(members)*h.TsuboPerMember)
				u.PreferredLandArea = &size
			}
		}
	}

	stamp(&u, models.SourceHearingSheet)
	return u
}

// ExtractFromHearingSheet extracts with the default heuristics
func ExtractFromHearingSheet(sheet HearingSheet, existing *models.LandConditions) models.ConditionsUpdate {
	return sheet.Extract(existing, DefaultHeuristics())
}
