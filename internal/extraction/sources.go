package extraction

import (
	"regexp"
	"strings"

	"landmatch/server/internal/models"
)

var municipalityPattern = regexp.MustCompile(`^(?:東京都|北海道|(?:京都|大阪)府|.{2,3}県)?(.+?[市区町村])`)

// Reception is a reception-desk record for a walk-in or first contact
type Reception struct {
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

func (Reception) Source() models.UpdateSource { return models.SourceReception }

// Extract assumes the customer wants to stay near their current municipality,
// unless the notes name a desired area explicitly.
func (r Reception) Extract(_ *models.LandConditions, _ Heuristics) models.ConditionsUpdate {
	var u models.ConditionsUpdate

	if area := municipality(r.Address); area != "" {
		u.DesiredAreas = []string{area}
	}
	applyLabels(&u, r.Notes)

	stamp(&u, models.SourceReception)
	return u
}

// municipality returns the city/ward/town/village name without its suffix
func municipality(address string) string {
	address = strings.TrimSpace(normalizeText(address))
	m := municipalityPattern.FindStringSubmatch(address)
	if m == nil {
		return ""
	}
	name := []rune(m[1])
	if len(name) < 2 {
		return ""
	}
	return string(name[:len(name)-1])
}

// ExtractFromReception extracts a reception record
func ExtractFromReception(reception Reception) models.ConditionsUpdate {
	return reception.Extract(nil, DefaultHeuristics())
}

// Negotiation is a note recorded during a sales negotiation
type Negotiation struct {
	Content string `json:"content"`
}

func (Negotiation) Source() models.UpdateSource { return models.SourceNegotiation }

// Extract reads both land requirements and labelled area/budget statements
func (n Negotiation) Extract(_ *models.LandConditions, _ Heuristics) models.ConditionsUpdate {
	var u models.ConditionsUpdate

	applyRequirements(&u, n.Content)
	applyLabels(&u, n.Content)

	stamp(&u, models.SourceNegotiation)
	return u
}

// ManualEdit is a field-level change made by an operator in the editor
type ManualEdit struct {
	Update models.ConditionsUpdate
}

func (ManualEdit) Source() models.UpdateSource { return models.SourceManual }

func (m ManualEdit) Extract(_ *models.LandConditions, _ Heuristics) models.ConditionsUpdate {
	u := m.Update
	if u.Priorities != nil {
		p := u.Priorities.Clamp()
		u.Priorities = &p
	}
	stamp(&u, models.SourceManual)
	return u
}
