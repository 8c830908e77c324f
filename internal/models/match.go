package models

import "time"

type AlertLevel string

const (
	AlertHigh   AlertLevel = "high"
	AlertMedium AlertLevel = "medium"
	AlertLow    AlertLevel = "low"
)

// MatchDetail explains one scoring category's contribution
type MatchDetail struct {
	Category string  `json:"category"`
	Label    string  `json:"label"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
	Reason   string  `json:"reason"`
}

// MatchResult is the outcome of scoring one customer's conditions against one property.
// NotifiedAt and AssignedTo are never set by the engine.
type MatchResult struct {
	PropertyID   string        `json:"property_id"`
	CustomerID   string        `json:"customer_id"`
	MatchScore   int           `json:"match_score"`
	MatchDetails []MatchDetail `json:"match_details"`
	AlertLevel   AlertLevel    `json:"alert_level"`
	NotifiedAt   *time.Time    `json:"notified_at"`
	AssignedTo   *string       `json:"assigned_to"`
}

// StoredMatch is the cached copy of a MatchResult, one row per customer/property pair
type StoredMatch struct {
	ID           uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID   string        `gorm:"uniqueIndex:idx_match_pair;not null" json:"property_id"`
	CustomerID   string        `gorm:"uniqueIndex:idx_match_pair;not null" json:"customer_id"`
	MatchScore   int           `gorm:"index" json:"match_score"`
	MatchDetails []MatchDetail `gorm:"serializer:json" json:"match_details"`
	AlertLevel   AlertLevel    `gorm:"index" json:"alert_level"`
	NotifiedAt   *time.Time    `json:"notified_at"`
	AssignedTo   *string       `json:"assigned_to"`
	ComputedAt   time.Time     `json:"computed_at"`
}

func (StoredMatch) TableName() string {
	return "match_results"
}

// ToResult converts the cached row back into a MatchResult
func (s *StoredMatch) ToResult() MatchResult {
	return MatchResult{
		PropertyID:   s.PropertyID,
		CustomerID:   s.CustomerID,
		MatchScore:   s.MatchScore,
		MatchDetails: s.MatchDetails,
		AlertLevel:   s.AlertLevel,
		NotifiedAt:   s.NotifiedAt,
		AssignedTo:   s.AssignedTo,
	}
}
