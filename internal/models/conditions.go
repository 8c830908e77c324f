package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpdateSource records which upstream process last wrote a conditions record
type UpdateSource string

const (
	SourceHearingSheet UpdateSource = "hearing_sheet"
	SourceReception    UpdateSource = "reception"
	SourceNegotiation  UpdateSource = "negotiation"
	SourceManual       UpdateSource = "manual"
)

// Valid reports whether s is one of the known update sources
func (s UpdateSource) Valid() bool {
	switch s {
	case SourceHearingSheet, SourceReception, SourceNegotiation, SourceManual:
		return true
	}
	return false
}

// Ptr returns a pointer to s, for building partial updates
func (s UpdateSource) Ptr() *UpdateSource {
	return &s
}

type ShapePreference string

const (
	ShapeRectangular ShapePreference = "rectangular"
	ShapeIrregular   ShapePreference = "irregular"
	ShapeAny         ShapePreference = "any"
)

const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 3
)

// Priorities weights each scoring category from 1 (low) to 5 (high)
type Priorities struct {
	Area        int `json:"area"`
	Price       int `json:"price"`
	Size        int `json:"size"`
	Access      int `json:"access"`
	Environment int `json:"environment"`
}

// DefaultPriorities returns every category at the middle weight
func DefaultPriorities() Priorities {
	return Priorities{
		Area:        DefaultPriority,
		Price:       DefaultPriority,
		Size:        DefaultPriority,
		Access:      DefaultPriority,
		Environment: DefaultPriority,
	}
}

// Clamp forces every weight into the 1-5 range, the same way the editor slider does
func (p Priorities) Clamp() Priorities {
	return Priorities{
		Area:        clampPriority(p.Area),
		Price:       clampPriority(p.Price),
		Size:        clampPriority(p.Size),
		Access:      clampPriority(p.Access),
		Environment: clampPriority(p.Environment),
	}
}

func clampPriority(v int) int {
	if v < MinPriority {
		return MinPriority
	}
	if v > MaxPriority {
		return MaxPriority
	}
	return v
}

// ErrInvalidConditions is returned by Validate when a record has inconsistent ranges
var ErrInvalidConditions = errors.New("invalid land conditions")

// LandConditions is a customer's land search criteria. Land areas are in tsubo,
// prices in man (10,000 yen) and distances in walking minutes.
type LandConditions struct {
	ID         string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CustomerID string `gorm:"uniqueIndex;not null" json:"customer_id"`

	DesiredAreas  []string `gorm:"serializer:json" json:"desired_areas"`
	ExcludedAreas []string `gorm:"serializer:json" json:"excluded_areas"`

	MinLandArea       *float64 `json:"min_land_area"`
	MaxLandArea       *float64 `json:"max_land_area"`
	PreferredLandArea *float64 `json:"preferred_land_area"`

	MinPrice *int `json:"min_price"`
	MaxPrice *int `json:"max_price"`

	StationDistance     *int `json:"station_distance"`
	SchoolDistance      *int `json:"school_distance"`
	SupermarketDistance *int `json:"supermarket_distance"`
	HospitalDistance    *int `json:"hospital_distance"`

	RoadWidth        *float64        `json:"road_width"`
	RoadDirection    []string        `gorm:"serializer:json" json:"road_direction"`
	CornerLot        TriState        `json:"corner_lot"`
	NewDevelopment   TriState        `json:"new_development"`
	FlatLand         TriState        `json:"flat_land"`
	ExistingBuilding TriState        `json:"existing_building"`
	ZoningTypes      []string        `gorm:"serializer:json" json:"zoning_types"`
	BuildingCoverage *float64        `json:"building_coverage"`
	FloorAreaRatio   *float64        `json:"floor_area_ratio"`
	ShapePreference  ShapePreference `gorm:"default:any" json:"shape_preference"`

	Priorities Priorities `gorm:"embedded;embeddedPrefix:priority_" json:"priorities"`

	Notes           string       `json:"notes"`
	LastUpdatedFrom UpdateSource `gorm:"not null" json:"last_updated_from"`
	LastUpdatedAt   time.Time    `json:"last_updated_at"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (LandConditions) TableName() string {
	return "land_conditions"
}

// NewDefaultLandConditions builds the record handed out the first time a customer's
// conditions are requested.
func NewDefaultLandConditions(customerID string) *LandConditions {
	now := time.Now()
	return &LandConditions{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		DesiredAreas:    []string{},
		ExcludedAreas:   []string{},
		RoadDirection:   []string{},
		ZoningTypes:     []string{},
		ShapePreference: ShapeAny,
		Priorities:      DefaultPriorities(),
		LastUpdatedFrom: SourceManual,
		LastUpdatedAt:   now,
		CreatedAt:       now,
	}
}

// Validate checks range consistency. The matching engine tolerates inconsistent
// ranges; this is applied when an operator saves a record.
func (c *LandConditions) Validate() error {
	if c.CustomerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidConditions)
	}
	if c.MinPrice != nil && c.MaxPrice != nil && *c.MinPrice > *c.MaxPrice {
		return fmt.Errorf("%w: min price %d exceeds max price %d", ErrInvalidConditions, *c.MinPrice, *c.MaxPrice)
	}
	if c.MinLandArea != nil && c.MaxLandArea != nil && *c.MinLandArea > *c.MaxLandArea {
		return fmt.Errorf("%w: min land area exceeds max land area", ErrInvalidConditions)
	}
	if c.PreferredLandArea != nil {
		if c.MinLandArea != nil && *c.PreferredLandArea < *c.MinLandArea {
			return fmt.Errorf("%w: preferred land area is below the minimum", ErrInvalidConditions)
		}
		if c.MaxLandArea != nil && *c.PreferredLandArea > *c.MaxLandArea {
			return fmt.Errorf("%w: preferred land area is above the maximum", ErrInvalidConditions)
		}
	}
	switch c.ShapePreference {
	case "", ShapeAny, ShapeRectangular, ShapeIrregular:
	default:
		return fmt.Errorf("%w: unknown shape preference %q", ErrInvalidConditions, c.ShapePreference)
	}
	return nil
}

// ConditionsUpdate is a partial LandConditions. Nil fields are absent and leave the
// existing value untouched when merged. A tri-state pointing at TriAny resets that
// preference to "don't care"; in JSON that is an explicit null.
type ConditionsUpdate struct {
	DesiredAreas  []string `json:"desired_areas,omitempty"`
	ExcludedAreas []string `json:"excluded_areas,omitempty"`

	MinLandArea       *float64 `json:"min_land_area,omitempty"`
	MaxLandArea       *float64 `json:"max_land_area,omitempty"`
	PreferredLandArea *float64 `json:"preferred_land_area,omitempty"`

	MinPrice *int `json:"min_price,omitempty"`
	MaxPrice *int `json:"max_price,omitempty"`

	StationDistance     *int `json:"station_distance,omitempty"`
	SchoolDistance      *int `json:"school_distance,omitempty"`
	SupermarketDistance *int `json:"supermarket_distance,omitempty"`
	HospitalDistance    *int `json:"hospital_distance,omitempty"`

	RoadWidth        *float64         `json:"road_width,omitempty"`
	RoadDirection    []string         `json:"road_direction,omitempty"`
	CornerLot        *TriState        `json:"corner_lot,omitempty"`
	NewDevelopment   *TriState        `json:"new_development,omitempty"`
	FlatLand         *TriState        `json:"flat_land,omitempty"`
	ExistingBuilding *TriState        `json:"existing_building,omitempty"`
	ZoningTypes      []string         `json:"zoning_types,omitempty"`
	BuildingCoverage *float64         `json:"building_coverage,omitempty"`
	FloorAreaRatio   *float64         `json:"floor_area_ratio,omitempty"`
	ShapePreference  *ShapePreference `json:"shape_preference,omitempty"`

	Priorities *PrioritiesUpdate `json:"priorities,omitempty"`
	Notes      *string           `json:"notes,omitempty"`

	LastUpdatedFrom *UpdateSource `json:"last_updated_from,omitempty"`
	LastUpdatedAt   *time.Time    `json:"last_updated_at,omitempty"`
}

// UnmarshalJSON decodes a partial update. An explicit null on a tri-state key becomes
// TriAny; an absent key stays nil.
func (u *ConditionsUpdate) UnmarshalJSON(data []byte) error {
	type plain ConditionsUpdate
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	triStates := map[string]**TriState{
		"corner_lot":        &p.CornerLot,
		"new_development":   &p.NewDevelopment,
		"flat_land":         &p.FlatLand,
		"existing_building": &p.ExistingBuilding,
	}
	for key, field := range triStates {
		if v, ok := raw[key]; ok && string(bytes.TrimSpace(v)) == "null" {
			*field = TriAny.Ptr()
		}
	}

	*u = ConditionsUpdate(p)
	return nil
}

// PrioritiesUpdate is a partial Priorities. Nil keys keep their current weight.
type PrioritiesUpdate struct {
	Area        *int `json:"area,omitempty"`
	Price       *int `json:"price,omitempty"`
	Size        *int `json:"size,omitempty"`
	Access      *int `json:"access,omitempty"`
	Environment *int `json:"environment,omitempty"`
}

// Clamp forces every present weight into the 1-5 range
func (u PrioritiesUpdate) Clamp() PrioritiesUpdate {
	clamp := func(v *int) *int {
		if v == nil {
			return nil
		}
		c := clampPriority(*v)
		return &c
	}
	return PrioritiesUpdate{
		Area:        clamp(u.Area),
		Price:       clamp(u.Price),
		Size:        clamp(u.Size),
		Access:      clamp(u.Access),
		Environment: clamp(u.Environment),
	}
}

// ApplyTo overwrites the present keys of p and clamps the result
func (u PrioritiesUpdate) ApplyTo(p Priorities) Priorities {
	if u.Area != nil {
		p.Area = *u.Area
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Size != nil {
		p.Size = *u.Size
	}
	if u.Access != nil {
		p.Access = *u.Access
	}
	if u.Environment != nil {
		p.Environment = *u.Environment
	}
	return p.Clamp()
}
