package models

import (
	"math"
	"time"
)

type PropertySource string

const (
	PropertySourceReins  PropertySource = "reins"
	PropertySourceSuumo  PropertySource = "suumo"
	PropertySourceAthome PropertySource = "athome"
	PropertySourceManual PropertySource = "manual"
	PropertySourceOther  PropertySource = "other"
)

type PropertyStatus string

const (
	StatusAvailable   PropertyStatus = "available"
	StatusNegotiating PropertyStatus = "negotiating"
	StatusSold        PropertyStatus = "sold"
	StatusWithdrawn   PropertyStatus = "withdrawn"
)

// LandProperty is a listed parcel. LandArea is in tsubo and Price in man.
type LandProperty struct {
	ID        string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Source    PropertySource `gorm:"index" json:"source"`
	SourceURL string         `json:"source_url"`
	ListedAt  time.Time      `json:"listed_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	Name    string `json:"name"`
	Address string `json:"address"`
	Area    string `gorm:"index" json:"area"`

	LandArea      float64 `json:"land_area"`
	Price         int     `json:"price"`
	PricePerTsubo float64 `json:"price_per_tsubo"`

	NearestStation      string `json:"nearest_station"`
	StationDistance     int    `json:"station_distance"`
	SchoolDistance      *int   `json:"school_distance"`
	SupermarketDistance *int   `json:"supermarket_distance"`
	HospitalDistance    *int   `json:"hospital_distance"`

	RoadWidth        *float64 `json:"road_width"`
	RoadDirection    *string  `json:"road_direction"`
	CornerLot        bool     `json:"corner_lot"`
	ZoningType       string   `json:"zoning_type"`
	BuildingCoverage *float64 `json:"building_coverage"`
	FloorAreaRatio   *float64 `json:"floor_area_ratio"`
	Shape            string   `json:"shape"`
	FlatLand         *bool    `json:"flat_land"`
	NewDevelopment   bool     `json:"new_development"`
	ExistingBuilding bool     `json:"existing_building"`

	Status PropertyStatus `gorm:"index;default:available" json:"status"`
	Notes  string         `json:"notes"`
}

func (LandProperty) TableName() string {
	return "land_properties"
}

// ComputePricePerTsubo fills PricePerTsubo from Price and LandArea, rounded to 0.1 man
func (p *LandProperty) ComputePricePerTsubo() {
	if p.LandArea <= 0 {
		p.PricePerTsubo = 0
		return
	}
	p.PricePerTsubo = math.Round(float64(p.Price)/p.LandArea*10) / 10
}

// IsAvailable reports whether the property takes part in batch matching
func (p *LandProperty) IsAvailable() bool {
	return p.Status == StatusAvailable
}
