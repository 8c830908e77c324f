package config

import (
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port           string   `env:"PORT" envDefault:"5250"`
		DatabasePath   string   `env:"DATABASE_PATH" envDefault:"database/landmatch.db"`
		AreaGroupsPath string   `env:"AREA_GROUPS_PATH" envDefault:"config/area_groups.json"`
		LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	}

	// BatchProcessing configuration for property ingestion
	BatchProcessing struct {
		// Maximum number of queued property batches
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}

	// Matching holds the scoring constants. Category multipliers are applied to the
	// customer's 1-5 priority for that category.
	Matching struct {
		AreaMultiplier          float64 `env:"MATCH_AREA_MULTIPLIER" envDefault:"10"`
		PriceMultiplier         float64 `env:"MATCH_PRICE_MULTIPLIER" envDefault:"8"`
		SizeMultiplier          float64 `env:"MATCH_SIZE_MULTIPLIER" envDefault:"6"`
		StationMultiplier       float64 `env:"MATCH_STATION_MULTIPLIER" envDefault:"6"`
		FacilityMultiplier      float64 `env:"MATCH_FACILITY_MULTIPLIER" envDefault:"2"`
		RoadWidthMultiplier     float64 `env:"MATCH_ROAD_WIDTH_MULTIPLIER" envDefault:"4"`
		LotFeatureMultiplier    float64 `env:"MATCH_LOT_FEATURE_MULTIPLIER" envDefault:"2"`
		UnmatchedAreaCredit     float64 `env:"MATCH_UNMATCHED_AREA_CREDIT" envDefault:"0.3"`
		OpenRangePriceCredit    float64 `env:"MATCH_OPEN_RANGE_PRICE_CREDIT" envDefault:"0.9"`
		OverBudgetDecay         float64 `env:"MATCH_OVER_BUDGET_DECAY" envDefault:"2"`
		SizeWindowMin           float64 `env:"MATCH_SIZE_WINDOW_MIN" envDefault:"0.8"`
		SizeWindowMax           float64 `env:"MATCH_SIZE_WINDOW_MAX" envDefault:"1.5"`
		SizeFloorCredit         float64 `env:"MATCH_SIZE_FLOOR_CREDIT" envDefault:"0.5"`
		AccessDecayMinutes      float64 `env:"MATCH_ACCESS_DECAY_MINUTES" envDefault:"10"`
		HighThreshold           int     `env:"MATCH_HIGH_THRESHOLD" envDefault:"70"`
		MediumThreshold         int     `env:"MATCH_MEDIUM_THRESHOLD" envDefault:"50"`
		Workers                 int     `env:"MATCH_WORKERS" envDefault:"4"`
		ScheduleIntervalMinutes int     `env:"MATCH_SCHEDULE_INTERVAL" envDefault:"60"`
	}

	// Extraction holds the heuristics used when reading hearing sheets
	Extraction struct {
		LandBudgetRatio   float64 `env:"EXTRACT_LAND_BUDGET_RATIO" envDefault:"0.4"`
		TsuboPerMember    float64 `env:"EXTRACT_TSUBO_PER_MEMBER" envDefault:"10"`
		MinFamilyLandArea float64 `env:"EXTRACT_MIN_FAMILY_LAND_AREA" envDefault:"40"`
	}
}

// LoadConfig reads an optional .env file and then the process environment
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
