package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/clause"

	"landmatch/server/internal/models"
)

// ErrNotFound is returned when a lookup by id finds no row
var ErrNotFound = errors.New("record not found")

type Database struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := open(dbPath+"?_foreign_keys=on", logger)
	if err != nil {
		return nil, err
	}
	return &Database{db: db, logger: logger}, nil
}

// NewTestDB opens a private in-memory database
func NewTestDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// The database lives as long as its one connection
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// NewTestDatabase opens and migrates a private in-memory database
func NewTestDatabase() (*Database, error) {
	db, err := NewTestDB()
	if err != nil {
		return nil, err
	}
	if err := MigrateSchema(db); err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return &Database{db: db, logger: logger}, nil
}

func open(dsn string, logger *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers anyway
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func (d *Database) GetDB() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetOrCreateConditions returns the customer's current conditions, creating the
// default record on first access.
func (d *Database) GetOrCreateConditions(customerID string) (*models.LandConditions, error) {
	conditions, err := d.GetConditions(customerID)
	if err == nil {
		return conditions, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	conditions = models.NewDefaultLandConditions(customerID)
	if err := d.db.Create(conditions).Error; err != nil {
		// Lost a race against another first access; the unique index kept one row
		if existing, getErr := d.GetConditions(customerID); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create conditions: %w", err)
	}
	d.logger.WithField("customer_id", customerID).Info("Created default land conditions")
	return conditions, nil
}

func (d *Database) GetConditions(customerID string) (*models.LandConditions, error) {
	var conditions models.LandConditions
	err := d.db.Where("customer_id = ?", customerID).First(&conditions).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conditions: %w", err)
	}
	return &conditions, nil
}

// SaveConditions replaces the customer's current record
func (d *Database) SaveConditions(conditions *models.LandConditions) error {
	if conditions.ID == "" {
		conditions.ID = uuid.NewString()
	}
	if err := d.db.Save(conditions).Error; err != nil {
		return fmt.Errorf("failed to save conditions: %w", err)
	}
	return nil
}

func (d *Database) ListConditions() ([]*models.LandConditions, error) {
	var conditions []*models.LandConditions
	if err := d.db.Order("customer_id").Find(&conditions).Error; err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	return conditions, nil
}

// UpsertProperties inserts or refreshes listings by id within tx
func UpsertProperties(tx *gorm.DB, properties []*models.LandProperty) error {
	if len(properties) == 0 {
		return nil
	}
	now := time.Now()
	for _, p := range properties {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Status == "" {
			p.Status = models.StatusAvailable
		}
		if p.ListedAt.IsZero() {
			p.ListedAt = now
		}
		p.ComputePricePerTsubo()
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&properties).Error
}

func (d *Database) SaveProperties(properties []*models.LandProperty) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return UpsertProperties(tx, properties)
	})
}

func (d *Database) GetProperty(id string) (*models.LandProperty, error) {
	var property models.LandProperty
	err := d.db.First(&property, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return &property, nil
}

// ListProperties returns listings newest first, optionally filtered by status and area
func (d *Database) ListProperties(status models.PropertyStatus, area string) ([]*models.LandProperty, error) {
	query := d.db.Model(&models.LandProperty{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if area != "" {
		query = query.Where("area LIKE ?", "%"+area+"%")
	}

	var properties []*models.LandProperty
	if err := query.Order("listed_at DESC").Find(&properties).Error; err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return properties, nil
}

func (d *Database) ListAvailableProperties() ([]*models.LandProperty, error) {
	return d.ListProperties(models.StatusAvailable, "")
}

// SaveMatchResults caches results keyed by customer/property pair. Notification
// and assignment state of an existing pair survive a rescore.
func (d *Database) SaveMatchResults(results []models.MatchResult) error {
	if len(results) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.StoredMatch, 0, len(results))
	for _, r := range results {
		rows = append(rows, models.StoredMatch{
			PropertyID:   r.PropertyID,
			CustomerID:   r.CustomerID,
			MatchScore:   r.MatchScore,
			MatchDetails: r.MatchDetails,
			AlertLevel:   r.AlertLevel,
			ComputedAt:   now,
		})
	}

	err := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "property_id"}, {Name: "customer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"match_score", "match_details", "alert_level", "computed_at"}),
	}).CreateInBatches(&rows, 100).Error
	if err != nil {
		return fmt.Errorf("failed to save match results: %w", err)
	}
	return nil
}

// PruneMatches drops cached pairs that a full run computed before the given time
// did not refresh. Assigned pairs are kept.
func (d *Database) PruneMatches(before time.Time) (int64, error) {
	res := d.db.Where("computed_at < ? AND assigned_to IS NULL", before).Delete(&models.StoredMatch{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune matches: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ClearStaleMatches deletes the unassigned cached pairs of the given properties that
// are not in keep, such as pairs for a listing re-ingested as sold or one that now
// scores below the threshold.
func (d *Database) ClearStaleMatches(propertyIDs []string, keep []models.MatchResult) (int64, error) {
	if len(propertyIDs) == 0 {
		return 0, nil
	}

	var rows []models.StoredMatch
	err := d.db.Select("id", "property_id", "customer_id").
		Where("property_id IN ? AND assigned_to IS NULL", propertyIDs).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load cached matches: %w", err)
	}

	type pair struct{ property, customer string }
	kept := make(map[pair]struct{}, len(keep))
	for _, r := range keep {
		kept[pair{r.PropertyID, r.CustomerID}] = struct{}{}
	}
	var stale []uint
	for _, r := range rows {
		if _, ok := kept[pair{r.PropertyID, r.CustomerID}]; !ok {
			stale = append(stale, r.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	res := d.db.Where("id IN ?", stale).Delete(&models.StoredMatch{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear stale matches: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListMatches returns cached results ordered by score, optionally for one level
// and one customer.
func (d *Database) ListMatches(level models.AlertLevel, customerID string) ([]models.StoredMatch, error) {
	query := d.db.Model(&models.StoredMatch{})
	if level != "" {
		query = query.Where("alert_level = ?", level)
	}
	if customerID != "" {
		query = query.Where("customer_id = ?", customerID)
	}

	var matches []models.StoredMatch
	if err := query.Order("match_score DESC").Order("id").Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return matches, nil
}

func (d *Database) ListUnnotifiedMatches(levels ...models.AlertLevel) ([]models.StoredMatch, error) {
	query := d.db.Where("notified_at IS NULL")
	if len(levels) > 0 {
		query = query.Where("alert_level IN ?", levels)
	}

	var matches []models.StoredMatch
	if err := query.Order("match_score DESC").Order("id").Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to list unnotified matches: %w", err)
	}
	return matches, nil
}

func (d *Database) MarkNotified(id uint, at time.Time) error {
	res := d.db.Model(&models.StoredMatch{}).Where("id = ?", id).Update("notified_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to mark match notified: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignMatch records the staff member following up on a match
func (d *Database) AssignMatch(id uint, staff string) (*models.StoredMatch, error) {
	res := d.db.Model(&models.StoredMatch{}).Where("id = ?", id).Update("assigned_to", staff)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to assign match: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var match models.StoredMatch
	if err := d.db.First(&match, id).Error; err != nil {
		return nil, fmt.Errorf("failed to reload match: %w", err)
	}
	return &match, nil
}

// GetTelegramConfig returns nil without error when no configuration exists
func (d *Database) GetTelegramConfig() (*models.TelegramConfig, error) {
	var cfg models.TelegramConfig
	err := d.db.Order("id").First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get telegram config: %w", err)
	}
	return &cfg, nil
}

func (d *Database) UpdateTelegramConfig(req *models.TelegramConfigRequest) (*models.TelegramConfig, error) {
	cfg, err := d.GetTelegramConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &models.TelegramConfig{}
	}

	cfg.IsEnabled = req.IsEnabled
	cfg.BotToken = req.BotToken
	cfg.ChatID = req.ChatID
	cfg.MinLevel = req.MinLevel
	if cfg.MinLevel == "" {
		cfg.MinLevel = string(models.AlertHigh)
	}

	if err := d.db.Save(cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to save telegram config: %w", err)
	}
	return cfg, nil
}
