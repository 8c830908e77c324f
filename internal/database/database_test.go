package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landmatch/server/internal/models"
)

func setupTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewTestDatabase()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetOrCreateConditions(t *testing.T) {
	db := setupTestDatabase(t)

	created, err := db.GetOrCreateConditions("cust-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", created.CustomerID)
	assert.Equal(t, models.SourceManual, created.LastUpdatedFrom)
	assert.Equal(t, models.DefaultPriorities(), created.Priorities)
	assert.NotEmpty(t, created.ID)

	again, err := db.GetOrCreateConditions("cust-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	all, err := db.ListConditions()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSaveConditions_RoundTrip(t *testing.T) {
	db := setupTestDatabase(t)

	c, err := db.GetOrCreateConditions("cust-1")
	require.NoError(t, err)

	maxPrice := 3000
	c.DesiredAreas = []string{"豊中市", "吹田市"}
	c.MaxPrice = &maxPrice
	c.CornerLot = models.TriRequired
	c.FlatLand = models.TriExcluded
	c.Priorities.Area = 5
	require.NoError(t, db.SaveConditions(c))

	loaded, err := db.GetConditions("cust-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"豊中市", "吹田市"}, loaded.DesiredAreas)
	assert.Equal(t, 3000, *loaded.MaxPrice)
	assert.Nil(t, loaded.MinPrice)
	assert.Equal(t, models.TriRequired, loaded.CornerLot)
	assert.Equal(t, models.TriExcluded, loaded.FlatLand)
	assert.Equal(t, models.TriAny, loaded.NewDevelopment)
	assert.Equal(t, 5, loaded.Priorities.Area)
}

func TestGetConditions_NotFound(t *testing.T) {
	db := setupTestDatabase(t)

	_, err := db.GetConditions("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertProperties(t *testing.T) {
	db := setupTestDatabase(t)

	props := []*models.LandProperty{
		{ID: "p1", Area: "豊中市", LandArea: 50, Price: 2000},
		{ID: "p2", Area: "吹田市", LandArea: 40, Price: 2400, Status: models.StatusSold},
	}
	require.NoError(t, db.SaveProperties(props))

	p1, err := db.GetProperty("p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, p1.Status)
	assert.Equal(t, 40.0, p1.PricePerTsubo)
	assert.False(t, p1.ListedAt.IsZero())

	// A second upsert refreshes the row instead of duplicating it
	require.NoError(t, db.SaveProperties([]*models.LandProperty{
		{ID: "p1", Area: "豊中市", LandArea: 50, Price: 1800},
	}))
	p1, err = db.GetProperty("p1")
	require.NoError(t, err)
	assert.Equal(t, 1800, p1.Price)
	assert.Equal(t, 36.0, p1.PricePerTsubo)

	all, err := db.ListProperties("", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	available, err := db.ListAvailableProperties()
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "p1", available[0].ID)

	byArea, err := db.ListProperties("", "吹田")
	require.NoError(t, err)
	require.Len(t, byArea, 1)
	assert.Equal(t, "p2", byArea[0].ID)

	_, err = db.GetProperty("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertProperties_AssignsID(t *testing.T) {
	db := setupTestDatabase(t)

	prop := &models.LandProperty{Area: "箕面市", LandArea: 45, Price: 1500}
	require.NoError(t, UpsertProperties(db.GetDB(), []*models.LandProperty{prop}))
	assert.NotEmpty(t, prop.ID)

	_, err := db.GetProperty(prop.ID)
	assert.NoError(t, err)
}

func sampleResult(propertyID string, score int, level models.AlertLevel) models.MatchResult {
	return models.MatchResult{
		PropertyID: propertyID,
		CustomerID: "cust-1",
		MatchScore: score,
		AlertLevel: level,
		MatchDetails: []models.MatchDetail{
			{Category: "area", Label: "エリア", Score: 50, MaxScore: 50, Reason: "希望エリア「豊中市」に該当"},
		},
	}
}

func TestSaveMatchResults_PreservesNotificationState(t *testing.T) {
	db := setupTestDatabase(t)

	require.NoError(t, db.SaveMatchResults([]models.MatchResult{
		sampleResult("p1", 90, models.AlertHigh),
		sampleResult("p2", 55, models.AlertMedium),
	}))

	unnotified, err := db.ListUnnotifiedMatches(models.AlertHigh)
	require.NoError(t, err)
	require.Len(t, unnotified, 1)
	assert.Equal(t, "p1", unnotified[0].PropertyID)
	require.Len(t, unnotified[0].MatchDetails, 1)
	assert.Equal(t, "area", unnotified[0].MatchDetails[0].Category)

	notifiedAt := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.MarkNotified(unnotified[0].ID, notifiedAt))
	_, err = db.AssignMatch(unnotified[0].ID, "tanaka")
	require.NoError(t, err)

	// Rescore the same pair
	require.NoError(t, db.SaveMatchResults([]models.MatchResult{sampleResult("p1", 80, models.AlertHigh)}))

	matches, err := db.ListMatches(models.AlertHigh, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 80, matches[0].MatchScore)
	require.NotNil(t, matches[0].NotifiedAt)
	assert.True(t, notifiedAt.Equal(*matches[0].NotifiedAt))
	require.NotNil(t, matches[0].AssignedTo)
	assert.Equal(t, "tanaka", *matches[0].AssignedTo)

	unnotified, err = db.ListUnnotifiedMatches(models.AlertHigh, models.AlertMedium)
	require.NoError(t, err)
	require.Len(t, unnotified, 1)
	assert.Equal(t, "p2", unnotified[0].PropertyID)
}

func TestListMatches_OrderAndFilter(t *testing.T) {
	db := setupTestDatabase(t)

	require.NoError(t, db.SaveMatchResults([]models.MatchResult{
		sampleResult("p1", 55, models.AlertMedium),
		sampleResult("p2", 92, models.AlertHigh),
		sampleResult("p3", 71, models.AlertHigh),
	}))

	all, err := db.ListMatches("", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{92, 71, 55}, []int{all[0].MatchScore, all[1].MatchScore, all[2].MatchScore})

	medium, err := db.ListMatches(models.AlertMedium, "cust-1")
	require.NoError(t, err)
	require.Len(t, medium, 1)
	assert.Equal(t, "p1", medium[0].PropertyID)

	none, err := db.ListMatches("", "cust-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPruneMatches(t *testing.T) {
	db := setupTestDatabase(t)

	require.NoError(t, db.SaveMatchResults([]models.MatchResult{
		sampleResult("p1", 90, models.AlertHigh),
		sampleResult("p2", 60, models.AlertMedium),
	}))
	all, err := db.ListMatches("", "")
	require.NoError(t, err)
	for _, m := range all {
		if m.PropertyID == "p2" {
			_, err := db.AssignMatch(m.ID, "sato")
			require.NoError(t, err)
		}
	}

	removed, err := db.PruneMatches(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := db.ListMatches("", "")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "p2", left[0].PropertyID)
}

func TestClearStaleMatches(t *testing.T) {
	db := setupTestDatabase(t)

	keep := sampleResult("p1", 90, models.AlertHigh)
	require.NoError(t, db.SaveMatchResults([]models.MatchResult{
		keep,
		sampleResult("p2", 60, models.AlertMedium),
		sampleResult("p3", 60, models.AlertMedium),
		sampleResult("p4", 70, models.AlertMedium),
	}))
	all, err := db.ListMatches("", "")
	require.NoError(t, err)
	for _, m := range all {
		if m.PropertyID == "p3" {
			_, err := db.AssignMatch(m.ID, "sato")
			require.NoError(t, err)
		}
	}

	removed, err := db.ClearStaleMatches(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	removed, err = db.ClearStaleMatches([]string{"p1", "p2", "p3"}, []models.MatchResult{keep})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := db.ListMatches("", "")
	require.NoError(t, err)
	ids := make([]string, 0, len(left))
	for _, m := range left {
		ids = append(ids, m.PropertyID)
	}
	assert.ElementsMatch(t, []string{"p1", "p3", "p4"}, ids)
}

func TestMarkAndAssign_NotFound(t *testing.T) {
	db := setupTestDatabase(t)

	assert.ErrorIs(t, db.MarkNotified(42, time.Now()), ErrNotFound)
	_, err := db.AssignMatch(42, "tanaka")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTelegramConfig(t *testing.T) {
	db := setupTestDatabase(t)

	cfg, err := db.GetTelegramConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	cfg, err = db.UpdateTelegramConfig(&models.TelegramConfigRequest{
		IsEnabled: true,
		BotToken:  "token",
		ChatID:    "123",
	})
	require.NoError(t, err)
	assert.Equal(t, "high", cfg.MinLevel)

	_, err = db.UpdateTelegramConfig(&models.TelegramConfigRequest{
		IsEnabled: true,
		BotToken:  "token2",
		ChatID:    "456",
		MinLevel:  "medium",
	})
	require.NoError(t, err)

	loaded, err := db.GetTelegramConfig()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, cfg.ID, loaded.ID)
	assert.Equal(t, "token2", loaded.BotToken)
	assert.True(t, loaded.ShouldNotify(models.AlertMedium))

	var count int64
	require.NoError(t, db.GetDB().Model(&models.TelegramConfig{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
