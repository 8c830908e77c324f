package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landmatch/server/config"
	"landmatch/server/internal/database"
	"landmatch/server/internal/matching"
	"landmatch/server/internal/models"
	"landmatch/server/internal/queue"
	"landmatch/server/internal/telegram"
)

type testServer struct {
	router   *gin.Engine
	db       *database.Database
	groups   *config.AreaGroups
	botCalls *int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewTestDatabase()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var calls int32
	bot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(bot.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	groups := config.NewAreaGroups(filepath.Join(t.TempDir(), "area_groups.json"))
	tg := telegram.NewService(logger)
	tg.SetAPIURL(bot.URL)
	tg.SetDatabase(db)

	handler := NewHandler(db, logger, Options{
		Engine:     matching.NewEngine(matching.DefaultWeights(), matching.WithAreaResolver(groups)),
		AreaGroups: groups,
		Telegram:   tg,
	})

	router := gin.New()
	SetupRoutes(router, handler)
	return &testServer{router: router, db: db, groups: groups, botCalls: &calls}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func (s *testServer) seedProperties(t *testing.T) {
	t.Helper()
	require.NoError(t, s.db.SaveProperties([]*models.LandProperty{
		{ID: "p1", Name: "豊中の分譲地", Area: "豊中市", LandArea: 50, Price: 2000, StationDistance: 8},
		{ID: "p2", Name: "吹田の土地", Area: "吹田市", LandArea: 45, Price: 3300, StationDistance: 12},
		{ID: "p3", Name: "堺の土地", Area: "堺市", LandArea: 60, Price: 9000, StationDistance: 5},
		{ID: "p4", Name: "成約済み", Area: "豊中市", LandArea: 50, Price: 2000, Status: models.StatusSold},
	}))
}

func TestGetConditions_CreatesDefaults(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/customers/cust-1/conditions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.LandConditions
	decode(t, w, &got)
	assert.Equal(t, "cust-1", got.CustomerID)
	assert.Equal(t, models.SourceManual, got.LastUpdatedFrom)
	assert.Equal(t, models.DefaultPriorities(), got.Priorities)
	assert.Equal(t, models.ShapeAny, got.ShapePreference)
	assert.Empty(t, got.DesiredAreas)
}

func TestSaveConditions(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/customers/cust-1/conditions", map[string]interface{}{
		"customer_id":   "someone-else",
		"desired_areas": []string{"豊中市"},
		"max_price":     3000,
		"corner_lot":    true,
		"flat_land":     false,
		"priorities":    map[string]int{"area": 9, "price": 4, "size": 3, "access": 0, "environment": 3},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := s.db.GetConditions("cust-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"豊中市"}, stored.DesiredAreas)
	assert.Equal(t, 3000, *stored.MaxPrice)
	assert.Equal(t, models.TriRequired, stored.CornerLot)
	assert.Equal(t, models.TriExcluded, stored.FlatLand)
	assert.Equal(t, models.TriAny, stored.NewDevelopment)
	assert.Equal(t, 5, stored.Priorities.Area)
	assert.Equal(t, 1, stored.Priorities.Access)
	assert.Equal(t, models.SourceManual, stored.LastUpdatedFrom)

	_, err = s.db.GetConditions("someone-else")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestSaveConditions_RejectsInconsistentRanges(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/customers/cust-1/conditions", map[string]interface{}{
		"min_price": 4000,
		"max_price": 3000,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "min price")
}

func TestUpdateConditions_ManualPatch(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPatch, "/api/customers/cust-1/conditions", map[string]interface{}{
		"desired_areas":    []string{"箕面市"},
		"station_distance": 10,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ExtractionResponse
	decode(t, w, &resp)
	assert.Equal(t, []string{"箕面市"}, resp.Conditions.DesiredAreas)
	assert.Equal(t, 10, *resp.Conditions.StationDistance)
	assert.Equal(t, models.SourceManual, resp.Conditions.LastUpdatedFrom)
}

func TestUpdateConditions_PartialPrioritiesAndTriStateReset(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPatch, "/api/customers/cust-1/conditions", map[string]interface{}{
		"priorities": map[string]int{"area": 5},
		"corner_lot": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ExtractionResponse
	decode(t, w, &resp)
	assert.Equal(t, models.Priorities{Area: 5, Price: 3, Size: 3, Access: 3, Environment: 3}, resp.Conditions.Priorities)
	assert.Equal(t, models.TriRequired, resp.Conditions.CornerLot)

	w = s.do(t, http.MethodPatch, "/api/customers/cust-1/conditions", map[string]interface{}{
		"corner_lot": nil,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := s.db.GetConditions("cust-1")
	require.NoError(t, err)
	assert.Equal(t, models.TriAny, stored.CornerLot)
	assert.Equal(t, 5, stored.Priorities.Area)
	assert.Equal(t, 3, stored.Priorities.Price)
}

func TestExtractHearingSheet_RespectsManualProtection(t *testing.T) {
	s := newTestServer(t)

	// An operator sets the desired area first
	w := s.do(t, http.MethodPatch, "/api/customers/cust-1/conditions", map[string]interface{}{
		"desired_areas": []string{"箕面市"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/customers/cust-1/conditions/hearing-sheet", map[string]interface{}{
		"desired_area":      "豊中市、吹田市",
		"budget":            50000000,
		"land_requirements": "50坪程度、駅から徒歩10分以内、角地希望",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ExtractionResponse
	decode(t, w, &resp)
	assert.Equal(t, []string{"豊中市", "吹田市"}, resp.Extracted.DesiredAreas)
	assert.Equal(t, 2000, *resp.Extracted.MaxPrice)

	assert.Equal(t, []string{"箕面市"}, resp.Conditions.DesiredAreas)
	assert.Nil(t, resp.Conditions.MaxPrice)
	assert.Equal(t, 10, *resp.Conditions.StationDistance)
	assert.Equal(t, models.TriRequired, resp.Conditions.CornerLot)
	assert.Equal(t, models.SourceHearingSheet, resp.Conditions.LastUpdatedFrom)

	// The next automated document is applied in full
	w = s.do(t, http.MethodPost, "/api/customers/cust-1/conditions/reception", map[string]interface{}{
		"address": "大阪府豊中市新千里東町1-2-3",
		"notes":   "予算：2800万",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := s.db.GetConditions("cust-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"箕面市", "豊中"}, stored.DesiredAreas)
	assert.Equal(t, 2800, *stored.MaxPrice)
	assert.Equal(t, models.SourceReception, stored.LastUpdatedFrom)
}

func TestExtractNegotiation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/customers/cust-2/conditions/negotiation", map[string]interface{}{
		"content": "駅から15分以内、平坦な土地が希望",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := s.db.GetConditions("cust-2")
	require.NoError(t, err)
	assert.Equal(t, 15, *stored.StationDistance)
	assert.Equal(t, models.TriRequired, stored.FlatLand)
	assert.Equal(t, models.SourceNegotiation, stored.LastUpdatedFrom)
}

func TestCreateAndGetProperties(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/properties", []map[string]interface{}{
		{"id": "n1", "area": "豊中市", "land_area": 50, "price": 2000, "source": "suumo"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/properties/n1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p models.LandProperty
	decode(t, w, &p)
	assert.Equal(t, 40.0, p.PricePerTsubo)
	assert.Equal(t, models.StatusAvailable, p.Status)

	w = s.do(t, http.MethodGet, "/api/properties/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/properties?status=available", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.LandProperty
	decode(t, w, &list)
	assert.Len(t, list, 1)

	w = s.do(t, http.MethodGet, "/api/properties?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateProperties_Queued(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := database.NewTestDatabase()
	require.NoError(t, err)
	defer db.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	q := queue.NewPropertyQueue(1, logger)
	defer q.Close()

	router := gin.New()
	SetupRoutes(router, NewHandler(db, logger, Options{Queue: q}))
	s := &testServer{router: router, db: db}

	body := []map[string]interface{}{{"id": "q1", "area": "豊中市", "price": 2000}}
	w := s.do(t, http.MethodPost, "/api/properties", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.JSONEq(t, `{"queued":1}`, w.Body.String())
	assert.Equal(t, 1, q.Len())

	w = s.do(t, http.MethodPost, "/api/properties", body)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateProperties_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"Empty batch", []map[string]interface{}{}},
		{"Not a list", map[string]interface{}{"id": "x"}},
		{"No location", []map[string]interface{}{{"id": "x", "price": 100}}},
		{"Negative price", []map[string]interface{}{{"id": "x", "area": "豊中市", "price": -1}}},
		{"Unknown source", []map[string]interface{}{{"id": "x", "area": "豊中市", "source": "flyer"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/properties", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestMatchProperty(t *testing.T) {
	s := newTestServer(t)
	s.seedProperties(t)

	w := s.do(t, http.MethodGet, "/api/properties/missing/match/cust-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A customer without a record is scored against defaults and gets one
	w = s.do(t, http.MethodGet, "/api/properties/p1/match/cust-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var initial models.MatchResult
	decode(t, w, &initial)
	assert.Equal(t, "cust-1", initial.CustomerID)
	assert.Equal(t, models.AlertLow, initial.AlertLevel)

	created, err := s.db.GetConditions("cust-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPriorities(), created.Priorities)

	s.do(t, http.MethodPatch, "/api/customers/cust-1/conditions", map[string]interface{}{
		"desired_areas": []string{"豊中市"},
		"max_price":     3000,
	})

	w = s.do(t, http.MethodGet, "/api/properties/p1/match/cust-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result models.MatchResult
	decode(t, w, &result)
	assert.Equal(t, "p1", result.PropertyID)
	assert.Equal(t, 96, result.MatchScore)
	assert.Equal(t, models.AlertHigh, result.AlertLevel)
	assert.Nil(t, result.NotifiedAt)
}

func TestGetCustomerMatches(t *testing.T) {
	s := newTestServer(t)
	s.seedProperties(t)

	s.do(t, http.MethodPatch, "/api/customers/cust-1/conditions", map[string]interface{}{
		"desired_areas": []string{"豊中市", "吹田市"},
		"max_price":     3000,
	})

	w := s.do(t, http.MethodGet, "/api/customers/cust-1/matches", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var results []models.MatchResult
	decode(t, w, &results)
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].PropertyID)
	assert.Equal(t, "p2", results[1].PropertyID)

	w = s.do(t, http.MethodGet, "/api/customers/cust-1/matches?min_score=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &results)
	assert.Len(t, results, 3)

	w = s.do(t, http.MethodGet, "/api/customers/cust-1/matches?min_score=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAreaGroupsExpandDesiredAreas(t *testing.T) {
	s := newTestServer(t)
	s.seedProperties(t)

	w := s.do(t, http.MethodPut, "/api/area-groups/"+url.PathEscape("北摂"), map[string]interface{}{
		"cities": []string{"豊中市", "吹田市", "箕面市"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	s.do(t, http.MethodPatch, "/api/customers/cust-1/conditions", map[string]interface{}{
		"desired_areas": []string{"北摂"},
		"max_price":     3500,
	})

	w = s.do(t, http.MethodGet, "/api/customers/cust-1/matches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var results []models.MatchResult
	decode(t, w, &results)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "p3", r.PropertyID)
	}

	w = s.do(t, http.MethodGet, "/api/area-groups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var groups []models.AreaGroup
	decode(t, w, &groups)
	require.Len(t, groups, 1)
	assert.Equal(t, "北摂", groups[0].Name)

	w = s.do(t, http.MethodDelete, "/api/area-groups/"+url.PathEscape("北摂"), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/area-groups/"+url.PathEscape("北摂"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/area-groups/empty", map[string]interface{}{"cities": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunMatchingAndAssign(t *testing.T) {
	s := newTestServer(t)
	s.seedProperties(t)

	s.do(t, http.MethodPatch, "/api/customers/cust-1/conditions", map[string]interface{}{
		"desired_areas": []string{"豊中市"},
		"max_price":     3000,
	})

	w := s.do(t, http.MethodPost, "/api/matching/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary map[string]interface{}
	decode(t, w, &summary)
	assert.Equal(t, float64(1), summary["customers"])
	assert.Equal(t, float64(3), summary["properties"])

	w = s.do(t, http.MethodGet, "/api/matches?level=high", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var matches []models.StoredMatch
	decode(t, w, &matches)
	require.NotEmpty(t, matches)
	assert.Equal(t, "p1", matches[0].PropertyID)

	w = s.do(t, http.MethodPut, "/api/matches/"+strconv.FormatUint(uint64(matches[0].ID), 10)+"/assign", map[string]string{"assigned_to": "tanaka"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var assigned models.StoredMatch
	decode(t, w, &assigned)
	require.NotNil(t, assigned.AssignedTo)
	assert.Equal(t, "tanaka", *assigned.AssignedTo)

	w = s.do(t, http.MethodPut, "/api/matches/9999/assign", map[string]string{"assigned_to": "tanaka"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPut, "/api/matches/abc/assign", map[string]string{"assigned_to": "tanaka"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPut, "/api/matches/1/assign", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/matches?level=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTelegramConfigFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/telegram/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_enabled":false`)

	w = s.do(t, http.MethodPost, "/api/telegram/test", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/telegram/config", map[string]interface{}{
		"is_enabled": true,
		"bot_token":  "short",
		"chat_id":    "42",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token := "123456789:ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	w = s.do(t, http.MethodPut, "/api/telegram/config", map[string]interface{}{
		"is_enabled": true,
		"bot_token":  token,
		"chat_id":    "42",
		"min_level":  "medium",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(s.botCalls))

	w = s.do(t, http.MethodGet, "/api/telegram/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg models.TelegramConfig
	decode(t, w, &cfg)
	assert.True(t, cfg.IsEnabled)
	assert.Equal(t, "medium", cfg.MinLevel)
	assert.NotContains(t, cfg.BotToken, "ABCDEF")

	w = s.do(t, http.MethodPost, "/api/telegram/test", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(s.botCalls))

	w = s.do(t, http.MethodPut, "/api/telegram/config", map[string]interface{}{
		"is_enabled": true,
		"bot_token":  token,
		"chat_id":    "42",
		"min_level":  "low",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
