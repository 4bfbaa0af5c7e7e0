package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/config"
	"github.com/infrachain/server/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T, metricsEnabled bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{Metrics: config.MetricsConfig{Enabled: metricsEnabled, Path: "/metrics"}}
	adapter := chain.NewAdapter(config.ChainConfig{ChainType: "ethereum", ChainId: 31337})
	t.Cleanup(adapter.Close)
	return Setup(db, adapter, nil, cfg)
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealthReportsChainAvailability(t *testing.T) {
	r := newTestRouter(t, true)

	w := serve(r, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" || body["chain_available"] != false {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	r := newTestRouter(t, true)
	w := serve(r, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("expected exposition, got %d", w.Code)
	}

	r = newTestRouter(t, false)
	if w := serve(r, http.MethodGet, "/metrics"); w.Code != http.StatusNotFound {
		t.Fatalf("metrics disabled: expected 404, got %d", w.Code)
	}
}

func TestRoutesWithUnavailableChain(t *testing.T) {
	r := newTestRouter(t, false)

	cases := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/projects", http.StatusOK},
		{http.MethodGet, "/api/users/me", http.StatusUnauthorized},
		{http.MethodGet, "/api/notifications", http.StatusUnauthorized},
		{http.MethodPost, "/api/investments", http.StatusUnauthorized},
		{http.MethodGet, "/api/blockchain/status", http.StatusOK},
		{http.MethodGet, "/api/blockchain/projects/1", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/blockchain/tx/0x1234", http.StatusBadRequest},
		{http.MethodOptions, "/api/projects", http.StatusNoContent},
	}
	for _, tc := range cases {
		if w := serve(r, tc.method, tc.path); w.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, w.Code)
		}
	}
}
