package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/MonsoudZ/Cardly/internal/config"
	"github.com/MonsoudZ/Cardly/internal/marketplace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing (in-memory storage,
// fake payment provider)
func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		PlatformFeeRate: decimal.RequireFromString("0.05"),
		OfferTTL:        48 * time.Hour,
		SweepInterval:   time.Hour,
		RateLimitRPS:    1000,
		BaseURL:         "http://localhost:8080",
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/metrics",
		"POST:/webhooks/stripe",
		"POST:/v1/listings",
		"POST:/v1/offers",
		"POST:/v1/offers/:id/counter",
		"POST:/v1/offers/:id/accept",
		"POST:/v1/offers/:id/checkout",
		"GET:/v1/checkout/success",
		"POST:/v1/disputes",
		"POST:/v1/admin/disputes/:id/resolve",
		"POST:/v1/ratings",
		"GET:/v1/users/:id/ratings/summary",
		"POST:/v1/notifications/subscriptions",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Identity and admin middleware tests
// ---------------------------------------------------------------------------

func TestSubscriptionsRequireActor(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/notifications/subscriptions", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without X-Actor-ID, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/notifications/subscriptions", nil)
	req.Header.Set("X-Actor-ID", "usr_test")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with X-Actor-ID, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminRoutesRejectBadSecret(t *testing.T) {
	cfg := testConfig()
	cfg.AdminSecret = "staff-secret"
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/disputes/dsp_x/review", nil)
	req.Header.Set("X-Actor-ID", "staff_1")
	req.Header.Set("X-Admin-Secret", "wrong")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for bad admin secret, got %d", w.Code)
	}

	// Correct secret passes the guard; the unknown dispute then 404s
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/admin/disputes/dsp_x/review", nil)
	req.Header.Set("X-Actor-ID", "staff_1")
	req.Header.Set("X-Admin-Secret", "staff-secret")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 past the guard, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// End-to-end offer flow over HTTP
// ---------------------------------------------------------------------------

func TestOfferFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	// Seed users and a card directly in the store
	seedMarketplace(t, s)

	// Seller lists the card
	body := `{"giftCardId":"card_http","type":"sale","askingPrice":"45"}`
	w := doJSON(s, "POST", "/v1/listings", body, "usr_seller")
	if w.Code != http.StatusCreated {
		t.Fatalf("CreateListing: %d: %s", w.Code, w.Body.String())
	}
	var listingResp struct {
		Listing struct {
			ID string `json:"id"`
		} `json:"listing"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listingResp); err != nil {
		t.Fatalf("parse listing: %v", err)
	}

	// Buyer makes an offer at asking price
	w = doJSON(s, "POST", "/v1/offers", `{"listingId":"`+listingResp.Listing.ID+`"}`, "usr_buyer")
	if w.Code != http.StatusCreated {
		t.Fatalf("CreateOffer: %d: %s", w.Code, w.Body.String())
	}
	var offerResp struct {
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &offerResp); err != nil {
		t.Fatalf("parse offer: %v", err)
	}
	if offerResp.Transaction.Status != "pending" {
		t.Fatalf("offer status = %s, want pending", offerResp.Transaction.Status)
	}

	// Seller accepts
	w = doJSON(s, "POST", "/v1/offers/"+offerResp.Transaction.ID+"/accept", "", "usr_seller")
	if w.Code != http.StatusOK {
		t.Fatalf("Accept: %d: %s", w.Code, w.Body.String())
	}

	// A stranger cannot read the transaction
	w = doJSON(s, "GET", "/v1/offers/"+offerResp.Transaction.ID, "", "usr_stranger")
	if w.Code != http.StatusForbidden {
		t.Errorf("stranger read: %d, want 403", w.Code)
	}
}

func seedMarketplace(t *testing.T, s *Server) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"usr_seller", "usr_buyer", "usr_stranger"} {
		if err := s.store.CreateUser(ctx, &marketplace.User{
			ID: id, Email: id + "@example.com", CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("CreateUser(%s): %v", id, err)
		}
	}
	if err := s.store.CreateCard(ctx, &marketplace.GiftCard{
		ID: "card_http", OwnerID: "usr_seller", Brand: "Amazon",
		Balance: decimal.NewFromInt(50), Status: marketplace.CardActive,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
}

func doJSON(s *Server, method, path, body, actor string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-Actor-ID", actor)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
