package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockleague/league/internal/api"
	"github.com/stockleague/league/internal/apperr"
	"github.com/stockleague/league/internal/auth"
	"github.com/stockleague/league/internal/league"
	"github.com/stockleague/league/internal/model"
	"github.com/stockleague/league/internal/quote"
	"github.com/stockleague/league/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newTestEnv creates a router over an in-memory store and static prices.
func newTestEnv(t *testing.T) (*quote.Static, http.Handler) {
	t.Helper()
	prices := quote.NewStatic(map[string]decimal.Decimal{
		"AAPL": d("100"),
		"MSFT": d("400"),
	})
	issuer := auth.NewIssuer("test", []byte("secret"), time.Hour)
	svc := league.NewService(store.NewMemoryStore(), prices, issuer, d("100000"), nil)
	return prices, api.NewRouter(api.RouterDeps{Service: svc})
}

func do(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// signup registers and logs in, returning the token.
func signup(t *testing.T, router http.Handler, name string) string {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/auth/register", "", map[string]string{
		"name": name, "email": name + "@example.com", "password": "pw",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, router, "POST", "/api/v1/auth/login", "", map[string]string{
		"email": name + "@example.com", "password": "pw",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return decode[api.LoginResponse](t, w).Token
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, kind apperr.Kind) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
	resp := decode[api.ErrorResponse](t, w)
	if resp.Error != kind {
		t.Errorf("expected error kind %s, got %s (%s)", kind, resp.Error, resp.Message)
	}
	if resp.Message == "" {
		t.Error("expected a message")
	}
}

// --- Auth ---

func TestRegisterLoginProfile(t *testing.T) {
	_, router := newTestEnv(t)
	token := signup(t, router, "alice")

	w := do(t, router, "GET", "/api/v1/user", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("profile leaks password hash: %s", w.Body.String())
	}
	u := decode[model.User](t, w)
	if u.Name != "alice" || !u.Cash.Equal(d("100000")) {
		t.Errorf("unexpected profile: %+v", u)
	}

	w = do(t, router, "PUT", "/api/v1/user", token, map[string]string{"name": "alicia"})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[model.User](t, w); got.Name != "alicia" {
		t.Errorf("expected alicia, got %s", got.Name)
	}

	w = do(t, router, "POST", "/api/v1/auth/register", "", map[string]string{
		"name": "other", "email": "alice@example.com", "password": "pw",
	})
	expectError(t, w, http.StatusConflict, apperr.Conflict)

	w = do(t, router, "POST", "/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "nope",
	})
	expectError(t, w, http.StatusUnauthorized, apperr.Auth)
}

func TestAuthRequired(t *testing.T) {
	_, router := newTestEnv(t)

	for _, path := range []string{"/api/v1/user", "/api/v1/trades", "/api/v1/trades/export"} {
		w := do(t, router, "GET", path, "", nil)
		expectError(t, w, http.StatusUnauthorized, apperr.Auth)

		w = do(t, router, "GET", path, "not-a-jwt", nil)
		expectError(t, w, http.StatusUnauthorized, apperr.Auth)
	}
}

func TestMalformedBody(t *testing.T) {
	_, router := newTestEnv(t)
	req := httptest.NewRequest("POST", "/api/v1/auth/register", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, apperr.Validation)
}

// --- Quotes ---

func TestGetPrice(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "GET", "/api/v1/stockprice?symbol=aapl", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[api.PriceResponse](t, w)
	if resp.Symbol != "AAPL" || !resp.Price.Equal(d("100")) {
		t.Errorf("unexpected price: %+v", resp)
	}

	expectError(t, do(t, router, "GET", "/api/v1/stockprice", "", nil), http.StatusBadRequest, apperr.Validation)
	expectError(t, do(t, router, "GET", "/api/v1/stockprice?symbol=NOPE", "", nil), http.StatusNotFound, apperr.SymbolNotFound)
}

// --- Trades ---

func TestExecuteTrade_BuySellAndHistory(t *testing.T) {
	prices, router := newTestEnv(t)
	token := signup(t, router, "alice")

	w := do(t, router, "POST", "/api/v1/trades", token, map[string]any{
		"stock_symbol": "AAPL", "quantity": 10, "type": "buy",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("buy: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.TradeResponse](t, w)
	if resp.Trade.ID == "" {
		t.Error("expected non-empty trade id")
	}
	if !resp.User.Cash.Equal(d("99000")) {
		t.Errorf("cash after buy: %s", resp.User.Cash)
	}
	if !resp.Amount.Equal(d("1000")) {
		t.Errorf("amount: %s", resp.Amount)
	}

	prices.Set("AAPL", d("200"))
	do(t, router, "POST", "/api/v1/trades", token, map[string]any{"stock_symbol": "AAPL", "quantity": 10, "type": "buy"})

	w = do(t, router, "POST", "/api/v1/trades", token, map[string]any{"stock_symbol": "AAPL", "quantity": 20, "type": "sell"})
	if w.Code != http.StatusCreated {
		t.Fatalf("sell: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp = decode[api.TradeResponse](t, w)
	if !resp.Closed || len(resp.User.Positions) != 0 {
		t.Errorf("sell all should close the position: %+v", resp)
	}

	w = do(t, router, "GET", "/api/v1/trades?limit=2", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	trades := decode[[]model.Trade](t, w)
	if len(trades) != 2 || trades[0].Side != model.SideSell {
		t.Errorf("expected 2 newest trades starting with the sell, got %+v", trades)
	}

	w = do(t, router, "GET", "/api/v1/trades?limit=abc", token, nil)
	expectError(t, w, http.StatusBadRequest, apperr.Validation)
}

func TestExecuteTrade_Rejections(t *testing.T) {
	_, router := newTestEnv(t)
	token := signup(t, router, "alice")

	tests := []struct {
		name   string
		body   map[string]any
		status int
		kind   apperr.Kind
	}{
		{"overspend", map[string]any{"stock_symbol": "MSFT", "quantity": 1000, "type": "buy"}, http.StatusBadRequest, apperr.InsufficientFunds},
		{"no position", map[string]any{"stock_symbol": "AAPL", "quantity": 1, "type": "sell"}, http.StatusBadRequest, apperr.NoPosition},
		{"unknown symbol", map[string]any{"stock_symbol": "ZZZZ", "quantity": 1, "type": "buy"}, http.StatusNotFound, apperr.SymbolNotFound},
		{"zero quantity", map[string]any{"stock_symbol": "AAPL", "quantity": 0, "type": "buy"}, http.StatusBadRequest, apperr.Validation},
		{"bad side", map[string]any{"stock_symbol": "AAPL", "quantity": 1, "type": "hold"}, http.StatusBadRequest, apperr.Validation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/trades", token, tt.body)
			expectError(t, w, tt.status, tt.kind)
		})
	}

	// Oversell after a small buy.
	do(t, router, "POST", "/api/v1/trades", token, map[string]any{"stock_symbol": "AAPL", "quantity": 1, "type": "buy"})
	w := do(t, router, "POST", "/api/v1/trades", token, map[string]any{"stock_symbol": "AAPL", "quantity": 2, "type": "sell"})
	expectError(t, w, http.StatusBadRequest, apperr.InsufficientShares)

	u := decode[model.User](t, do(t, router, "GET", "/api/v1/user", token, nil))
	if !u.Cash.Equal(d("99900")) {
		t.Errorf("rejections changed cash: %s", u.Cash)
	}
}

func TestDeleteTrade(t *testing.T) {
	_, router := newTestEnv(t)
	alice := signup(t, router, "alice")
	bob := signup(t, router, "bob")

	w := do(t, router, "POST", "/api/v1/trades", alice, map[string]any{"stock_symbol": "AAPL", "quantity": 5, "type": "buy"})
	tradeID := decode[api.TradeResponse](t, w).Trade.ID

	w = do(t, router, "DELETE", "/api/v1/trades/"+tradeID, bob, nil)
	expectError(t, w, http.StatusNotFound, apperr.NotFound)

	w = do(t, router, "DELETE", "/api/v1/trades/"+tradeID, alice, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	u := decode[model.User](t, do(t, router, "GET", "/api/v1/user", alice, nil))
	if !u.Cash.Equal(d("99500")) || len(u.Positions) != 1 {
		t.Errorf("delete must not reverse the ledger: %+v", u)
	}
}

func TestExportTrades(t *testing.T) {
	_, router := newTestEnv(t)
	token := signup(t, router, "alice")
	do(t, router, "POST", "/api/v1/trades", token, map[string]any{"stock_symbol": "MSFT", "quantity": 2, "type": "buy"})

	w := do(t, router, "GET", "/api/v1/trades/export", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type: %s", ct)
	}
	if !strings.Contains(w.Body.String(), ",MSFT,buy,2,400.00,800.00") {
		t.Errorf("unexpected csv: %s", w.Body.String())
	}
}

// --- Leaderboard & matchups ---

func TestLeaderboard(t *testing.T) {
	prices, router := newTestEnv(t)
	alice := signup(t, router, "alice")
	signup(t, router, "bob")

	do(t, router, "POST", "/api/v1/trades", alice, map[string]any{"stock_symbol": "AAPL", "quantity": 10, "type": "buy"})
	prices.Set("AAPL", d("150"))
	do(t, router, "POST", "/api/v1/trades", alice, map[string]any{"stock_symbol": "AAPL", "quantity": 10, "type": "sell"})

	w := do(t, router, "GET", "/api/v1/leaderboard", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	board := decode[league.Board](t, w)
	if len(board.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board.Entries))
	}
	if board.Entries[0].Name != "alice" || board.Entries[0].Rank != 1 {
		t.Errorf("alice should lead: %+v", board.Entries[0])
	}
	if !board.Entries[0].ROI.Equal(d("0.5")) {
		t.Errorf("alice roi: %s", board.Entries[0].ROI)
	}
	if !board.Entries[1].ROI.IsZero() {
		t.Errorf("untouched user roi must be 0, got %s", board.Entries[1].ROI)
	}

	board = decode[league.Board](t, do(t, router, "GET", "/api/v1/leaderboard?limit=1", "", nil))
	if len(board.Entries) != 1 || board.Summary.Participants != 2 {
		t.Errorf("limit: %+v", board)
	}
}

func TestMatchups(t *testing.T) {
	_, router := newTestEnv(t)
	alice := signup(t, router, "alice")
	bob := signup(t, router, "bob")

	start := time.Now().Add(-2 * time.Hour).UTC()
	w := do(t, router, "POST", "/api/v1/matchups", alice, map[string]any{
		"title": "Sprint", "start_date": start, "end_date": start.Add(time.Hour),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	m := decode[league.MatchupView](t, w)

	w = do(t, router, "POST", "/api/v1/matchups/"+m.ID+"/join", bob, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	do(t, router, "POST", "/api/v1/trades", bob, map[string]any{"stock_symbol": "AAPL", "quantity": 1, "type": "buy"})

	w = do(t, router, "POST", "/api/v1/matchups/"+m.ID+"/settle", bob, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("settle: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	settled := decode[league.MatchupView](t, w)
	// Both sit at ROI 0; ties go to the lower user ID.
	if settled.WinnerID == "" || settled.WinnerName == "" {
		t.Errorf("expected a winner: %+v", settled)
	}

	w = do(t, router, "POST", "/api/v1/matchups/"+m.ID+"/settle", alice, nil)
	expectError(t, w, http.StatusConflict, apperr.Conflict)

	w = do(t, router, "GET", "/api/v1/matchups", "", nil)
	list := decode[[]league.MatchupView](t, w)
	if len(list) != 1 || len(list[0].ParticipantNames) != 2 {
		t.Errorf("unexpected matchups: %+v", list)
	}

	w = do(t, router, "POST", "/api/v1/matchups", alice, map[string]any{"title": ""})
	expectError(t, w, http.StatusBadRequest, apperr.Validation)
}

func TestCreateMatchup_DateOnly(t *testing.T) {
	_, router := newTestEnv(t)
	alice := signup(t, router, "alice")

	w := do(t, router, "POST", "/api/v1/matchups", alice, map[string]any{
		"title": "Sprint", "start_date": "2026-10-01", "end_date": "2026-10-08",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	m := decode[league.MatchupView](t, w)
	if want := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC); !m.StartDate.Equal(want) {
		t.Errorf("start: expected %s, got %s", want, m.StartDate)
	}
	if want := time.Date(2026, 10, 8, 0, 0, 0, 0, time.UTC); !m.EndDate.Equal(want) {
		t.Errorf("end: expected %s, got %s", want, m.EndDate)
	}

	w = do(t, router, "POST", "/api/v1/matchups", alice, map[string]any{
		"title": "Sprint", "start_date": "2026-10-01", "end_date": "next week",
	})
	expectError(t, w, http.StatusBadRequest, apperr.Validation)
}

func TestHealthAndMetrics(t *testing.T) {
	_, router := newTestEnv(t)
	if w := do(t, router, "GET", "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("health: %d", w.Code)
	}
	w := do(t, router, "GET", "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "league_http_requests_total") {
		t.Errorf("metrics endpoint missing league metrics (status %d)", w.Code)
	}
}
