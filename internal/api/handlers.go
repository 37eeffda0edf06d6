// Package api exposes the league operations as a JSON HTTP API.
package api

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"github.com/shopspring/decimal"

	"github.com/stockleague/league/internal/apperr"
	"github.com/stockleague/league/internal/league"
	"github.com/stockleague/league/internal/model"
)

// Handler serves the league endpoints.
type Handler struct {
	svc   *league.Service
	query *schema.Decoder
}

// NewHandler creates a Handler backed by svc.
func NewHandler(svc *league.Service) *Handler {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	return &Handler{svc: svc, query: dec}
}

// --- Request/Response types ---

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token and the user's profile.
type LoginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// PriceResponse is the body of GET /stockprice.
type PriceResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// TradeResponse is the body returned from POST /trades.
type TradeResponse struct {
	Trade  *model.Trade    `json:"trade"`
	Amount decimal.Decimal `json:"amount"`
	Closed bool            `json:"position_closed"`
	User   *model.User     `json:"user"`
}

type leaderboardQuery struct {
	Limit int `schema:"limit"`
}

// --- Accounts ---

// Register handles POST /api/v1/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req league.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, u, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: u})
}

// GetUser handles GET /api/v1/user
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	u, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateUser handles PUT /api/v1/user
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	var req league.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.UpdateUser(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- Quotes ---

// GetPrice handles GET /api/v1/stockprice?symbol=
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	sym, p, err := h.svc.GetPrice(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{Symbol: sym, Price: p})
}

// --- Trades ---

// ListTrades handles GET /api/v1/trades?symbol=&limit=
func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	var q league.TradeQuery
	if err := h.query.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, r, apperr.Wrap(apperr.Validation, "invalid query", err))
		return
	}
	trades, err := h.svc.ListTrades(r.Context(), userID, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// ExportTrades handles GET /api/v1/trades/export
func (h *Handler) ExportTrades(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	// Buffer so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := h.svc.ExportTrades(r.Context(), userID, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trades.csv"`)
	w.Write(buf.Bytes())
}

// ExecuteTrade handles POST /api/v1/trades
func (h *Handler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	var req league.TradeInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	eff, err := h.svc.ExecuteTrade(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, TradeResponse{
		Trade:  eff.Trade,
		Amount: eff.Amount,
		Closed: eff.Closed,
		User:   eff.User,
	})
}

// DeleteTrade handles DELETE /api/v1/trades/{tradeID}
func (h *Handler) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	if err := h.svc.DeleteTrade(r.Context(), userID, chi.URLParam(r, "tradeID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Matchups ---

// ListMatchups handles GET /api/v1/matchups
func (h *Handler) ListMatchups(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListMatchups(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateMatchup handles POST /api/v1/matchups
func (h *Handler) CreateMatchup(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	var req league.MatchupInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.svc.CreateMatchup(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// JoinMatchup handles POST /api/v1/matchups/{matchupID}/join
func (h *Handler) JoinMatchup(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	v, err := h.svc.JoinMatchup(r.Context(), userID, chi.URLParam(r, "matchupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SettleMatchup handles POST /api/v1/matchups/{matchupID}/settle
func (h *Handler) SettleMatchup(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r)
	v, err := h.svc.SettleMatchup(r.Context(), userID, chi.URLParam(r, "matchupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- Leaderboard ---

// GetLeaderboard handles GET /api/v1/leaderboard?limit=
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	var q leaderboardQuery
	if err := h.query.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, r, apperr.Wrap(apperr.Validation, "invalid query", err))
		return
	}
	board, err := h.svc.GetLeaderboard(r.Context(), q.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// Health handles GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "stock-league"})
}
