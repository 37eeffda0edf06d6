// Package league implements the operations of the stock league: accounts,
// quotes, trade execution, trade history, matchups and the leaderboard.
//
// Trade execution is two-phase. The quote is fetched first, without any
// lock held; the ledger update then runs under a per-user lock and is
// committed as one unit, guarded again by the store's optimistic version.
package league

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockleague/league/internal/apperr"
	"github.com/stockleague/league/internal/auth"
	"github.com/stockleague/league/internal/metrics"
	"github.com/stockleague/league/internal/model"
	"github.com/stockleague/league/internal/portfolio"
	"github.com/stockleague/league/internal/quote"
	"github.com/stockleague/league/internal/store"
	"github.com/stockleague/league/internal/ticker"
)

// MaxTradeLimit caps the page size of ListTrades.
const MaxTradeLimit = 500

var (
	ErrMissingFields      = apperr.New(apperr.Validation, "name, email and password are required")
	ErrUserExists         = apperr.New(apperr.Conflict, "user already exists")
	ErrInvalidCredentials = apperr.New(apperr.Auth, "invalid credentials")
	ErrFractionalShares   = apperr.New(apperr.Validation, "quantity must be a whole number of shares")
	ErrInvalidLimit       = apperr.New(apperr.Validation, "limit must not be negative")
)

// Notifier is told about every committed trade. The websocket feed
// implements it.
type Notifier interface {
	TradeExecuted(t model.Trade)
}

// Service holds the collaborators every operation needs.
type Service struct {
	store    store.Store
	oracle   quote.Oracle
	issuer   *auth.Issuer
	initial  decimal.Decimal
	notifier Notifier
	locks    *userLocks
	now      func() time.Time
}

// NewService creates a league service. Pass nil for n if no one needs to
// hear about trades.
func NewService(st store.Store, oracle quote.Oracle, issuer *auth.Issuer, initialBalance decimal.Decimal, n Notifier) *Service {
	return &Service{
		store:    st,
		oracle:   oracle,
		issuer:   issuer,
		initial:  initialBalance,
		notifier: n,
		locks:    newUserLocks(),
		now:      time.Now,
	}
}

// Authenticate resolves a bearer token to a user ID.
func (s *Service) Authenticate(token string) (string, error) {
	return s.issuer.Parse(token)
}

// --- Accounts ---

// RegisterInput is the payload of Register.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account funded with the initial balance.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || in.Password == "" {
		return nil, ErrMissingFields
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "hash password", err)
	}

	u := model.NewUser(name, email, hash, s.initial, s.now().UTC())
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	metrics.RegisteredUsers.Inc()
	slog.Info("user registered", "user", u.ID, "name", u.Name)
	return u, nil
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issuer.Sign(u.ID)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "sign token", err)
	}
	return token, u, nil
}

// GetUser returns the caller's profile.
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return s.store.GetUser(ctx, userID)
}

// UpdateInput carries the profile fields a user may change. Nil fields are
// left alone.
type UpdateInput struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

// UpdateUser changes name and/or password. The ledger is never touched.
func (s *Service) UpdateUser(ctx context.Context, userID string, in UpdateInput) (*model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.New(apperr.Validation, "name must not be empty")
		}
		u.Name = name
	}
	if in.Password != nil {
		if *in.Password == "" {
			return nil, apperr.New(apperr.Validation, "password must not be empty")
		}
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "hash password", err)
		}
		u.PasswordHash = hash
	}

	if err := s.store.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return s.store.GetUser(ctx, userID)
}

// --- Quotes ---

// GetPrice returns the current price of symbol.
func (s *Service) GetPrice(ctx context.Context, symbol string) (string, decimal.Decimal, error) {
	sym, err := ticker.Normalize(symbol)
	if err != nil {
		return "", decimal.Zero, err
	}
	p, err := s.oracle.Price(ctx, sym)
	if err != nil {
		return "", decimal.Zero, err
	}
	return sym, p, nil
}

// --- Trades ---

// TradeInput is an unpriced trade request from a user.
type TradeInput struct {
	Symbol   string          `json:"stock_symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Side     model.Side      `json:"type"`
}

// ExecuteTrade prices and applies a trade for userID. On any failure the
// user's cash and positions are unchanged and no trade is recorded.
func (s *Service) ExecuteTrade(ctx context.Context, userID string, in TradeInput) (*portfolio.TradeEffect, error) {
	start := time.Now()
	effect, err := s.executeTrade(ctx, userID, in)
	if err != nil {
		metrics.TradeRejections.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}
	side := string(effect.Trade.Side)
	metrics.TradesTotal.WithLabelValues(side).Inc()
	metrics.TradeLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"trade_id", effect.Trade.ID,
		"user", userID,
		"symbol", effect.Trade.Symbol,
		"side", side,
		"qty", effect.Trade.Quantity.String(),
		"price", effect.Trade.Price.String(),
		"cash", effect.User.Cash.String(),
	)

	if s.notifier != nil {
		s.notifier.TradeExecuted(*effect.Trade)
	}
	return effect, nil
}

func (s *Service) executeTrade(ctx context.Context, userID string, in TradeInput) (*portfolio.TradeEffect, error) {
	sym, err := ticker.Normalize(in.Symbol)
	if err != nil {
		return nil, err
	}
	side := model.Side(strings.ToLower(string(in.Side)))
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %q", portfolio.ErrInvalidSide, in.Side)
	}
	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s", portfolio.ErrInvalidQuantity, in.Quantity)
	}
	if !in.Quantity.IsInteger() {
		return nil, fmt.Errorf("%w: %s", ErrFractionalShares, in.Quantity)
	}

	// Phase one: price the trade. No lock is held while the oracle blocks.
	price, err := s.oracle.Price(ctx, sym)
	if err != nil {
		return nil, err
	}

	// Phase two: apply and commit under the user's lock.
	unlock := s.locks.lock(userID)
	defer unlock()

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	effect, err := portfolio.Apply(u, portfolio.TradeCommand{
		Symbol:   sym,
		Quantity: in.Quantity,
		Side:     side,
		Price:    price,
		At:       s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.CommitTrade(ctx, effect.User, effect.Trade); err != nil {
		return nil, err
	}
	return effect, nil
}

// TradeQuery narrows ListTrades.
type TradeQuery struct {
	Symbol string `schema:"symbol"`
	Limit  int    `schema:"limit"`
}

// ListTrades returns the caller's trades, newest first.
func (s *Service) ListTrades(ctx context.Context, userID string, q TradeQuery) ([]model.Trade, error) {
	f := store.TradeFilter{Limit: q.Limit}
	if q.Limit < 0 {
		return nil, ErrInvalidLimit
	}
	if q.Limit > MaxTradeLimit {
		f.Limit = MaxTradeLimit
	}
	if q.Symbol != "" {
		sym, err := ticker.Normalize(q.Symbol)
		if err != nil {
			return nil, err
		}
		f.Symbol = sym
	}
	return s.store.ListTrades(ctx, userID, f)
}

// DeleteTrade removes one of the caller's trades from history. Cash and
// positions are not adjusted.
func (s *Service) DeleteTrade(ctx context.Context, userID, tradeID string) error {
	if err := s.store.DeleteTrade(ctx, userID, tradeID); err != nil {
		return err
	}
	slog.Info("trade deleted", "trade_id", tradeID, "user", userID)
	return nil
}
