// Package model defines the core domain types shared across the league.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is buy or sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// User owns a cash balance and an insertion-ordered set of positions.
type User struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Email        string          `json:"email" db:"email"`
	PasswordHash string          `json:"-" db:"password_hash"`
	Cash         decimal.Decimal `json:"wallet_balance" db:"cash"`
	Positions    []Position      `json:"portfolio"`
	XP           int64           `json:"xp" db:"xp"`
	Version      int64           `json:"-" db:"version"` // bumped on every committed trade
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// NewUser returns a funded account with a fresh ID and no positions.
func NewUser(name, email, passwordHash string, cash decimal.Decimal, at time.Time) *User {
	return &User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Cash:         cash,
		Positions:    []Position{},
		CreatedAt:    at,
	}
}

// Clone returns a deep copy so ledger changes never alias stored state.
func (u *User) Clone() *User {
	c := *u
	c.Positions = slices.Clone(u.Positions)
	return &c
}

// PositionIndex returns the index of the position in symbol, or -1.
func (u *User) PositionIndex(symbol string) int {
	return slices.IndexFunc(u.Positions, func(p Position) bool { return p.Symbol == symbol })
}

// Position is a user's holding in one symbol.
type Position struct {
	Symbol      string          `json:"stock_symbol" db:"symbol"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	AverageCost decimal.Decimal `json:"average_price" db:"average_cost"`
}

// CostValue is quantity × average cost.
func (p Position) CostValue() decimal.Decimal {
	return p.Quantity.Mul(p.AverageCost)
}

// Trade is an immutable record of an executed trade.
// Deleting one is a history correction and never reverses the ledger.
type Trade struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Symbol    string          `json:"stock_symbol" db:"symbol"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Side      Side            `json:"type" db:"side"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Notional is quantity × price.
func (t Trade) Notional() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// Matchup is a time-boxed competition between a subset of users.
type Matchup struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	StartDate    time.Time `json:"start_date" db:"start_date"`
	EndDate      time.Time `json:"end_date" db:"end_date"`
	Participants []string  `json:"participants"`
	WinnerID     string    `json:"winner,omitempty" db:"winner_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// HasParticipant reports whether userID takes part in m.
func (m *Matchup) HasParticipant(userID string) bool {
	return slices.Contains(m.Participants, userID)
}
