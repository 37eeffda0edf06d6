// Package store defines the persistence interface for the league.
// Implementations: PostgreSQL (source of truth) and in-memory (development
// and tests).
package store

import (
	"context"

	"github.com/stockleague/league/internal/apperr"
	"github.com/stockleague/league/internal/model"
)

var (
	ErrNotFound  = apperr.New(apperr.NotFound, "not found")
	ErrDuplicate = apperr.New(apperr.Conflict, "already exists")
	// ErrVersionConflict is returned by CommitTrade when the user was
	// modified by another writer since it was read.
	ErrVersionConflict = apperr.New(apperr.Conflict, "concurrent update, retry the request")
)

// TradeFilter narrows ListTrades. Zero values mean no filter.
type TradeFilter struct {
	Symbol string
	Limit  int
}

// Store is the persistence interface.
type Store interface {
	// --- Users ---

	// CreateUser persists a new user. Name and email are unique.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user, positions included, by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// UpdateProfile writes name and password hash only; it never touches
	// the ledger fields.
	UpdateProfile(ctx context.Context, u *model.User) error

	// ListUsers returns every user in creation order.
	ListUsers(ctx context.Context) ([]model.User, error)

	// --- Ledger ---

	// CommitTrade atomically stores the user's new cash, XP and positions
	// and appends the trade. u.Version must equal the stored version; on
	// success it is incremented.
	CommitTrade(ctx context.Context, u *model.User, t *model.Trade) error

	// ListTrades returns a user's trades, newest first.
	ListTrades(ctx context.Context, userID string, f TradeFilter) ([]model.Trade, error)

	// DeleteTrade removes a trade owned by userID. The ledger is unchanged.
	DeleteTrade(ctx context.Context, userID, tradeID string) error

	// --- Matchups ---

	// CreateMatchup persists a new matchup with its initial participants.
	CreateMatchup(ctx context.Context, m *model.Matchup) error

	// GetMatchup retrieves a matchup by ID.
	GetMatchup(ctx context.Context, id string) (*model.Matchup, error)

	// ListMatchups returns all matchups in creation order.
	ListMatchups(ctx context.Context) ([]model.Matchup, error)

	// AddParticipant adds userID to the matchup; adding twice is a no-op.
	AddParticipant(ctx context.Context, matchupID, userID string) error

	// SetWinner records the winner once. A second call fails with ErrDuplicate.
	SetWinner(ctx context.Context, matchupID, userID string) error
}
