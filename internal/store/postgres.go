package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockleague/league/internal/model"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, cash, xp, version, created_at)
		 VALUES ($1, $2, lower($3), $4, $5::NUMERIC, $6, $7, $8)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Cash.String(), u.XP, u.Version, u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s", ErrDuplicate, u.Email)
	}
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.ID, err)
	}
	return nil
}

const userColumns = `id, name, email, password_hash, cash::TEXT, xp, version, created_at`

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, query, key string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", key, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity::TEXT, average_cost::TEXT
		 FROM positions WHERE user_id = $1 ORDER BY seq`, u.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}
	u.Positions = positions[u.ID]
	if u.Positions == nil {
		u.Positions = []model.Position{}
	}
	return u, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, u *model.User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET name = $2, password_hash = $3 WHERE id = $1`,
		u.ID, u.Name, u.PasswordHash,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: name %s", ErrDuplicate, u.Name)
	}
	if err != nil {
		return fmt.Errorf("update user %s: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, u.ID)
	}
	return nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// One pass over all positions instead of a query per user.
	prows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity::TEXT, average_cost::TEXT
		 FROM positions ORDER BY user_id, seq`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	byUser, err := scanPositions(prows)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Positions = byUser[users[i].ID]
		if users[i].Positions == nil {
			users[i].Positions = []model.Position{}
		}
	}
	return users, nil
}

func (s *PostgresStore) CommitTrade(ctx context.Context, u *model.User, t *model.Trade) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx,
		`UPDATE users SET cash = $2::NUMERIC, xp = $3, version = version + 1
		 WHERE id = $1 AND version = $4`,
		u.ID, u.Cash.String(), u.XP, u.Version,
	)
	if err != nil {
		return fmt.Errorf("update user %s: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, u.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: user %s", ErrNotFound, u.ID)
		}
		return ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE user_id = $1`, u.ID); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for i, p := range u.Positions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO positions (user_id, symbol, quantity, average_cost, seq)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5)`,
			u.ID, p.Symbol, p.Quantity.String(), p.AverageCost.String(), i,
		); err != nil {
			return fmt.Errorf("insert position %s: %w", p.Symbol, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO trades (id, user_id, symbol, quantity, price, side, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7)`,
		t.ID, t.UserID, t.Symbol, t.Quantity.String(), t.Price.String(), string(t.Side), t.Timestamp,
	); err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	u.Version++
	return nil
}

func (s *PostgresStore) ListTrades(ctx context.Context, userID string, f TradeFilter) ([]model.Trade, error) {
	var (
		q    strings.Builder
		args = []any{userID}
	)
	q.WriteString(`SELECT id, user_id, symbol, quantity::TEXT, price::TEXT, side, timestamp
		 FROM trades WHERE user_id = $1`)
	if f.Symbol != "" {
		args = append(args, f.Symbol)
		fmt.Fprintf(&q, ` AND symbol = $%d`, len(args))
	}
	q.WriteString(` ORDER BY timestamp DESC, seq DESC`)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&q, ` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []model.Trade{}
	for rows.Next() {
		var t model.Trade
		var qtyS, priceS, side string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &qtyS, &priceS, &side, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Quantity, _ = decimal.NewFromString(qtyS)
		t.Price, _ = decimal.NewFromString(priceS)
		t.Side = model.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) DeleteTrade(ctx context.Context, userID, tradeID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE id = $1 AND user_id = $2`, tradeID, userID)
	if err != nil {
		return fmt.Errorf("delete trade %s: %w", tradeID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: trade %s", ErrNotFound, tradeID)
	}
	return nil
}

func (s *PostgresStore) CreateMatchup(ctx context.Context, m *model.Matchup) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO matchups (id, title, start_date, end_date, winner_id, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		m.ID, m.Title, m.StartDate, m.EndDate, m.WinnerID, m.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: matchup %s", ErrDuplicate, m.ID)
		}
		return fmt.Errorf("create matchup %s: %w", m.ID, err)
	}
	for _, userID := range m.Participants {
		if _, err := tx.Exec(ctx,
			`INSERT INTO matchup_participants (matchup_id, user_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, m.ID, userID); err != nil {
			return fmt.Errorf("add participant %s: %w", userID, err)
		}
	}
	return tx.Commit(ctx)
}

const matchupColumns = `id, title, start_date, end_date, COALESCE(winner_id, ''), created_at`

func (s *PostgresStore) GetMatchup(ctx context.Context, id string) (*model.Matchup, error) {
	var m model.Matchup
	err := s.pool.QueryRow(ctx, `SELECT `+matchupColumns+` FROM matchups WHERE id = $1`, id).
		Scan(&m.ID, &m.Title, &m.StartDate, &m.EndDate, &m.WinnerID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: matchup %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get matchup %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT matchup_id, user_id FROM matchup_participants WHERE matchup_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parts, err := scanParticipants(rows)
	if err != nil {
		return nil, err
	}
	m.Participants = parts[m.ID]
	if m.Participants == nil {
		m.Participants = []string{}
	}
	return &m, nil
}

func (s *PostgresStore) ListMatchups(ctx context.Context) ([]model.Matchup, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+matchupColumns+` FROM matchups ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matchups := []model.Matchup{}
	for rows.Next() {
		var m model.Matchup
		if err := rows.Scan(&m.ID, &m.Title, &m.StartDate, &m.EndDate, &m.WinnerID, &m.CreatedAt); err != nil {
			return nil, err
		}
		matchups = append(matchups, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.pool.Query(ctx,
		`SELECT matchup_id, user_id FROM matchup_participants ORDER BY matchup_id, seq`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	parts, err := scanParticipants(prows)
	if err != nil {
		return nil, err
	}
	for i := range matchups {
		matchups[i].Participants = parts[matchups[i].ID]
		if matchups[i].Participants == nil {
			matchups[i].Participants = []string{}
		}
	}
	return matchups, nil
}

func (s *PostgresStore) AddParticipant(ctx context.Context, matchupID, userID string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM matchups WHERE id = $1)`, matchupID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: matchup %s", ErrNotFound, matchupID)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO matchup_participants (matchup_id, user_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, matchupID, userID)
	return err
}

func (s *PostgresStore) SetWinner(ctx context.Context, matchupID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE matchups SET winner_id = $2 WHERE id = $1 AND winner_id IS NULL`, matchupID, userID)
	if err != nil {
		return fmt.Errorf("set winner %s: %w", matchupID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetMatchup(ctx, matchupID); err != nil {
		return err
	}
	return fmt.Errorf("%w: matchup %s already has a winner", ErrDuplicate, matchupID)
}

// pgxRows is the subset of pgx.Rows the scan helpers need.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var cashS string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &cashS, &u.XP, &u.Version, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Cash, _ = decimal.NewFromString(cashS)
	return &u, nil
}

// scanPositions groups position rows by user ID, preserving row order.
func scanPositions(rows pgxRows) (map[string][]model.Position, error) {
	out := make(map[string][]model.Position)
	for rows.Next() {
		var userID, qtyS, avgS string
		var p model.Position
		if err := rows.Scan(&userID, &p.Symbol, &qtyS, &avgS); err != nil {
			return nil, err
		}
		p.Quantity, _ = decimal.NewFromString(qtyS)
		p.AverageCost, _ = decimal.NewFromString(avgS)
		out[userID] = append(out[userID], p)
	}
	return out, rows.Err()
}

func scanParticipants(rows pgxRows) (map[string][]string, error) {
	out := make(map[string][]string)
	for rows.Next() {
		var matchupID, userID string
		if err := rows.Scan(&matchupID, &userID); err != nil {
			return nil, err
		}
		out[matchupID] = append(out[matchupID], userID)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
