package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/stockleague/league/internal/model"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*model.User
	order    []string // user IDs in creation order
	trades   []model.Trade
	matchups []*model.Matchup
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*model.User),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) || existing.Name == u.Name {
			return fmt.Errorf("%w: user %s", ErrDuplicate, u.Email)
		}
	}

	// Store a copy to avoid external mutation.
	s.users[u.ID] = u.Clone()
	s.order = append(s.order, u.ID)
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u.Clone(), nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
}

func (s *MemoryStore) UpdateProfile(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, u.ID)
	}
	for id, other := range s.users {
		if id != u.ID && other.Name == u.Name {
			return fmt.Errorf("%w: name %s", ErrDuplicate, u.Name)
		}
	}
	cur.Name = u.Name
	cur.PasswordHash = u.PasswordHash
	return nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.order))
	for _, id := range s.order {
		users = append(users, *s.users[id].Clone())
	}
	return users, nil
}

func (s *MemoryStore) CommitTrade(_ context.Context, u *model.User, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, u.ID)
	}
	if cur.Version != u.Version {
		return ErrVersionConflict
	}

	// Both writes happen under one lock, so readers see all or nothing.
	next := u.Clone()
	next.Version++
	next.Name = cur.Name
	next.PasswordHash = cur.PasswordHash
	s.users[u.ID] = next
	s.trades = append(s.trades, *t)
	u.Version = next.Version
	return nil
}

func (s *MemoryStore) ListTrades(_ context.Context, userID string, f TradeFilter) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.Trade{}
	// Newest first: walk the append-only log backwards.
	for i := len(s.trades) - 1; i >= 0; i-- {
		t := s.trades[i]
		if t.UserID != userID || (f.Symbol != "" && t.Symbol != f.Symbol) {
			continue
		}
		result = append(result, t)
	}
	slices.SortStableFunc(result, func(a, b model.Trade) int { return b.Timestamp.Compare(a.Timestamp) })
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (s *MemoryStore) DeleteTrade(_ context.Context, userID, tradeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.trades, func(t model.Trade) bool { return t.ID == tradeID && t.UserID == userID })
	if idx < 0 {
		return fmt.Errorf("%w: trade %s", ErrNotFound, tradeID)
	}
	s.trades = slices.Delete(s.trades, idx, idx+1)
	return nil
}

func (s *MemoryStore) CreateMatchup(_ context.Context, m *model.Matchup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *m
	c.Participants = slices.Clone(m.Participants)
	s.matchups = append(s.matchups, &c)
	return nil
}

func (s *MemoryStore) GetMatchup(_ context.Context, id string) (*model.Matchup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.findMatchup(id)
	if m == nil {
		return nil, fmt.Errorf("%w: matchup %s", ErrNotFound, id)
	}
	c := *m
	c.Participants = slices.Clone(m.Participants)
	return &c, nil
}

func (s *MemoryStore) ListMatchups(_ context.Context) ([]model.Matchup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Matchup, 0, len(s.matchups))
	for _, m := range s.matchups {
		c := *m
		c.Participants = slices.Clone(m.Participants)
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) AddParticipant(_ context.Context, matchupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.findMatchup(matchupID)
	if m == nil {
		return fmt.Errorf("%w: matchup %s", ErrNotFound, matchupID)
	}
	if !m.HasParticipant(userID) {
		m.Participants = append(m.Participants, userID)
	}
	return nil
}

func (s *MemoryStore) SetWinner(_ context.Context, matchupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.findMatchup(matchupID)
	if m == nil {
		return fmt.Errorf("%w: matchup %s", ErrNotFound, matchupID)
	}
	if m.WinnerID != "" {
		return fmt.Errorf("%w: matchup %s already has a winner", ErrDuplicate, matchupID)
	}
	m.WinnerID = userID
	return nil
}

// findMatchup must be called with s.mu held.
func (s *MemoryStore) findMatchup(id string) *model.Matchup {
	for _, m := range s.matchups {
		if m.ID == id {
			return m
		}
	}
	return nil
}
