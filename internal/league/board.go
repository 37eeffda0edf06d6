package league

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/stockleague/league/internal/leaderboard"
	"github.com/stockleague/league/internal/store"
)

// Board is the leaderboard response.
type Board struct {
	Entries []leaderboard.Entry `json:"entries"`
	Summary leaderboard.Summary `json:"summary"`
}

// Standings returns a restartable ranking of every user. Each iteration
// ranks the snapshot taken when Standings was called.
func (s *Service) Standings(ctx context.Context) (iter.Seq[leaderboard.Entry], error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return leaderboard.Rank(users, s.initial), nil
}

// GetLeaderboard ranks all users and summarizes the field. limit <= 0
// returns everyone.
func (s *Service) GetLeaderboard(ctx context.Context, limit int) (*Board, error) {
	seq, err := s.Standings(ctx)
	if err != nil {
		return nil, err
	}
	all := leaderboard.Top(seq, 0)
	entries := all
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return &Board{Entries: entries, Summary: leaderboard.Summarize(all)}, nil
}

// tradeRow is one line of the CSV export.
type tradeRow struct {
	ID        string `csv:"id"`
	Timestamp string `csv:"timestamp"`
	Symbol    string `csv:"stock_symbol"`
	Side      string `csv:"type"`
	Quantity  string `csv:"quantity"`
	Price     string `csv:"price"`
	Total     string `csv:"total"`
}

// ExportTrades writes the caller's full trade history as CSV, newest first.
func (s *Service) ExportTrades(ctx context.Context, userID string, w io.Writer) error {
	trades, err := s.store.ListTrades(ctx, userID, store.TradeFilter{})
	if err != nil {
		return err
	}
	rows := make([]*tradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, &tradeRow{
			ID:        t.ID,
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			Symbol:    t.Symbol,
			Side:      string(t.Side),
			Quantity:  t.Quantity.String(),
			Price:     t.Price.StringFixed(2),
			Total:     t.Notional().StringFixed(2),
		})
	}
	return gocsv.Marshal(&rows, w)
}
