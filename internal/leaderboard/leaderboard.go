// Package leaderboard ranks users by return on their initial balance.
//
// Valuation is at cost basis (cash + Σ quantity × average cost), not
// mark-to-market. Ranking is a pure function of the snapshot it is given.
package leaderboard

import (
	"cmp"
	"iter"
	"slices"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/stockleague/league/internal/model"
	"github.com/stockleague/league/internal/portfolio"
)

var hundred = decimal.NewFromInt(100)

// Entry is one ranked row.
type Entry struct {
	Rank       int              `json:"rank"`
	UserID     string           `json:"user_id"`
	Name       string           `json:"name"`
	Cash       decimal.Decimal  `json:"wallet_balance"`
	Positions  []model.Position `json:"portfolio"`
	TotalValue decimal.Decimal  `json:"total_value"`
	ROI        decimal.Decimal  `json:"roi"`
}

// ROI returns (total − initial) / initial × 100. A non-positive initial
// balance yields zero.
func ROI(total, initial decimal.Decimal) decimal.Decimal {
	if !initial.IsPositive() {
		return decimal.Zero
	}
	return total.Sub(initial).Div(initial).Mul(hundred)
}

// Rank returns the users ordered by ROI descending. Ties are broken by user
// ID ascending, then by input order.
//
// The sequence is recomputed from users every time it is ranged over; no
// state is kept between iterations.
func Rank(users []model.User, initial decimal.Decimal) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		entries := make([]Entry, 0, len(users))
		for i := range users {
			u := &users[i]
			total := portfolio.Valuation(u)
			entries = append(entries, Entry{
				UserID:     u.ID,
				Name:       u.Name,
				Cash:       u.Cash,
				Positions:  slices.Clone(u.Positions),
				TotalValue: total,
				ROI:        ROI(total, initial),
			})
		}

		slices.SortStableFunc(entries, func(a, b Entry) int {
			if c := b.ROI.Cmp(a.ROI); c != 0 {
				return c
			}
			return cmp.Compare(a.UserID, b.UserID)
		})

		for i := range entries {
			entries[i].Rank = i + 1
			if !yield(entries[i]) {
				return
			}
		}
	}
}

// Top returns at most n entries from seq. n <= 0 means all.
func Top(seq iter.Seq[Entry], n int) []Entry {
	out := []Entry{}
	for e := range seq {
		if n > 0 && len(out) >= n {
			break
		}
		out = append(out, e)
	}
	return out
}

// Summary aggregates ROI across a ranking.
type Summary struct {
	Participants int     `json:"participants"`
	MeanROI      float64 `json:"mean_roi"`
	MedianROI    float64 `json:"median_roi"`
	MaxROI       float64 `json:"max_roi"`
	MinROI       float64 `json:"min_roi"`
}

// Summarize computes ROI statistics. Stats are float64 because they are
// display-only.
func Summarize(entries []Entry) Summary {
	s := Summary{Participants: len(entries)}
	if len(entries) == 0 {
		return s
	}
	data := make(stats.Float64Data, 0, len(entries))
	for _, e := range entries {
		data = append(data, e.ROI.InexactFloat64())
	}
	s.MeanROI, _ = data.Mean()
	s.MedianROI, _ = data.Median()
	s.MaxROI, _ = data.Max()
	s.MinROI, _ = data.Min()
	return s
}
