package leaderboard

import (
	"slices"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockleague/league/internal/model"
)

var initial = decimal.NewFromInt(100000)

// userWithROI builds a cash-only user whose ROI is roi percent.
func userWithROI(id string, roi int64) model.User {
	cash := initial.Add(initial.Mul(decimal.NewFromInt(roi)).Div(decimal.NewFromInt(100)))
	return model.User{ID: id, Name: "name-" + id, Cash: cash}
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.UserID)
	}
	return out
}

func TestRank_UntouchedUserHasZeroROI(t *testing.T) {
	users := []model.User{{ID: "u1", Name: "alice", Cash: initial}}
	entries := Top(Rank(users, initial), 0)

	require.Len(t, entries, 1)
	assert.True(t, entries[0].ROI.IsZero(), "roi = %s", entries[0].ROI)
	assert.True(t, entries[0].TotalValue.Equal(initial))
	assert.Equal(t, 1, entries[0].Rank)
}

func TestRank_ValuesPositionsAtCost(t *testing.T) {
	users := []model.User{{
		ID:   "u1",
		Cash: decimal.NewFromInt(90000),
		Positions: []model.Position{
			{Symbol: "AAPL", Quantity: decimal.NewFromInt(100), AverageCost: decimal.NewFromInt(120)},
		},
	}}
	e := Top(Rank(users, initial), 0)[0]
	assert.True(t, e.TotalValue.Equal(decimal.NewFromInt(102000)), "total = %s", e.TotalValue)
	assert.True(t, e.ROI.Equal(decimal.NewFromInt(2)), "roi = %s", e.ROI)
}

func TestRank_OrderingAndTies(t *testing.T) {
	users := []model.User{
		userWithROI("c", 5),
		userWithROI("b", 20),
		userWithROI("a", 20),
		userWithROI("d", -3),
	}
	seq := Rank(users, initial)

	first := Top(seq, 0)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(first))
	for i, e := range first {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.True(t, first[0].ROI.Equal(decimal.NewFromInt(20)))
	assert.True(t, first[3].ROI.Equal(decimal.NewFromInt(-3)))

	// Restartable and deterministic.
	second := Top(seq, 0)
	assert.Equal(t, ids(first), ids(second))
}

func TestRank_IsRecomputedPerIteration(t *testing.T) {
	users := []model.User{userWithROI("a", 1), userWithROI("b", 2)}
	seq := Rank(users, initial)
	assert.Equal(t, []string{"b", "a"}, ids(Top(seq, 0)))

	users[0].Cash = users[0].Cash.Add(decimal.NewFromInt(50000))
	assert.Equal(t, []string{"a", "b"}, ids(Top(seq, 0)))
}

func TestTop_Limits(t *testing.T) {
	users := []model.User{userWithROI("a", 3), userWithROI("b", 2), userWithROI("c", 1)}
	assert.Equal(t, []string{"a", "b"}, ids(Top(Rank(users, initial), 2)))
	assert.Empty(t, Top(Rank(nil, initial), 5))
}

func TestRank_DoesNotAliasPositions(t *testing.T) {
	users := []model.User{{
		ID:        "u1",
		Cash:      initial,
		Positions: []model.Position{{Symbol: "AAPL", Quantity: decimal.NewFromInt(1), AverageCost: decimal.NewFromInt(1)}},
	}}
	e := Top(Rank(users, initial), 0)[0]
	e.Positions[0].Symbol = "MSFT"
	assert.True(t, slices.ContainsFunc(users[0].Positions, func(p model.Position) bool { return p.Symbol == "AAPL" }))
}

func TestROI_ZeroInitial(t *testing.T) {
	assert.True(t, ROI(decimal.NewFromInt(10), decimal.Zero).IsZero())
}

func TestSummarize(t *testing.T) {
	users := []model.User{userWithROI("a", 5), userWithROI("b", 20), userWithROI("c", 20), userWithROI("d", -3)}
	s := Summarize(Top(Rank(users, initial), 0))

	assert.Equal(t, 4, s.Participants)
	assert.InDelta(t, 10.5, s.MeanROI, 1e-9)
	assert.InDelta(t, 12.5, s.MedianROI, 1e-9)
	assert.InDelta(t, 20, s.MaxROI, 1e-9)
	assert.InDelta(t, -3, s.MinROI, 1e-9)

	assert.Equal(t, Summary{}, Summarize(nil))
}
