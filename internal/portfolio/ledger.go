// Package portfolio implements trade execution against a user's cash balance
// and positions: weighted-average cost basis on buys, position closing on
// sells.
//
// Apply is pure. It never mutates the user it is given; the caller commits
// the returned TradeEffect (updated user + trade record) as a single unit.
// All monetary values use shopspring/decimal, never float64.
package portfolio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockleague/league/internal/apperr"
	"github.com/stockleague/league/internal/model"
)

// XPPerTrade is the experience awarded for every executed trade.
const XPPerTrade int64 = 10

var (
	// ErrInvalidQuantity is returned when quantity <= 0.
	ErrInvalidQuantity = apperr.New(apperr.Validation, "portfolio: quantity must be positive")

	// ErrInvalidPrice is returned when the quoted price <= 0.
	ErrInvalidPrice = apperr.New(apperr.Validation, "portfolio: price must be positive")

	// ErrInvalidSide is returned for anything other than buy or sell.
	ErrInvalidSide = apperr.New(apperr.Validation, "portfolio: side must be buy or sell")

	// ErrInsufficientFunds is returned when a buy costs more than the cash balance.
	ErrInsufficientFunds = apperr.New(apperr.InsufficientFunds, "insufficient balance")

	// ErrNoPosition is returned when selling a symbol the user does not hold.
	ErrNoPosition = apperr.New(apperr.NoPosition, "no position in symbol")

	// ErrInsufficientShares is returned when selling more shares than held.
	ErrInsufficientShares = apperr.New(apperr.InsufficientShares, "insufficient shares")
)

// TradeCommand is a fully priced trade request. Price comes from the quote
// oracle, never from the client.
type TradeCommand struct {
	Symbol   string
	Quantity decimal.Decimal
	Side     model.Side
	Price    decimal.Decimal
	At       time.Time
}

// TradeEffect is the committed outcome of one trade.
type TradeEffect struct {
	User   *model.User
	Trade  *model.Trade
	Amount decimal.Decimal // quantity × price
	Closed bool            // the sell closed the position
}

// Validate checks the command's static constraints.
func (c TradeCommand) Validate() error {
	if !c.Side.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSide, c.Side)
	}
	if !c.Quantity.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, c.Quantity)
	}
	if !c.Price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, c.Price)
	}
	return nil
}

// Apply executes cmd against user and returns the resulting state. On error
// nothing has changed.
func Apply(user *model.User, cmd TradeCommand) (*TradeEffect, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	next := user.Clone()
	amount := cmd.Quantity.Mul(cmd.Price)
	closed := false

	switch cmd.Side {
	case model.SideBuy:
		if next.Cash.LessThan(amount) {
			return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amount, next.Cash)
		}
		next.Cash = next.Cash.Sub(amount)
		buy(next, cmd)

	case model.SideSell:
		idx := next.PositionIndex(cmd.Symbol)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoPosition, cmd.Symbol)
		}
		held := next.Positions[idx].Quantity
		if cmd.Quantity.GreaterThan(held) {
			return nil, fmt.Errorf("%w: selling %s of %s held", ErrInsufficientShares, cmd.Quantity, held)
		}
		next.Cash = next.Cash.Add(amount)
		remaining := held.Sub(cmd.Quantity)
		if remaining.IsZero() {
			next.Positions = append(next.Positions[:idx], next.Positions[idx+1:]...)
			closed = true
		} else {
			// Average cost is left as-is; realized P&L is not tracked.
			next.Positions[idx].Quantity = remaining
		}
	}

	next.XP += XPPerTrade

	at := cmd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	trade := &model.Trade{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Symbol:    cmd.Symbol,
		Quantity:  cmd.Quantity,
		Price:     cmd.Price,
		Side:      cmd.Side,
		Timestamp: at,
	}

	return &TradeEffect{User: next, Trade: trade, Amount: amount, Closed: closed}, nil
}

// buy adds cmd.Quantity shares to the user's position, creating it if needed.
//
//	new_avg = (old_avg × old_qty + price × qty) / (old_qty + qty)
func buy(u *model.User, cmd TradeCommand) {
	idx := u.PositionIndex(cmd.Symbol)
	if idx < 0 {
		u.Positions = append(u.Positions, model.Position{
			Symbol:      cmd.Symbol,
			Quantity:    cmd.Quantity,
			AverageCost: cmd.Price,
		})
		return
	}
	p := &u.Positions[idx]
	newQty := p.Quantity.Add(cmd.Quantity)
	p.AverageCost = p.AverageCost.Mul(p.Quantity).Add(cmd.Price.Mul(cmd.Quantity)).Div(newQty)
	p.Quantity = newQty
}

// Valuation is cash plus every position at its cost basis.
func Valuation(u *model.User) decimal.Decimal {
	total := u.Cash
	for _, p := range u.Positions {
		total = total.Add(p.CostValue())
	}
	return total
}
