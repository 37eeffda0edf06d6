// Package ticker normalizes and validates equity symbols before they reach
// the price oracle or the ledger.
package ticker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stockleague/league/internal/apperr"
)

// symbolRegex matches exchange tickers such as AAPL, BRK.B, RELIANCE:NSE or BTC/USD.
var symbolRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-/:]{0,19}$`)

var (
	ErrEmpty   = apperr.New(apperr.Validation, "ticker: symbol is required")
	ErrInvalid = apperr.New(apperr.Validation, "ticker: invalid symbol")
)

// Normalize trims and upper-cases raw and checks it against the symbol format.
func Normalize(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrEmpty
	}
	if !symbolRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return s, nil
}
