// Package arbitrage detects fixed-term carry trades: pairs of same-maturity
// quotes where borrowing one token and lending another captures a positive
// annualized rate differential.
package arbitrage

import (
	"math"

	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/rate"
)

// Matcher pairs the borrow and lend quotes of one maturity bucket.
// Implementations must return opportunities in borrow-major, lend-minor order
// of the input quotes.
type Matcher interface {
	Name() string
	Match(borrows, lends []domain.Quote, now int64, s Scorer) []domain.Opportunity
}

// Scorer prices a borrow/lend pair in USD.
type Scorer struct {
	Prices domain.PriceTable
	Fees   domain.Fees
}

// Score returns the opportunity for b and l and whether it is worth keeping.
// Pairs sharing a token, with degenerate rate inputs, with a negative or
// non-finite differential, with an unpriced borrow token, or with a
// non-positive profit are rejected.
func (s Scorer) Score(b, l domain.Quote, now int64) (domain.Opportunity, bool) {
	if b.Token.Equal(l.Token) {
		return domain.Opportunity{}, false
	}
	borrowRate, ok := rate.Of(b, now)
	if !ok {
		return domain.Opportunity{}, false
	}
	lendRate, ok := rate.Of(l, now)
	if !ok {
		return domain.Opportunity{}, false
	}
	return s.scoreRates(b, l, borrowRate, lendRate)
}

func (s Scorer) scoreRates(b, l domain.Quote, borrowRate, lendRate float64) (domain.Opportunity, bool) {
	diff := lendRate - borrowRate
	if diff < 0 || math.IsNaN(diff) || math.IsInf(diff, 0) {
		return domain.Opportunity{}, false
	}
	trade := diff * b.AmountFloat()
	price, ok := s.Prices.Lookup(b.Token)
	if !ok {
		return domain.Opportunity{}, false
	}
	profit := trade*price - s.Fees.Total()
	if !(profit > 0) {
		return domain.Opportunity{}, false
	}
	return domain.Opportunity{Borrow: b, Lend: l, Profit: profit}, true
}

// split separates a bucket into borrow and lend quotes, keeping relative order.
func split(quotes []domain.Quote) (borrows, lends []domain.Quote) {
	for _, q := range quotes {
		switch q.Side {
		case domain.SideBorrow:
			borrows = append(borrows, q)
		case domain.SideLend:
			lends = append(lends, q)
		}
	}
	return borrows, lends
}
