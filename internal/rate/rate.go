// Package rate converts discount prices of fixed-term lending quotes into
// annualized interest rates.
package rate

import (
	"math"

	"github.com/alanyoungcy/termarb/internal/domain"
)

const (
	SecondsPerDay = 24 * 60 * 60
	DaysPerYear   = 365
)

// FractionOfYear returns the time left until maturity as a fraction of a
// 365-day year. It is zero or negative when maturity is not after now.
func FractionOfYear(maturity, now int64) float64 {
	days := float64(maturity-now) / SecondsPerDay
	return days / DaysPerYear
}

// Annualized returns the simple annual rate implied by buying at price and
// being repaid par at maturity:
//
//	rate = (par - price) / (price * fraction_of_year)
//
// Inputs rejected by Usable produce a meaningless (often non-finite) result.
func Annualized(price int, maturity, now int64) float64 {
	return float64(domain.ParPrice-price) / (float64(price) * FractionOfYear(maturity, now))
}

// Usable reports whether price and maturity can be turned into a finite,
// positive rate at time now.
func Usable(price int, maturity, now int64) bool {
	return price > 0 && price < domain.ParPrice && maturity > now
}

// Of returns the annualized rate of a quote and false when the quote is
// degenerate at now or the computed rate is not finite.
func Of(q domain.Quote, now int64) (float64, bool) {
	if !Usable(q.Price, q.Maturity, now) {
		return 0, false
	}
	r := Annualized(q.Price, q.Maturity, now)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}
