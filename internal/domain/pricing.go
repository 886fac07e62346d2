package domain

import "github.com/shopspring/decimal"

// PriceTable maps a token symbol to its USD unit price.
type PriceTable map[string]float64

// Lookup returns the USD price for a token and whether it is known.
func (p PriceTable) Lookup(t Token) (float64, bool) {
	price, ok := p[t.Name]
	return price, ok
}

// Clone returns a copy that is safe to hand to another owner.
func (p PriceTable) Clone() PriceTable {
	out := make(PriceTable, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Fees are the USD costs of executing one carry trade.
type Fees struct {
	SwapUSD      float64
	BorrowGasUSD float64
	LendGasUSD   float64
}

// Total sums the fees in decimal so repeated configuration values do not
// pick up binary rounding noise.
func (f Fees) Total() float64 {
	total := decimal.NewFromFloat(f.SwapUSD).
		Add(decimal.NewFromFloat(f.BorrowGasUSD)).
		Add(decimal.NewFromFloat(f.LendGasUSD))
	v, _ := total.Float64()
	return v
}

// RoundUSD rounds a USD amount to cents for display.
func RoundUSD(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
