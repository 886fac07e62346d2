package domain

import (
	"fmt"
	"sort"
)

// Opportunity is a carry trade between two quotes of the same maturity:
// borrow one token at a lower annualized rate and lend another at a higher one.
type Opportunity struct {
	Borrow Quote
	Lend   Quote
	// In USD, net of fees.
	Profit float64
}

// Maturity returns the shared maturity of both legs.
func (o Opportunity) Maturity() int64 { return o.Borrow.Maturity }

// Key identifies the pair of quotes an opportunity was built from, including
// both leg amounts. Two detection runs over the same book produce the same key.
func (o Opportunity) Key() string {
	return fmt.Sprintf("%d:%s@%d/%s:%s@%d/%s", o.Borrow.Maturity,
		o.Borrow.Token.Name, o.Borrow.Price, amountKey(o.Borrow),
		o.Lend.Token.Name, o.Lend.Price, amountKey(o.Lend),
	)
}

func amountKey(q Quote) string {
	if q.Amount == nil {
		return "0"
	}
	return q.Amount.Dec()
}

// OpportunitySet maps a maturity to its opportunities in discovery order.
type OpportunitySet map[int64][]Opportunity

// Maturities returns the keys of the set in ascending order.
func (s OpportunitySet) Maturities() []int64 {
	out := make([]int64, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// First returns the first opportunity discovered for the maturity.
func (s OpportunitySet) First(maturity int64) (Opportunity, bool) {
	opps := s[maturity]
	if len(opps) == 0 {
		return Opportunity{}, false
	}
	return opps[0], true
}

// Best returns the most profitable opportunity for the maturity. Ties keep
// the earlier discovery.
func (s OpportunitySet) Best(maturity int64) (Opportunity, bool) {
	opps := s[maturity]
	if len(opps) == 0 {
		return Opportunity{}, false
	}
	best := opps[0]
	for _, o := range opps[1:] {
		if o.Profit > best.Profit {
			best = o
		}
	}
	return best, true
}

// Count returns the total number of opportunities across all maturities.
func (s OpportunitySet) Count() int {
	n := 0
	for _, opps := range s {
		n += len(opps)
	}
	return n
}

// SelectionPolicy decides which opportunity of a maturity bucket gets executed.
type SelectionPolicy string

const (
	SelectFirst SelectionPolicy = "first"
	SelectBest  SelectionPolicy = "best"
)

// Select applies the policy to one maturity of the set.
func (s OpportunitySet) Select(maturity int64, policy SelectionPolicy) (Opportunity, bool) {
	if policy == SelectBest {
		return s.Best(maturity)
	}
	return s.First(maturity)
}
