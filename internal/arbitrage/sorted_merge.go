package arbitrage

import (
	"sort"

	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/rate"
)

// SortedMerge orders borrow quotes by rate ascending and lend quotes by rate
// descending, so the inner loop can stop at the first negative differential.
// Results are put back into borrow-major, lend-minor input order, making it a
// drop-in replacement for CrossProduct on large books.
type SortedMerge struct{}

func NewSortedMerge() *SortedMerge { return &SortedMerge{} }

// Name returns the matcher identifier.
func (*SortedMerge) Name() string { return "sorted_merge" }

type ratedQuote struct {
	idx  int
	rate float64
	q    domain.Quote
}

type match struct {
	bi, li int
	opp    domain.Opportunity
}

// Match returns the same opportunities as CrossProduct.
func (*SortedMerge) Match(borrows, lends []domain.Quote, now int64, s Scorer) []domain.Opportunity {
	rb := rated(borrows, now)
	rl := rated(lends, now)
	if len(rb) == 0 || len(rl) == 0 {
		return nil
	}
	sort.SliceStable(rb, func(i, j int) bool { return rb[i].rate < rb[j].rate })
	sort.SliceStable(rl, func(i, j int) bool { return rl[i].rate > rl[j].rate })

	var found []match
	for _, b := range rb {
		if rl[0].rate-b.rate < 0 {
			// borrow rates only grow from here
			break
		}
		for _, l := range rl {
			if l.rate-b.rate < 0 {
				break
			}
			if b.q.Token.Equal(l.q.Token) {
				continue
			}
			if opp, ok := s.scoreRates(b.q, l.q, b.rate, l.rate); ok {
				found = append(found, match{bi: b.idx, li: l.idx, opp: opp})
			}
		}
	}

	if len(found) == 0 {
		return nil
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].bi != found[j].bi {
			return found[i].bi < found[j].bi
		}
		return found[i].li < found[j].li
	})
	out := make([]domain.Opportunity, len(found))
	for i, m := range found {
		out[i] = m.opp
	}
	return out
}

// rated keeps the quotes the rate model can score, with their input index.
func rated(quotes []domain.Quote, now int64) []ratedQuote {
	out := make([]ratedQuote, 0, len(quotes))
	for i, q := range quotes {
		r, ok := rate.Of(q, now)
		if !ok {
			continue
		}
		out = append(out, ratedQuote{idx: i, rate: r, q: q})
	}
	return out
}
