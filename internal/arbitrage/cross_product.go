package arbitrage

import "github.com/alanyoungcy/termarb/internal/domain"

// CrossProduct scores every borrow against every lend quote.
type CrossProduct struct{}

func NewCrossProduct() *CrossProduct { return &CrossProduct{} }

// Name returns the matcher identifier.
func (*CrossProduct) Name() string { return "cross_product" }

// Match walks borrows × lends in order.
func (*CrossProduct) Match(borrows, lends []domain.Quote, now int64, s Scorer) []domain.Opportunity {
	var out []domain.Opportunity
	for _, b := range borrows {
		for _, l := range lends {
			if opp, ok := s.Score(b, l, now); ok {
				out = append(out, opp)
			}
		}
	}
	return out
}
