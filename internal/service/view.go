package service

import (
	"github.com/alanyoungcy/termarb/internal/domain"
)

// OpportunityView is the JSON shape of one opportunity on the bus, the API
// and in notifications.
type OpportunityView struct {
	Key         string  `json:"key"`
	Maturity    int64   `json:"maturity"`
	BorrowToken string  `json:"borrow_token"`
	BorrowPrice int     `json:"borrow_price"`
	LendToken   string  `json:"lend_token"`
	LendPrice   int     `json:"lend_price"`
	Amount      string  `json:"amount"`
	ProfitUSD   float64 `json:"profit_usd"`
}

// MaturityView groups the opportunities of one maturity.
type MaturityView struct {
	Maturity      int64             `json:"maturity"`
	Opportunities []OpportunityView `json:"opportunities"`
}

// ViewOf converts an opportunity for display.
func ViewOf(o domain.Opportunity) OpportunityView {
	amount := "0"
	if o.Borrow.Amount != nil {
		amount = o.Borrow.Amount.Dec()
	}
	return OpportunityView{
		Key:         o.Key(),
		Maturity:    o.Maturity(),
		BorrowToken: o.Borrow.Token.Name,
		BorrowPrice: o.Borrow.Price,
		LendToken:   o.Lend.Token.Name,
		LendPrice:   o.Lend.Price,
		Amount:      amount,
		ProfitUSD:   o.Profit,
	}
}

// ViewsOf converts a whole set, maturities ascending. Maturities without
// opportunities are kept so callers can tell an empty bucket from a missing one.
func ViewsOf(set domain.OpportunitySet) []MaturityView {
	out := make([]MaturityView, 0, len(set))
	for _, m := range set.Maturities() {
		opps := set[m]
		mv := MaturityView{Maturity: m, Opportunities: make([]OpportunityView, 0, len(opps))}
		for _, o := range opps {
			mv.Opportunities = append(mv.Opportunities, ViewOf(o))
		}
		out = append(out, mv)
	}
	return out
}
