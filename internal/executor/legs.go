package executor

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/termarb/internal/domain"
)

// MaxDecimals is the largest base-unit exponent whose power of ten fits in
// 256 bits.
const MaxDecimals = 77

// ScaleAmount converts a whole-token amount to base units, amount * 10^decimals.
// Results that do not fit in 256 bits fail with domain.ErrAmountOverflow.
func ScaleAmount(amount *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: nil amount", domain.ErrInvalidQuote)
	}
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: 10^%d", domain.ErrAmountOverflow, decimals)
	}
	factor := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	scaled, overflow := new(uint256.Int).MulOverflow(amount, factor)
	if overflow {
		return nil, fmt.Errorf("%w: %s * 10^%d", domain.ErrAmountOverflow, amount.Dec(), decimals)
	}
	return scaled, nil
}

// BuildLegs turns an opportunity into the borrow order and the lend order
// that execute it. Each leg trades its own quote's amount at its own price.
func BuildLegs(opp domain.Opportunity, decimals uint8) (borrow, lend domain.OrderRequest, err error) {
	borrowAmount, err := ScaleAmount(opp.Borrow.Amount, decimals)
	if err != nil {
		return borrow, lend, fmt.Errorf("borrow leg: %w", err)
	}
	lendAmount, err := ScaleAmount(opp.Lend.Amount, decimals)
	if err != nil {
		return borrow, lend, fmt.Errorf("lend leg: %w", err)
	}
	borrow = domain.OrderRequest{
		Token:     opp.Borrow.Token,
		Maturity:  opp.Borrow.Maturity,
		Side:      domain.SideBorrow,
		Amount:    borrowAmount,
		UnitPrice: opp.Borrow.Price,
	}
	lend = domain.OrderRequest{
		Token:     opp.Lend.Token,
		Maturity:  opp.Lend.Maturity,
		Side:      domain.SideLend,
		Amount:    lendAmount,
		UnitPrice: opp.Lend.Price,
	}
	return borrow, lend, nil
}
