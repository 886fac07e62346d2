package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/executor"
)

// CostEstimator prices a createOrder call in gas. *securedfinance.Client
// satisfies it.
type CostEstimator interface {
	EstimateOrderCost(ctx context.Context, req domain.OrderRequest, from common.Address) (uint64, *big.Int, error)
}

// FeeEstimator replaces the static gas fees with a node estimate of the two
// createOrder calls, converted to USD with the gas token price.
type FeeEstimator struct {
	estimator CostEstimator
	from      common.Address
	gasToken  domain.Token
	prices    domain.PriceTable
	decimals  uint8
	logger    *slog.Logger
}

// NewFeeEstimator creates a FeeEstimator. from is the account the orders
// would be sent from; decimals is the base-unit exponent the executor
// scales leg amounts by.
func NewFeeEstimator(estimator CostEstimator, from common.Address, gasToken string, prices domain.PriceTable, decimals uint8, logger *slog.Logger) *FeeEstimator {
	return &FeeEstimator{
		estimator: estimator,
		from:      from,
		gasToken:  domain.Token{Name: gasToken},
		prices:    prices.Clone(),
		decimals:  decimals,
		logger:    logger.With(slog.String("component", "fee_estimator")),
	}
}

// Fees returns base with BorrowGasUSD and LendGasUSD replaced by estimates
// of the orders the executor would send for the first borrow and the first
// lend quote, amounts scaled to base units. On any failure the static base
// fees are returned with the error.
func (f *FeeEstimator) Fees(ctx context.Context, base domain.Fees, quotes []domain.Quote) (domain.Fees, error) {
	ethUSD, ok := f.prices.Lookup(f.gasToken)
	if !ok {
		return base, fmt.Errorf("fee_estimator: no price for gas token %s", f.gasToken)
	}

	var borrowQ, lendQ *domain.Quote
	for i := range quotes {
		switch {
		case borrowQ == nil && quotes[i].Side == domain.SideBorrow:
			borrowQ = &quotes[i]
		case lendQ == nil && quotes[i].Side == domain.SideLend:
			lendQ = &quotes[i]
		}
	}
	if borrowQ == nil || lendQ == nil {
		return base, nil
	}

	borrow, lend, err := executor.BuildLegs(domain.Opportunity{Borrow: *borrowQ, Lend: *lendQ}, f.decimals)
	if err != nil {
		return base, fmt.Errorf("fee_estimator: %w", err)
	}

	out := base
	if out.BorrowGasUSD, err = f.legUSD(ctx, borrow, ethUSD); err != nil {
		return base, err
	}
	if out.LendGasUSD, err = f.legUSD(ctx, lend, ethUSD); err != nil {
		return base, err
	}
	f.logger.DebugContext(ctx, "estimated gas fees",
		slog.Float64("borrow_gas_usd", out.BorrowGasUSD),
		slog.Float64("lend_gas_usd", out.LendGasUSD),
	)
	return out, nil
}

func (f *FeeEstimator) legUSD(ctx context.Context, req domain.OrderRequest, ethUSD float64) (float64, error) {
	gas, price, err := f.estimator.EstimateOrderCost(ctx, req, f.from)
	if err != nil {
		return 0, fmt.Errorf("fee_estimator: %s leg: %w", req.Side, err)
	}
	return GasCostUSD(gas, price, ethUSD), nil
}

// GasCostUSD converts gas units at a wei gas price into USD.
func GasCostUSD(gas uint64, gasPriceWei *big.Int, nativeUSD float64) float64 {
	if gasPriceWei == nil {
		return 0
	}
	wei := decimal.NewFromBigInt(gasPriceWei, 0).Mul(decimal.NewFromInt(int64(gas)))
	usd := wei.Shift(-18).Mul(decimal.NewFromFloat(nativeUSD))
	v, _ := usd.Float64()
	return v
}
