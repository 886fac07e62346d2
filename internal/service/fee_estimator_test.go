package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/termarb/internal/domain"
)

type fakeEstimator struct {
	gas  map[domain.PositionSide]uint64
	err  error
	reqs []domain.OrderRequest
}

func (f *fakeEstimator) EstimateOrderCost(_ context.Context, req domain.OrderRequest, _ common.Address) (uint64, *big.Int, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return 0, nil, f.err
	}
	// createOrder reverts on an empty order.
	if req.Amount == nil || req.Amount.IsZero() {
		return 0, nil, errors.New("execution reverted: invalid amount")
	}
	return f.gas[req.Side], big.NewInt(20_000_000_000), nil
}

func quotes() []domain.Quote {
	return []domain.Quote{
		{Token: domain.Token{Name: "USDC"}, Price: 9500, Maturity: 100, Side: domain.SideLend, Amount: uint256.NewInt(3)},
		{Token: domain.Token{Name: "ETH"}, Price: 9800, Maturity: 100, Side: domain.SideBorrow, Amount: uint256.NewInt(7)},
	}
}

func TestGasCostUSD(t *testing.T) {
	// 100k gas at 20 gwei is 0.002 ETH.
	if got := GasCostUSD(100_000, big.NewInt(20_000_000_000), 2500); got != 5 {
		t.Fatalf("GasCostUSD = %v, want 5", got)
	}
	if GasCostUSD(1, nil, 1) != 0 {
		t.Fatal("nil price should cost nothing")
	}
}

func TestFeeEstimatorReplacesGas(t *testing.T) {
	est := &fakeEstimator{gas: map[domain.PositionSide]uint64{domain.SideBorrow: 100_000, domain.SideLend: 50_000}}
	f := NewFeeEstimator(est, common.Address{}, "ETH", domain.PriceTable{"ETH": 2500}, 18, discard())

	fees, err := f.Fees(context.Background(), domain.Fees{SwapUSD: 1, BorrowGasUSD: 9, LendGasUSD: 9}, quotes())
	if err != nil {
		t.Fatal(err)
	}
	if fees.SwapUSD != 1 || fees.BorrowGasUSD != 5 || fees.LendGasUSD != 2.5 {
		t.Fatalf("fees = %+v", fees)
	}
	if len(est.reqs) != 2 {
		t.Fatalf("estimated %d orders, want 2", len(est.reqs))
	}
	borrow, lend := est.reqs[0], est.reqs[1]
	wantBorrow, _ := uint256.FromDecimal("7000000000000000000")
	wantLend, _ := uint256.FromDecimal("3000000000000000000")
	if borrow.Side != domain.SideBorrow || borrow.Token.Name != "ETH" || borrow.UnitPrice != 9800 || !borrow.Amount.Eq(wantBorrow) {
		t.Fatalf("borrow estimate request = %+v (amount %s)", borrow, borrow.Amount.Dec())
	}
	if lend.Side != domain.SideLend || lend.Token.Name != "USDC" || lend.UnitPrice != 9500 || !lend.Amount.Eq(wantLend) {
		t.Fatalf("lend estimate request = %+v (amount %s)", lend, lend.Amount.Dec())
	}
}

func TestFeeEstimatorAmountOverflow(t *testing.T) {
	est := &fakeEstimator{}
	f := NewFeeEstimator(est, common.Address{}, "ETH", domain.PriceTable{"ETH": 1}, 78, discard())
	base := domain.Fees{BorrowGasUSD: 9}

	got, err := f.Fees(context.Background(), base, quotes())
	if !errors.Is(err, domain.ErrAmountOverflow) || got != base {
		t.Fatalf("got %+v, %v", got, err)
	}
	if len(est.reqs) != 0 {
		t.Fatal("nothing should be estimated when legs cannot be built")
	}
}

func TestFeeEstimatorFallsBack(t *testing.T) {
	base := domain.Fees{BorrowGasUSD: 9, LendGasUSD: 8}

	f := NewFeeEstimator(&fakeEstimator{err: errors.New("execution reverted")}, common.Address{}, "ETH", domain.PriceTable{"ETH": 1}, 18, discard())
	got, err := f.Fees(context.Background(), base, quotes())
	if err == nil || got != base {
		t.Fatalf("got %+v, %v", got, err)
	}

	f = NewFeeEstimator(&fakeEstimator{}, common.Address{}, "MATIC", domain.PriceTable{}, 18, discard())
	if _, err := f.Fees(context.Background(), base, quotes()); err == nil {
		t.Fatal("missing gas token price should error")
	}

	f = NewFeeEstimator(&fakeEstimator{}, common.Address{}, "ETH", domain.PriceTable{"ETH": 1}, 18, discard())
	got, err = f.Fees(context.Background(), base, quotes()[:1])
	if err != nil || got != base {
		t.Fatalf("one-sided snapshot: %+v, %v", got, err)
	}
}
