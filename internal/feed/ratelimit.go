package feed

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/platform/securedfinance"
)

// RateLimitedReader waits on a shared limiter before every RPC read.
type RateLimitedReader struct {
	next    BookReader
	limiter domain.RateLimiter
	key     string
}

// NewRateLimitedReader wraps next so all calls draw from the limiter's key.
func NewRateLimitedReader(next BookReader, limiter domain.RateLimiter, key string) *RateLimitedReader {
	return &RateLimitedReader{next: next, limiter: limiter, key: key}
}

func (r *RateLimitedReader) Currencies(ctx context.Context) ([]string, error) {
	if err := r.limiter.Wait(ctx, r.key); err != nil {
		return nil, err
	}
	return r.next.Currencies(ctx)
}

func (r *RateLimitedReader) LendingMarkets(ctx context.Context, ccy string) ([]common.Address, error) {
	if err := r.limiter.Wait(ctx, r.key); err != nil {
		return nil, err
	}
	return r.next.LendingMarkets(ctx, ccy)
}

func (r *RateLimitedReader) Maturity(ctx context.Context, market common.Address) (int64, error) {
	if err := r.limiter.Wait(ctx, r.key); err != nil {
		return 0, err
	}
	return r.next.Maturity(ctx, market)
}

func (r *RateLimitedReader) BorrowOrderBook(ctx context.Context, market common.Address, depth int64) (securedfinance.OrderBook, error) {
	if err := r.limiter.Wait(ctx, r.key); err != nil {
		return nil, err
	}
	return r.next.BorrowOrderBook(ctx, market, depth)
}

func (r *RateLimitedReader) LendOrderBook(ctx context.Context, market common.Address, depth int64) (securedfinance.OrderBook, error) {
	if err := r.limiter.Wait(ctx, r.key); err != nil {
		return nil, err
	}
	return r.next.LendOrderBook(ctx, market, depth)
}
