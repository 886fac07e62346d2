// Package feed collects the top of every lending market order book into
// normalized quotes for the arbitrage engine.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/platform/securedfinance"
)

// BookReader reads currencies, markets and order books from the protocol.
// *securedfinance.Client satisfies it.
type BookReader interface {
	Currencies(ctx context.Context) ([]string, error)
	LendingMarkets(ctx context.Context, ccy string) ([]common.Address, error)
	Maturity(ctx context.Context, market common.Address) (int64, error)
	BorrowOrderBook(ctx context.Context, market common.Address, depth int64) (securedfinance.OrderBook, error)
	LendOrderBook(ctx context.Context, market common.Address, depth int64) (securedfinance.OrderBook, error)
}

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	// Currencies limits collection to these symbols. Empty means every
	// currency the protocol lists.
	Currencies         []string
	MarketsPerCurrency int
	MaxTrade           uint64
	RequestTimeout     time.Duration
	Concurrency        int
}

// Collector turns order book tops into quotes. A resting borrow order is
// something we can lend into, so the best borrow level becomes a LEND quote
// and the best lend level becomes a BORROW quote.
type Collector struct {
	reader BookReader
	cfg    CollectorConfig
	logger *slog.Logger
}

// NewCollector creates a Collector.
func NewCollector(reader BookReader, cfg CollectorConfig, logger *slog.Logger) *Collector {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Collector{
		reader: reader,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "quote_collector")),
	}
}

// Collect reads every configured currency concurrently and returns quotes in
// currency order, then market order. Any read error fails the whole
// collection so a snapshot is never partial.
func (c *Collector) Collect(ctx context.Context) ([]domain.Quote, error) {
	ccys := c.cfg.Currencies
	if len(ccys) == 0 {
		var err error
		ccys, err = c.withTimeoutStrings(ctx, c.reader.Currencies)
		if err != nil {
			return nil, fmt.Errorf("feed: list currencies: %w", err)
		}
	}

	results := make([][]domain.Quote, len(ccys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, ccy := range ccys {
		g.Go(func() error {
			qs, err := c.collectCurrency(gctx, ccy)
			if err != nil {
				return fmt.Errorf("feed: %s: %w", ccy, err)
			}
			results[i] = qs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.Quote
	for _, qs := range results {
		out = append(out, qs...)
	}
	c.logger.InfoContext(ctx, "quotes collected",
		slog.Int("currencies", len(ccys)),
		slog.Int("quotes", len(out)),
	)
	return out, nil
}

func (c *Collector) collectCurrency(ctx context.Context, ccy string) ([]domain.Quote, error) {
	rctx, cancel := c.requestContext(ctx)
	markets, err := c.reader.LendingMarkets(rctx, ccy)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("lending markets: %w", err)
	}
	if n := c.cfg.MarketsPerCurrency; n > 0 && len(markets) > n {
		markets = markets[:n]
	}

	var out []domain.Quote
	for _, market := range markets {
		qs, err := c.collectMarket(ctx, ccy, market)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", market.Hex(), err)
		}
		out = append(out, qs...)
	}
	return out, nil
}

func (c *Collector) collectMarket(ctx context.Context, ccy string, market common.Address) ([]domain.Quote, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	maturity, err := c.reader.Maturity(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("maturity: %w", err)
	}
	borrowBook, err := c.reader.BorrowOrderBook(ctx, market, 1)
	if err != nil {
		return nil, fmt.Errorf("borrow book: %w", err)
	}
	lendBook, err := c.reader.LendOrderBook(ctx, market, 1)
	if err != nil {
		return nil, fmt.Errorf("lend book: %w", err)
	}

	var out []domain.Quote
	if q, ok := c.toQuote(ccy, maturity, domain.SideLend, borrowBook); ok {
		out = append(out, q)
	}
	if q, ok := c.toQuote(ccy, maturity, domain.SideBorrow, lendBook); ok {
		out = append(out, q)
	}
	return out, nil
}

func (c *Collector) toQuote(ccy string, maturity int64, side domain.PositionSide, book securedfinance.OrderBook) (domain.Quote, bool) {
	best, ok := book.Best()
	if !ok || best.UnitPrice == nil || best.UnitPrice.IsZero() {
		return domain.Quote{}, false
	}
	if !best.UnitPrice.IsUint64() || best.UnitPrice.Uint64() > domain.ParPrice {
		c.logger.Warn("unit price out of range, skipping",
			slog.String("ccy", ccy),
			slog.Int64("maturity", maturity),
			slog.String("unit_price", best.UnitPrice.Dec()),
		)
		return domain.Quote{}, false
	}
	return domain.Quote{
		Token:    domain.Token{Name: ccy},
		Price:    int(best.UnitPrice.Uint64()),
		Maturity: maturity,
		Side:     side,
		Amount:   c.capAmount(best.Amount),
	}, true
}

// capAmount limits a book amount to the configured max trade size.
func (c *Collector) capAmount(qty *uint256.Int) *uint256.Int {
	if qty == nil {
		qty = new(uint256.Int)
	}
	if c.cfg.MaxTrade == 0 {
		return qty.Clone()
	}
	limit := uint256.NewInt(c.cfg.MaxTrade)
	if qty.Gt(limit) {
		return limit
	}
	return qty.Clone()
}

func (c *Collector) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}

func (c *Collector) withTimeoutStrings(ctx context.Context, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	return fn(ctx)
}
