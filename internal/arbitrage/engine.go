package arbitrage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/termarb/internal/domain"
)

// Config configures an Engine.
type Config struct {
	Prices  domain.PriceTable
	Fees    domain.Fees
	Matcher Matcher // defaults to CrossProduct
	Clock   Clock   // defaults to SystemClock
	Logger  *slog.Logger
}

// Engine groups quotes by maturity and matches each bucket into carry trade
// opportunities. An Engine is not safe for concurrent use; build one per
// snapshot.
type Engine struct {
	scorer        Scorer
	matcher       Matcher
	clock         Clock
	opportunities domain.OpportunitySet
	logger        *slog.Logger
}

// NewEngine creates an engine with an empty opportunity set. The price table
// is copied.
func NewEngine(cfg Config) *Engine {
	if cfg.Matcher == nil {
		cfg.Matcher = NewCrossProduct()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		scorer:        Scorer{Prices: cfg.Prices.Clone(), Fees: cfg.Fees},
		matcher:       cfg.Matcher,
		clock:         cfg.Clock,
		opportunities: make(domain.OpportunitySet),
		logger:        cfg.Logger.With(slog.String("component", "arb_engine")),
	}
}

// Matcher returns the name of the matcher in use.
func (e *Engine) Matcher() string { return e.matcher.Name() }

// Detect matches quotes at reference time now and stores the result of each
// maturity bucket, replacing previous results for that maturity. Maturities
// absent from quotes keep their previous results. The only error is
// domain.ErrClockUnavailable, in which case nothing is changed.
func (e *Engine) Detect(quotes []domain.Quote, now time.Time) error {
	if !usableTime(now) {
		return fmt.Errorf("arb engine: detect: %w", domain.ErrClockUnavailable)
	}
	ts := now.Unix()
	maturities, buckets := groupByMaturity(quotes)
	for _, m := range maturities {
		opps := e.MatchBucket(buckets[m], ts)
		e.opportunities[m] = opps
		e.logger.Debug("bucket matched",
			slog.Int64("maturity", m),
			slog.Int("quotes", len(buckets[m])),
			slog.Int("opportunities", len(opps)),
		)
	}
	return nil
}

// DetectNow runs Detect at the engine clock's current time.
func (e *Engine) DetectNow(quotes []domain.Quote) error {
	return e.Detect(quotes, e.clock.Now())
}

// MatchBucket scores every borrow/lend pair of a single maturity bucket and
// returns the profitable ones in borrow-major, lend-minor order.
func (e *Engine) MatchBucket(quotes []domain.Quote, now int64) []domain.Opportunity {
	borrows, lends := split(quotes)
	if len(borrows) == 0 || len(lends) == 0 {
		return nil
	}
	return e.matcher.Match(borrows, lends, now, e.scorer)
}

// Opportunities returns a copy of the current opportunity set.
func (e *Engine) Opportunities() domain.OpportunitySet {
	out := make(domain.OpportunitySet, len(e.opportunities))
	for m, opps := range e.opportunities {
		out[m] = append([]domain.Opportunity(nil), opps...)
	}
	return out
}

// groupByMaturity buckets quotes by maturity. Maturities are returned in
// order of first appearance and quotes keep their input order.
func groupByMaturity(quotes []domain.Quote) ([]int64, map[int64][]domain.Quote) {
	var order []int64
	buckets := make(map[int64][]domain.Quote)
	for _, q := range quotes {
		if _, ok := buckets[q.Maturity]; !ok {
			order = append(order, q.Maturity)
		}
		buckets[q.Maturity] = append(buckets[q.Maturity], q)
	}
	return order, buckets
}
