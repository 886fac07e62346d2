package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/termarb/internal/arbitrage"
	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/notify"
	"github.com/alanyoungcy/termarb/internal/snapshot"
)

// QuoteSource produces the quotes of one detection cycle.
type QuoteSource interface {
	Collect(ctx context.Context) ([]domain.Quote, error)
}

// FeeSource refines the static fees from the quotes about to be matched.
type FeeSource interface {
	Fees(ctx context.Context, base domain.Fees, quotes []domain.Quote) (domain.Fees, error)
}

// SnapshotSaver archives the collected quotes.
type SnapshotSaver interface {
	Save(ctx context.Context, s snapshot.Snapshot) (string, error)
}

// Publisher makes a detection result visible to the API and subscribers.
type Publisher interface {
	Publish(ctx context.Context, runID string, detectedAt time.Time, set domain.OpportunitySet) error
}

// Executor submits the selected opportunities of a set.
type Executor interface {
	Execute(ctx context.Context, runID string, set domain.OpportunitySet) ([]domain.Execution, error)
}

// Notifier sends operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

const snapshotSource = "securedfinance"

// Cycle is one collect, detect, publish and optionally execute pass. Only
// Source and Publisher are required.
type Cycle struct {
	Source    QuoteSource
	Matcher   arbitrage.Matcher
	Prices    domain.PriceTable
	Fees      domain.Fees
	Estimator FeeSource
	Archive   SnapshotSaver
	Publisher Publisher
	Executor  Executor
	Notifier  Notifier
	Now       func() time.Time
	Logger    *slog.Logger
}

// CycleResult summarises one pass.
type CycleResult struct {
	RunID        string
	TakenAt      time.Time
	Quotes       int
	Set          domain.OpportunitySet
	Executions   []domain.Execution
	SnapshotPath string
}

// Run executes one cycle. A collection failure aborts the cycle before
// anything is published; archive, fee estimation and notification failures
// are logged and the cycle continues.
func (c *Cycle) Run(ctx context.Context) (CycleResult, error) {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	res := CycleResult{RunID: uuid.NewString()}
	log := c.Logger.With(slog.String("run_id", res.RunID))

	quotes, err := c.Source.Collect(ctx)
	if err != nil {
		return res, fmt.Errorf("cycle: collect: %w", err)
	}
	res.TakenAt = now().UTC()
	res.Quotes = len(quotes)

	if c.Archive != nil {
		path, err := c.Archive.Save(ctx, snapshot.New(quotes, res.TakenAt, snapshotSource))
		if err != nil {
			log.WarnContext(ctx, "snapshot archive failed", slog.String("error", err.Error()))
		} else {
			res.SnapshotPath = path
		}
	}

	fees := c.Fees
	if c.Estimator != nil {
		if fees, err = c.Estimator.Fees(ctx, c.Fees, quotes); err != nil {
			log.WarnContext(ctx, "fee estimation failed, using static fees", slog.String("error", err.Error()))
			fees = c.Fees
		}
	}

	res.Set, err = Detect(quotes, res.TakenAt, c.Matcher, c.Prices, fees, c.Logger)
	if err != nil {
		return res, err
	}
	log.InfoContext(ctx, "detection complete",
		slog.Int("quotes", res.Quotes),
		slog.Int("maturities", len(res.Set)),
		slog.Int("opportunities", res.Set.Count()),
		slog.Float64("fees_usd", fees.Total()),
	)

	if err := c.Publisher.Publish(ctx, res.RunID, res.TakenAt, res.Set); err != nil {
		return res, fmt.Errorf("cycle: publish: %w", err)
	}
	c.alert(ctx, log, res.Set)

	if c.Executor != nil {
		res.Executions, err = c.Executor.Execute(ctx, res.RunID, res.Set)
		if err != nil {
			return res, fmt.Errorf("cycle: execute: %w", err)
		}
	}
	return res, nil
}

func (c *Cycle) alert(ctx context.Context, log *slog.Logger, set domain.OpportunitySet) {
	if c.Notifier == nil || set.Count() == 0 {
		return
	}
	best := 0.0
	for _, m := range set.Maturities() {
		if o, ok := set.Best(m); ok && o.Profit > best {
			best = o.Profit
		}
	}
	msg := fmt.Sprintf("%d opportunities across %d maturities, best $%s",
		set.Count(), len(set), domain.RoundUSD(best))
	if err := c.Notifier.Notify(ctx, notify.EventOpportunityDetected, "Opportunities detected", msg); err != nil {
		log.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
}

// Detect runs a fresh engine over quotes at now.
func Detect(quotes []domain.Quote, now time.Time, matcher arbitrage.Matcher, prices domain.PriceTable, fees domain.Fees, logger *slog.Logger) (domain.OpportunitySet, error) {
	engine := arbitrage.NewEngine(arbitrage.Config{
		Prices:  prices,
		Fees:    fees,
		Matcher: matcher,
		Logger:  logger,
	})
	if err := engine.Detect(quotes, now); err != nil {
		return nil, err
	}
	return engine.Opportunities(), nil
}
