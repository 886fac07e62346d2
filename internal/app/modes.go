package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/termarb/internal/arbitrage"
	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/executor"
	"github.com/alanyoungcy/termarb/internal/feed"
	"github.com/alanyoungcy/termarb/internal/server"
	"github.com/alanyoungcy/termarb/internal/server/handler"
	"github.com/alanyoungcy/termarb/internal/server/ws"
	"github.com/alanyoungcy/termarb/internal/service"
	"github.com/alanyoungcy/termarb/internal/snapshot"
)

const rpcLimiterKey = "rpc"

// ScanMode collects and detects on every interval and publishes the result
// without submitting orders.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")
	return a.runCycles(ctx, deps, false)
}

// ExecuteMode is ScanMode plus order submission for the selected opportunity
// of every maturity.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execute mode", slog.Bool("dry_run", a.cfg.Executor.DryRun))
	return a.runCycles(ctx, deps, true)
}

// ReplayMode detects over an archived snapshot at the time it was taken and
// prints a report.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	snap, from, err := a.loadReplay(ctx, deps)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	matcher, err := arbitrage.DefaultRegistry().Get(a.cfg.Engine.Matcher)
	if err != nil {
		return err
	}
	set, err := Detect(snap.Quotes, snap.TakenAt, matcher, a.prices(), a.fees(), a.logger)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	a.logger.InfoContext(ctx, "replay complete",
		slog.String("snapshot", from),
		slog.Int("quotes", len(snap.Quotes)),
		slog.Int("opportunities", set.Count()),
	)
	return WriteReport(a.out, snap, set)
}

func (a *App) loadReplay(ctx context.Context, deps *Dependencies) (snapshot.Snapshot, string, error) {
	rc := a.cfg.Replay
	switch {
	case rc.File != "":
		s, err := snapshot.LoadFile(rc.File)
		return s, rc.File, err
	case rc.Key != "":
		s, err := deps.Archive.Load(ctx, rc.Key)
		return s, rc.Key, err
	case rc.Day != "":
		day, err := time.Parse(time.DateOnly, rc.Day)
		if err != nil {
			return snapshot.Snapshot{}, "", err
		}
		return deps.Archive.Latest(ctx, day)
	default:
		return snapshot.Snapshot{}, "", errors.New("no snapshot source configured")
	}
}

func (a *App) runCycles(ctx context.Context, deps *Dependencies, execute bool) error {
	svc := service.NewOpportunityService(deps.SignalBus, deps.AuditStore, service.OpportunityConfig{
		MinProfitUSD: a.cfg.Executor.MinProfitUSD,
		MaxTrade:     a.cfg.Collector.MaxTrade,
		Stream:       a.cfg.Redis.Stream,
	}, a.logger)

	cycle, exec, err := a.buildCycle(deps, svc, execute)
	if err != nil {
		return err
	}

	if a.once {
		_, err := cycle.Run(ctx)
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc)
	}
	g.Go(func() error {
		return a.loop(ctx, cycle, exec)
	})
	return g.Wait()
}

func (a *App) buildCycle(deps *Dependencies, svc *service.OpportunityService, execute bool) (*Cycle, *executor.Executor, error) {
	matcher, err := arbitrage.DefaultRegistry().Get(a.cfg.Engine.Matcher)
	if err != nil {
		return nil, nil, err
	}

	var reader feed.BookReader = deps.Protocol
	if deps.RPCLimiter != nil {
		reader = feed.NewRateLimitedReader(reader, deps.RPCLimiter, rpcLimiterKey)
	}
	collector := feed.NewCollector(reader, feed.CollectorConfig{
		Currencies:         a.cfg.Collector.Currencies,
		MarketsPerCurrency: a.cfg.Collector.MarketsPerCurrency,
		MaxTrade:           a.cfg.Collector.MaxTrade,
		RequestTimeout:     a.cfg.Collector.RequestTimeout.Duration,
		Concurrency:        a.cfg.Collector.Concurrency,
	}, a.logger)

	cycle := &Cycle{
		Source:    collector,
		Matcher:   matcher,
		Prices:    a.prices(),
		Fees:      a.fees(),
		Publisher: svc,
		Notifier:  deps.Notifier,
		Logger:    a.logger,
	}
	if a.cfg.Engine.EstimateFees {
		cycle.Estimator = service.NewFeeEstimator(deps.Protocol, deps.Account, a.cfg.Engine.GasToken, cycle.Prices, uint8(a.cfg.Executor.Decimals), a.logger)
	}
	if a.cfg.Archive.Enabled && deps.Archive != nil {
		cycle.Archive = deps.Archive
	}

	if !execute {
		return cycle, nil, nil
	}
	exec := executor.NewExecutor(deps.Protocol, executor.Config{
		Selection: domain.SelectionPolicy(a.cfg.Executor.Selection),
		Decimals:  uint8(a.cfg.Executor.Decimals),
		DryRun:    a.cfg.Executor.DryRun,
		LockTTL:   a.cfg.Executor.LockTTL.Duration,
		DedupTTL:  a.cfg.Executor.DedupTTL.Duration,
	}, a.logger)
	exec.SetGate(svc)
	exec.SetRecorder(svc)
	exec.SetNotifier(deps.Notifier)
	if deps.ExecutionStore != nil {
		exec.SetStore(deps.ExecutionStore)
	}
	if deps.LockManager != nil {
		exec.SetLocks(deps.LockManager)
	}
	cycle.Executor = exec
	return cycle, exec, nil
}

// loop runs a cycle immediately and then on every interval. A failed cycle
// is logged and retried on the next tick.
func (a *App) loop(ctx context.Context, cycle *Cycle, exec *executor.Executor) error {
	ticker := time.NewTicker(a.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		if _, err := cycle.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.ErrorContext(ctx, "cycle failed", slog.String("error", err.Error()))
		}
		if exec != nil {
			exec.CleanupDedup()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *App) prices() domain.PriceTable {
	return domain.PriceTable(a.cfg.Engine.Prices).Clone()
}

func (a *App) fees() domain.Fees {
	return domain.Fees{
		SwapUSD:      a.cfg.Engine.Fees.SwapUSD,
		BorrowGasUSD: a.cfg.Engine.Fees.BorrowGasUSD,
		LendGasUSD:   a.cfg.Engine.Fees.LendGasUSD,
	}
}

// startHTTPServer adds the WebSocket hub and the API server to g. Without a
// bus the service broadcasts to the hub directly.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.OpportunityService) {
	startedAt := time.Now()
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Matcher:   a.cfg.Engine.Matcher,
		Channels:  []string{service.ChannelOpportunities, service.ChannelExecutions},
		StartedAt: startedAt,
	})
	if deps.SignalBus == nil {
		svc.SetBroadcaster(hub)
	}
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var profit handler.ProfitSummer
	h := server.Handlers{
		Health:        handler.NewHealthHandler(deps.Health),
		Opportunities: handler.NewOpportunityHandler(svc),
	}
	if deps.ExecutionStore != nil {
		profit = deps.ExecutionStore
		h.Executions = handler.NewExecutionHandler(deps.ExecutionStore, a.logger)
	}
	if deps.AuditStore != nil {
		h.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}
	if deps.SignalBus != nil && a.cfg.Redis.Stream != "" {
		h.Events = handler.NewEventHandler(deps.SignalBus, a.cfg.Redis.Stream, a.logger)
	}
	h.Status = handler.NewStatusHandler(handler.StatusInfo{
		Mode:      a.cfg.Mode,
		Matcher:   a.cfg.Engine.Matcher,
		Selection: a.cfg.Executor.Selection,
		DryRun:    a.cfg.Executor.DryRun,
		StartedAt: startedAt,
	}, svc, profit, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, h, hub, deps.APILimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
