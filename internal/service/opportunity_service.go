// Package service holds the decision layer between detection and execution:
// it gates opportunities, publishes detection results and audits executions.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/termarb/internal/domain"
)

// Bus channels.
const (
	ChannelOpportunities = "opportunities"
	ChannelExecutions    = "executions"
)

// Broadcaster delivers events to in-process listeners when no signal bus is
// configured.
type Broadcaster interface {
	Broadcast(channel string, payload []byte)
}

// OpportunityConfig holds the execution gates and publishing options.
type OpportunityConfig struct {
	MinProfitUSD float64
	// MaxTrade caps the borrow leg amount. Zero disables the cap.
	MaxTrade uint64
	// Stream, when set, also appends detection events to a durable stream.
	Stream string
}

// Snapshot is the most recent detection result.
type Snapshot struct {
	RunID      string
	DetectedAt time.Time
	Set        domain.OpportunitySet
}

// OpportunityService evaluates and publishes opportunities.
type OpportunityService struct {
	bus    domain.SignalBus
	audit  domain.AuditStore
	local  Broadcaster
	cfg    OpportunityConfig
	logger *slog.Logger

	mu     sync.RWMutex
	latest Snapshot
}

// NewOpportunityService creates an OpportunityService. bus and audit may be
// nil when Redis or Postgres are not configured.
func NewOpportunityService(
	bus domain.SignalBus,
	audit domain.AuditStore,
	cfg OpportunityConfig,
	logger *slog.Logger,
) *OpportunityService {
	return &OpportunityService{
		bus:    bus,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "opportunity_service")),
		latest: Snapshot{Set: domain.OpportunitySet{}},
	}
}

// SetBroadcaster routes events to b when no bus is configured.
func (s *OpportunityService) SetBroadcaster(b Broadcaster) {
	s.local = b
}

// Evaluate reports whether an opportunity passes the execution gates.
func (s *OpportunityService) Evaluate(ctx context.Context, opp domain.Opportunity) bool {
	if opp.Profit < s.cfg.MinProfitUSD {
		s.logger.DebugContext(ctx, "profit below minimum",
			slog.String("key", opp.Key()),
			slog.Float64("profit_usd", opp.Profit),
			slog.Float64("min_profit_usd", s.cfg.MinProfitUSD),
		)
		return false
	}
	if s.cfg.MaxTrade > 0 {
		limit := uint256.NewInt(s.cfg.MaxTrade)
		for _, leg := range []domain.Quote{opp.Borrow, opp.Lend} {
			if leg.Amount != nil && leg.Amount.Gt(limit) {
				s.logger.DebugContext(ctx, "amount above max trade",
					slog.String("key", opp.Key()),
					slog.String("side", leg.Side.String()),
					slog.String("amount", leg.Amount.Dec()),
					slog.Uint64("max_trade", s.cfg.MaxTrade),
				)
				return false
			}
		}
	}
	return true
}

// Publish stores the detection result as the latest snapshot and emits an
// opportunities_detected event.
func (s *OpportunityService) Publish(ctx context.Context, runID string, detectedAt time.Time, set domain.OpportunitySet) error {
	clone := make(domain.OpportunitySet, len(set))
	for m, opps := range set {
		clone[m] = append([]domain.Opportunity(nil), opps...)
	}
	s.mu.Lock()
	s.latest = Snapshot{RunID: runID, DetectedAt: detectedAt, Set: clone}
	s.mu.Unlock()

	evt, err := json.Marshal(map[string]any{
		"event":       "opportunities_detected",
		"run_id":      runID,
		"detected_at": detectedAt.UTC().Format(time.RFC3339),
		"count":       set.Count(),
		"maturities":  ViewsOf(set),
	})
	if err != nil {
		return fmt.Errorf("opportunity_service: marshal event: %w", err)
	}
	s.emit(ctx, ChannelOpportunities, evt)
	if s.bus != nil && s.cfg.Stream != "" {
		if err := s.bus.StreamAppend(ctx, s.cfg.Stream, evt); err != nil {
			s.logger.WarnContext(ctx, "stream append failed",
				slog.String("stream", s.cfg.Stream),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Latest returns the most recently published snapshot.
func (s *OpportunityService) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// RecordExecution audits an execution attempt and publishes it on the
// executions channel.
func (s *OpportunityService) RecordExecution(ctx context.Context, exec domain.Execution) {
	detail := map[string]any{
		"execution_id":    exec.ID,
		"run_id":          exec.RunID,
		"opportunity_key": exec.OpportunityKey,
		"maturity":        exec.Maturity,
		"status":          string(exec.Status),
		"borrow_tx":       exec.BorrowTxHash,
		"lend_tx":         exec.LendTxHash,
		"expected_profit": exec.ExpectedProfit,
		"amount":          exec.Amount,
	}
	if exec.Error != "" {
		detail["error"] = exec.Error
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "execution_"+string(exec.Status), detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("execution_id", exec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	msg := make(map[string]any, len(detail)+1)
	for k, v := range detail {
		msg[k] = v
	}
	msg["event"] = "execution"
	evt, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.emit(ctx, ChannelExecutions, evt)
}

func (s *OpportunityService) emit(ctx context.Context, channel string, payload []byte) {
	if s.bus == nil {
		if s.local != nil {
			s.local.Broadcast(channel, payload)
		}
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
