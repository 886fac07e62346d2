// Package executor turns detected opportunities into borrow and lend orders on
// the lending market.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/termarb/internal/domain"
)

// OrderSubmitter places one order leg on the protocol.
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// Gate decides whether an opportunity may be executed.
type Gate interface {
	Evaluate(ctx context.Context, opp domain.Opportunity) bool
}

// Recorder observes every finished execution attempt.
type Recorder interface {
	RecordExecution(ctx context.Context, exec domain.Execution)
}

// Notifier sends operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types.
const (
	EventOrderSubmitted  = "order_submitted"
	EventExecutionFailed = "execution_failed"
)

// Config controls selection and submission.
type Config struct {
	Selection domain.SelectionPolicy
	// Decimals is the base-unit exponent applied to quote amounts.
	Decimals uint8
	DryRun   bool
	LockTTL  time.Duration
	DedupTTL time.Duration
}

// Executor picks one opportunity per maturity and submits its legs.
type Executor struct {
	orders   OrderSubmitter
	gate     Gate
	store    domain.ExecutionStore
	locks    domain.LockManager
	recorder Recorder
	notifier Notifier
	dedup    *Dedup
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor creates an Executor. orders may be nil only in dry-run mode.
func NewExecutor(orders OrderSubmitter, cfg Config, logger *slog.Logger) *Executor {
	if cfg.Selection == "" {
		cfg.Selection = domain.SelectFirst
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Executor{
		orders: orders,
		dedup:  NewDedup(cfg.DedupTTL),
		cfg:    cfg,
		logger: logger.With(slog.String("component", "executor")),
		now:    time.Now,
	}
}

// SetGate installs the pre-trade gate.
func (e *Executor) SetGate(g Gate) { e.gate = g }

// SetStore enables execution persistence.
func (e *Executor) SetStore(s domain.ExecutionStore) { e.store = s }

// SetLocks enables per-maturity distributed locking.
func (e *Executor) SetLocks(l domain.LockManager) { e.locks = l }

// SetRecorder installs an observer for finished executions.
func (e *Executor) SetRecorder(r Recorder) { e.recorder = r }

// SetNotifier installs operator alerts.
func (e *Executor) SetNotifier(n Notifier) { e.notifier = n }

// Execute walks the set in ascending maturity order and attempts the selected
// opportunity of each maturity. Skipped maturities produce no execution.
// Only context cancellation stops the walk early.
func (e *Executor) Execute(ctx context.Context, runID string, set domain.OpportunitySet) ([]domain.Execution, error) {
	var done []domain.Execution
	for _, maturity := range set.Maturities() {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		opp, ok := set.Select(maturity, e.cfg.Selection)
		if !ok {
			continue
		}
		exec, err := e.executeOne(ctx, runID, opp)
		if err != nil {
			e.logger.InfoContext(ctx, "opportunity skipped",
				slog.Int64("maturity", maturity),
				slog.String("key", opp.Key()),
				slog.String("reason", err.Error()),
			)
			continue
		}
		done = append(done, exec)
	}
	return done, nil
}

// executeOne returns an error only when the opportunity was skipped before
// an execution record was created.
func (e *Executor) executeOne(ctx context.Context, runID string, opp domain.Opportunity) (domain.Execution, error) {
	key := opp.Key()
	if e.gate != nil && !e.gate.Evaluate(ctx, opp) {
		return domain.Execution{}, domain.ErrNoOpportunity
	}
	if e.dedup.IsDuplicate(key) {
		return domain.Execution{}, domain.ErrDuplicate
	}

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "exec:"+strconv.FormatInt(opp.Maturity(), 10), e.cfg.LockTTL)
		if err != nil {
			e.dedup.Forget(key)
			return domain.Execution{}, err
		}
		defer unlock()
	}

	exec := domain.Execution{
		ID:             uuid.NewString(),
		RunID:          runID,
		OpportunityKey: key,
		Maturity:       opp.Maturity(),
		BorrowToken:    opp.Borrow.Token.Name,
		LendToken:      opp.Lend.Token.Name,
		BorrowPrice:    opp.Borrow.Price,
		LendPrice:      opp.Lend.Price,
		Amount:         "0",
		ExpectedProfit: opp.Profit,
		Status:         domain.ExecPending,
		StartedAt:      e.now().UTC(),
	}
	log := e.logger.With(
		slog.String("execution_id", exec.ID),
		slog.String("key", key),
		slog.Int64("maturity", exec.Maturity),
	)

	borrow, lend, err := BuildLegs(opp, e.cfg.Decimals)
	if err == nil {
		exec.Amount = borrow.Amount.Dec()
	}
	if e.store != nil {
		if cerr := e.store.Create(ctx, exec); cerr != nil {
			log.WarnContext(ctx, "execution record failed", slog.String("error", cerr.Error()))
		}
	}

	switch {
	case err != nil:
		e.finish(ctx, log, &exec, domain.ExecFailed, err.Error())
	case e.cfg.DryRun:
		log.InfoContext(ctx, "dry run, orders not submitted",
			slog.String("borrow", fmt.Sprintf("%s %s @%d", borrow.Token.Name, borrow.Amount.Dec(), borrow.UnitPrice)),
			slog.String("lend", fmt.Sprintf("%s %s @%d", lend.Token.Name, lend.Amount.Dec(), lend.UnitPrice)),
		)
		e.finish(ctx, log, &exec, domain.ExecDryRun, "")
	default:
		e.submit(ctx, log, &exec, borrow, lend)
	}
	return exec, nil
}

// submit places the borrow leg, then the lend leg. A failed borrow leg means
// the lend leg is never sent.
func (e *Executor) submit(ctx context.Context, log *slog.Logger, exec *domain.Execution, borrow, lend domain.OrderRequest) {
	if e.orders == nil {
		e.finish(ctx, log, exec, domain.ExecFailed, "no order submitter configured")
		return
	}

	res, err := e.orders.CreateOrder(ctx, borrow)
	if err != nil {
		e.finish(ctx, log, exec, domain.ExecFailed, "borrow: "+err.Error())
		return
	}
	exec.BorrowTxHash = res.TxHash
	log.InfoContext(ctx, "borrow leg submitted", slog.String("tx", res.TxHash))

	res, err = e.orders.CreateOrder(ctx, lend)
	if err != nil {
		e.finish(ctx, log, exec, domain.ExecPartial, "lend: "+err.Error())
		return
	}
	exec.LendTxHash = res.TxHash
	log.InfoContext(ctx, "lend leg submitted", slog.String("tx", res.TxHash))
	e.finish(ctx, log, exec, domain.ExecSubmitted, "")
}

func (e *Executor) finish(ctx context.Context, log *slog.Logger, exec *domain.Execution, status domain.ExecutionStatus, errMsg string) {
	exec.Status = status
	exec.Error = errMsg
	completed := e.now().UTC()
	exec.CompletedAt = &completed

	if status == domain.ExecFailed || status == domain.ExecPartial {
		log.ErrorContext(ctx, "execution failed",
			slog.String("status", string(status)),
			slog.String("error", errMsg),
		)
	} else {
		log.InfoContext(ctx, "execution finished", slog.String("status", string(status)))
	}

	if e.store != nil {
		if err := e.store.UpdateStatus(ctx, exec.ID, status, exec.BorrowTxHash, exec.LendTxHash, errMsg); err != nil &&
			!errors.Is(err, context.Canceled) {
			log.WarnContext(ctx, "execution status update failed", slog.String("error", err.Error()))
		}
	}
	if e.recorder != nil {
		e.recorder.RecordExecution(ctx, *exec)
	}
	e.notify(ctx, *exec)
}

func (e *Executor) notify(ctx context.Context, exec domain.Execution) {
	if e.notifier == nil {
		return
	}
	event, title := EventOrderSubmitted, "Carry trade submitted"
	switch exec.Status {
	case domain.ExecFailed, domain.ExecPartial:
		event, title = EventExecutionFailed, "Carry trade failed"
	case domain.ExecDryRun:
		title = "Carry trade (dry run)"
	}
	msg := fmt.Sprintf("maturity %d: borrow %s @%d, lend %s @%d, amount %s, expected $%s",
		exec.Maturity, exec.BorrowToken, exec.BorrowPrice, exec.LendToken, exec.LendPrice,
		exec.Amount, domain.RoundUSD(exec.ExpectedProfit))
	if exec.Error != "" {
		msg += "\nerror: " + exec.Error
	}
	if err := e.notifier.Notify(ctx, event, title, msg); err != nil {
		e.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
}

// CleanupDedup drops expired dedup entries.
func (e *Executor) CleanupDedup() { e.dedup.Cleanup() }
