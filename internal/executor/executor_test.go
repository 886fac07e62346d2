package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/termarb/internal/domain"
)

type fakeOrders struct {
	reqs    []domain.OrderRequest
	failOn  map[domain.PositionSide]error
	counter int
}

func (f *fakeOrders) CreateOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	f.reqs = append(f.reqs, req)
	if err := f.failOn[req.Side]; err != nil {
		return domain.OrderResult{}, err
	}
	f.counter++
	return domain.OrderResult{TxHash: "0x" + strings.Repeat("a", f.counter), Submitted: true}, nil
}

type fakeStore struct {
	created []domain.Execution
	updates map[string]domain.ExecutionStatus
}

func newFakeStore() *fakeStore { return &fakeStore{updates: map[string]domain.ExecutionStatus{}} }

func (s *fakeStore) Create(_ context.Context, e domain.Execution) error {
	s.created = append(s.created, e)
	return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, st domain.ExecutionStatus, _, _, _ string) error {
	s.updates[id] = st
	return nil
}

func (s *fakeStore) GetByID(context.Context, string) (domain.Execution, error) {
	return domain.Execution{}, domain.ErrNotFound
}

func (s *fakeStore) ListRecent(context.Context, int) ([]domain.Execution, error) { return nil, nil }

func (s *fakeStore) SumExpectedProfit(context.Context, time.Time) (float64, error) { return 0, nil }

type fakeLocks struct {
	held     map[string]bool
	acquired []string
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.acquired = append(l.acquired, key)
	return func() {}, nil
}

type gateFunc func(domain.Opportunity) bool

func (g gateFunc) Evaluate(_ context.Context, o domain.Opportunity) bool { return g(o) }

type fakeNotifier struct{ events []string }

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

type fakeRecorder struct{ execs []domain.Execution }

func (r *fakeRecorder) RecordExecution(_ context.Context, e domain.Execution) {
	r.execs = append(r.execs, e)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func opp(maturity int64, borrow, lend string, amount uint64, profit float64) domain.Opportunity {
	return domain.Opportunity{
		Borrow: domain.Quote{Token: domain.Token{Name: borrow}, Price: 9800, Maturity: maturity, Side: domain.SideBorrow, Amount: uint256.NewInt(amount)},
		Lend:   domain.Quote{Token: domain.Token{Name: lend}, Price: 9500, Maturity: maturity, Side: domain.SideLend, Amount: uint256.NewInt(amount)},
		Profit: profit,
	}
}

func TestExecuteSubmitsBorrowThenLend(t *testing.T) {
	orders := &fakeOrders{}
	store := newFakeStore()
	locks := &fakeLocks{}
	rec := &fakeRecorder{}
	notif := &fakeNotifier{}
	ex := NewExecutor(orders, Config{Decimals: 6}, discard())
	ex.SetStore(store)
	ex.SetLocks(locks)
	ex.SetRecorder(rec)
	ex.SetNotifier(notif)

	set := domain.OpportunitySet{
		2000: {opp(2000, "ETH", "USDC", 5, 10)},
		1000: {opp(1000, "WBTC", "USDC", 2, 1), opp(1000, "ETH", "USDC", 3, 9)},
	}
	execs, err := ex.Execute(context.Background(), "run-1", set)
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 2 {
		t.Fatalf("executions = %d, want 2", len(execs))
	}
	if execs[0].Maturity != 1000 || execs[0].BorrowToken != "WBTC" {
		t.Fatalf("first execution = %+v, want maturity 1000 first-discovered", execs[0])
	}
	if execs[0].Status != domain.ExecSubmitted || execs[0].BorrowTxHash == "" || execs[0].LendTxHash == "" {
		t.Fatalf("execution = %+v", execs[0])
	}
	if execs[0].Amount != "2000000" {
		t.Fatalf("amount = %s, want 2000000", execs[0].Amount)
	}

	if len(orders.reqs) != 4 {
		t.Fatalf("orders = %d, want 4", len(orders.reqs))
	}
	if orders.reqs[0].Side != domain.SideBorrow || orders.reqs[1].Side != domain.SideLend {
		t.Fatalf("leg order = %v, %v", orders.reqs[0].Side, orders.reqs[1].Side)
	}
	if orders.reqs[0].Side.Flag() != 1 || orders.reqs[1].Side.Flag() != 0 {
		t.Fatal("wrong side flags")
	}
	if orders.reqs[1].Token.Name != "USDC" || orders.reqs[1].UnitPrice != 9500 {
		t.Fatalf("lend leg = %+v", orders.reqs[1])
	}

	if len(store.created) != 2 || store.updates[execs[1].ID] != domain.ExecSubmitted {
		t.Fatalf("store = %+v / %v", store.created, store.updates)
	}
	if store.created[0].Status != domain.ExecPending {
		t.Fatalf("created status = %s", store.created[0].Status)
	}
	if len(locks.acquired) != 2 || locks.acquired[0] != "exec:1000" {
		t.Fatalf("locks = %v", locks.acquired)
	}
	if len(rec.execs) != 2 || len(notif.events) != 2 || notif.events[0] != EventOrderSubmitted {
		t.Fatalf("recorded %d, notified %v", len(rec.execs), notif.events)
	}
}

func TestExecuteBestSelection(t *testing.T) {
	orders := &fakeOrders{}
	ex := NewExecutor(orders, Config{Selection: domain.SelectBest}, discard())
	set := domain.OpportunitySet{
		1000: {opp(1000, "WBTC", "USDC", 2, 1), opp(1000, "ETH", "USDC", 3, 9)},
	}
	execs, _ := ex.Execute(context.Background(), "r", set)
	if len(execs) != 1 || execs[0].BorrowToken != "ETH" {
		t.Fatalf("executions = %+v", execs)
	}
}

func TestExecuteBorrowFailureSkipsLend(t *testing.T) {
	orders := &fakeOrders{failOn: map[domain.PositionSide]error{domain.SideBorrow: errors.New("reverted")}}
	notif := &fakeNotifier{}
	ex := NewExecutor(orders, Config{}, discard())
	ex.SetNotifier(notif)

	execs, _ := ex.Execute(context.Background(), "r", domain.OpportunitySet{1000: {opp(1000, "ETH", "USDC", 1, 5)}})
	if len(orders.reqs) != 1 {
		t.Fatalf("orders sent = %d, want 1", len(orders.reqs))
	}
	if execs[0].Status != domain.ExecFailed || !strings.Contains(execs[0].Error, "borrow") {
		t.Fatalf("execution = %+v", execs[0])
	}
	if notif.events[0] != EventExecutionFailed {
		t.Fatalf("events = %v", notif.events)
	}
}

func TestExecuteLendFailureIsPartial(t *testing.T) {
	orders := &fakeOrders{failOn: map[domain.PositionSide]error{domain.SideLend: errors.New("reverted")}}
	ex := NewExecutor(orders, Config{}, discard())

	execs, _ := ex.Execute(context.Background(), "r", domain.OpportunitySet{1000: {opp(1000, "ETH", "USDC", 1, 5)}})
	if execs[0].Status != domain.ExecPartial || execs[0].BorrowTxHash == "" || execs[0].LendTxHash != "" {
		t.Fatalf("execution = %+v", execs[0])
	}
}

func TestExecuteDryRun(t *testing.T) {
	orders := &fakeOrders{}
	ex := NewExecutor(orders, Config{DryRun: true, Decimals: 18}, discard())
	execs, _ := ex.Execute(context.Background(), "r", domain.OpportunitySet{1000: {opp(1000, "ETH", "USDC", 1, 5)}})
	if len(orders.reqs) != 0 {
		t.Fatal("dry run submitted orders")
	}
	if execs[0].Status != domain.ExecDryRun || execs[0].Amount != "1000000000000000000" {
		t.Fatalf("execution = %+v", execs[0])
	}
}

func TestExecuteOverflowSubmitsNothing(t *testing.T) {
	orders := &fakeOrders{}
	ex := NewExecutor(orders, Config{Decimals: 60}, discard())
	o := opp(1000, "ETH", "USDC", 1, 5)
	o.Borrow.Amount = new(uint256.Int).Lsh(uint256.NewInt(1), 250)

	execs, _ := ex.Execute(context.Background(), "r", domain.OpportunitySet{1000: {o}})
	if len(orders.reqs) != 0 {
		t.Fatal("orders submitted despite overflow")
	}
	if execs[0].Status != domain.ExecFailed || !strings.Contains(execs[0].Error, domain.ErrAmountOverflow.Error()) {
		t.Fatalf("execution = %+v", execs[0])
	}
}

func TestExecuteGateLockAndDedup(t *testing.T) {
	orders := &fakeOrders{}
	ex := NewExecutor(orders, Config{DedupTTL: time.Minute}, discard())
	ex.SetGate(gateFunc(func(o domain.Opportunity) bool { return o.Profit >= 5 }))
	ex.SetLocks(&fakeLocks{held: map[string]bool{"exec:3000": true}})

	set := domain.OpportunitySet{
		1000: {opp(1000, "ETH", "USDC", 1, 4)},
		2000: {opp(2000, "ETH", "USDC", 1, 6)},
		3000: {opp(3000, "ETH", "USDC", 1, 6)},
	}
	execs, _ := ex.Execute(context.Background(), "r", set)
	if len(execs) != 1 || execs[0].Maturity != 2000 {
		t.Fatalf("executions = %+v", execs)
	}

	execs, _ = ex.Execute(context.Background(), "r2", set)
	if len(execs) != 0 {
		t.Fatalf("duplicate executed: %+v", execs)
	}
}

func TestExecuteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := NewExecutor(&fakeOrders{}, Config{}, discard())
	_, err := ex.Execute(ctx, "r", domain.OpportunitySet{1000: {opp(1000, "ETH", "USDC", 1, 5)}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestScaleAmount(t *testing.T) {
	got, err := ScaleAmount(uint256.NewInt(100), 18)
	if err != nil || got.Dec() != "100000000000000000000" {
		t.Fatalf("ScaleAmount = %v, %v", got, err)
	}
	if _, err := ScaleAmount(uint256.NewInt(1), 78); !errors.Is(err, domain.ErrAmountOverflow) {
		t.Fatalf("78 decimals: %v", err)
	}
	if _, err := ScaleAmount(uint256.NewInt(1), 77); err != nil {
		t.Fatalf("77 decimals: %v", err)
	}
	if _, err := ScaleAmount(uint256.NewInt(12), 77); !errors.Is(err, domain.ErrAmountOverflow) {
		t.Fatalf("12e77: %v", err)
	}
}

func TestDedup(t *testing.T) {
	now := time.Unix(0, 0)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	if d.IsDuplicate("k") {
		t.Fatal("first sighting reported duplicate")
	}
	if !d.IsDuplicate("k") {
		t.Fatal("second sighting not duplicate")
	}
	now = now.Add(time.Minute)
	d.Cleanup()
	if d.IsDuplicate("k") {
		t.Fatal("expired key reported duplicate")
	}
	d.Forget("k")
	if d.IsDuplicate("k") {
		t.Fatal("forgotten key reported duplicate")
	}
	if NewDedup(0).IsDuplicate("x") || NewDedup(0).IsDuplicate("x") {
		t.Fatal("disabled dedup reported duplicate")
	}
}
