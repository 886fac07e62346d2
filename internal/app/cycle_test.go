package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/termarb/internal/arbitrage"
	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/notify"
	"github.com/alanyoungcy/termarb/internal/snapshot"
)

const year = 31_536_000

var testNow = time.Unix(1_700_000_000, 0).UTC()

type fakeSource struct {
	quotes []domain.Quote
	err    error
}

func (f *fakeSource) Collect(context.Context) ([]domain.Quote, error) { return f.quotes, f.err }

type fakeEstimator struct {
	fees domain.Fees
	err  error
}

func (f *fakeEstimator) Fees(_ context.Context, base domain.Fees, _ []domain.Quote) (domain.Fees, error) {
	if f.err != nil {
		return base, f.err
	}
	return f.fees, nil
}

type fakeArchive struct {
	saved []snapshot.Snapshot
	err   error
}

func (f *fakeArchive) Save(_ context.Context, s snapshot.Snapshot) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, s)
	return snapshot.Path(s), nil
}

type fakePublisher struct {
	calls int
	runID string
	at    time.Time
	set   domain.OpportunitySet
}

func (f *fakePublisher) Publish(_ context.Context, runID string, at time.Time, set domain.OpportunitySet) error {
	f.calls++
	f.runID, f.at, f.set = runID, at, set
	return nil
}

type fakeExecutor struct {
	runID string
	set   domain.OpportunitySet
}

func (f *fakeExecutor) Execute(_ context.Context, runID string, set domain.OpportunitySet) ([]domain.Execution, error) {
	f.runID, f.set = runID, set
	var out []domain.Execution
	for _, m := range set.Maturities() {
		out = append(out, domain.Execution{RunID: runID, Maturity: m, Status: domain.ExecDryRun})
	}
	return out, nil
}

type fakeNotifier struct {
	events   []string
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, message string) error {
	f.events = append(f.events, event)
	f.messages = append(f.messages, message)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func quote(token string, price int, maturity int64, side domain.PositionSide, amount uint64) domain.Quote {
	return domain.Quote{
		Token:    domain.Token{Name: token},
		Price:    price,
		Maturity: maturity,
		Side:     side,
		Amount:   uint256.NewInt(amount),
	}
}

// carryBook has one opportunity worth about $5.85 before fees.
func carryBook() []domain.Quote {
	m := testNow.Unix() + year
	return []domain.Quote{
		quote("ETH", 9500, m, domain.SideBorrow, 100),
		quote("USDC", 9000, m, domain.SideLend, 100),
	}
}

func newCycle(src QuoteSource, pub Publisher) *Cycle {
	return &Cycle{
		Source:    src,
		Matcher:   arbitrage.NewCrossProduct(),
		Prices:    domain.PriceTable{"ETH": 1, "USDC": 1},
		Publisher: pub,
		Now:       func() time.Time { return testNow },
		Logger:    discard(),
	}
}

func TestCycleRunsEveryStage(t *testing.T) {
	pub := &fakePublisher{}
	arch := &fakeArchive{}
	exec := &fakeExecutor{}
	notes := &fakeNotifier{}

	c := newCycle(&fakeSource{quotes: carryBook()}, pub)
	c.Archive = arch
	c.Executor = exec
	c.Notifier = notes

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" || res.Quotes != 2 || res.Set.Count() != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !res.TakenAt.Equal(testNow) {
		t.Fatalf("taken at %v, want %v", res.TakenAt, testNow)
	}
	if pub.calls != 1 || pub.runID != res.RunID || !pub.at.Equal(testNow) {
		t.Fatalf("publish = %+v", pub)
	}
	if exec.runID != res.RunID || exec.set.Count() != 1 || len(res.Executions) != 1 {
		t.Fatalf("executor saw %q, %d opportunities", exec.runID, exec.set.Count())
	}
	if len(arch.saved) != 1 || len(arch.saved[0].Quotes) != 2 || res.SnapshotPath == "" {
		t.Fatalf("archive = %+v, path %q", arch.saved, res.SnapshotPath)
	}
	if !arch.saved[0].TakenAt.Equal(testNow) {
		t.Fatalf("snapshot taken at %v", arch.saved[0].TakenAt)
	}
	if len(notes.events) != 1 || notes.events[0] != notify.EventOpportunityDetected {
		t.Fatalf("notifications = %v", notes.events)
	}
	if !strings.Contains(notes.messages[0], "1 opportunities across 1 maturities, best $5.85") {
		t.Fatalf("message = %q", notes.messages[0])
	}
}

func TestCycleCollectFailurePublishesNothing(t *testing.T) {
	pub := &fakePublisher{}
	exec := &fakeExecutor{}
	c := newCycle(&fakeSource{err: errors.New("rpc down")}, pub)
	c.Executor = exec

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("expected collect error")
	}
	if pub.calls != 0 || exec.set != nil {
		t.Fatal("nothing should be published or executed after a failed collect")
	}
}

func TestCycleFeeEstimation(t *testing.T) {
	tests := []struct {
		name string
		est  *fakeEstimator
		want int
	}{
		{"estimate lowers fees", &fakeEstimator{fees: domain.Fees{BorrowGasUSD: 1}}, 1},
		{"estimate failure keeps static fees", &fakeEstimator{err: errors.New("revert")}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			c := newCycle(&fakeSource{quotes: carryBook()}, pub)
			c.Fees = domain.Fees{SwapUSD: 10}
			c.Estimator = tt.est

			res, err := c.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.Set.Count() != tt.want {
				t.Fatalf("opportunities = %d, want %d", res.Set.Count(), tt.want)
			}
		})
	}
}

func TestCycleArchiveFailureContinues(t *testing.T) {
	pub := &fakePublisher{}
	c := newCycle(&fakeSource{quotes: carryBook()}, pub)
	c.Archive = &fakeArchive{err: errors.New("bucket missing")}

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pub.calls != 1 || res.SnapshotPath != "" {
		t.Fatalf("publish calls %d, path %q", pub.calls, res.SnapshotPath)
	}
}

func TestCycleNoOpportunitiesNoAlert(t *testing.T) {
	notes := &fakeNotifier{}
	c := newCycle(&fakeSource{}, &fakePublisher{})
	c.Notifier = notes

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Set.Count() != 0 || len(notes.events) != 0 {
		t.Fatalf("set %v, events %v", res.Set, notes.events)
	}
}

func TestCycleClockFault(t *testing.T) {
	pub := &fakePublisher{}
	c := newCycle(&fakeSource{quotes: carryBook()}, pub)
	c.Now = func() time.Time { return time.Time{} }

	_, err := c.Run(context.Background())
	if !errors.Is(err, domain.ErrClockUnavailable) {
		t.Fatalf("err = %v, want ErrClockUnavailable", err)
	}
	if pub.calls != 0 {
		t.Fatal("clock fault must not publish")
	}
}

func TestWriteReport(t *testing.T) {
	quotes := carryBook()
	snap := snapshot.Snapshot{ID: "snap-1", TakenAt: testNow, Quotes: quotes}
	set, err := Detect(quotes, testNow, arbitrage.NewSortedMerge(), domain.PriceTable{"ETH": 1, "USDC": 1}, domain.Fees{}, discard())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, snap, set); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"snapshot snap-1", "2 quotes, 1 opportunities", "ETH", "USDC", "5.26", "11.11", "5.85"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
