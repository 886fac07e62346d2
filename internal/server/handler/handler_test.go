package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/service"
)

type fixedLatest service.Snapshot

func (f fixedLatest) Latest() service.Snapshot { return service.Snapshot(f) }

type fakeExecStore struct {
	execs []domain.Execution
	limit int
	err   error
}

func (f *fakeExecStore) GetByID(_ context.Context, id string) (domain.Execution, error) {
	for _, e := range f.execs {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.Execution{}, domain.ErrNotFound
}

func (f *fakeExecStore) ListRecent(_ context.Context, limit int) ([]domain.Execution, error) {
	f.limit = limit
	return f.execs, f.err
}

func (f *fakeExecStore) SumExpectedProfit(context.Context, time.Time) (float64, error) {
	return 12.5, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sample() fixedLatest {
	q := func(tok string, side domain.PositionSide, price int) domain.Quote {
		return domain.Quote{Token: domain.Token{Name: tok}, Price: price, Maturity: 1000, Side: side, Amount: uint256.NewInt(7)}
	}
	return fixedLatest{
		RunID:      "run-9",
		DetectedAt: time.Unix(1_700_000_000, 0),
		Set: domain.OpportunitySet{
			1000: {{Borrow: q("ETH", domain.SideBorrow, 9800), Lend: q("USDC", domain.SideLend, 9500), Profit: 3}},
			2000: {},
		},
	}
}

func serve(h http.HandlerFunc, pattern, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestOpportunityList(t *testing.T) {
	rec := serve(NewOpportunityHandler(sample()).List, "GET /api/opportunities", "/api/opportunities")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		RunID      string                 `json:"run_id"`
		Count      int                    `json:"count"`
		Maturities []service.MaturityView `json:"maturities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.RunID != "run-9" || body.Count != 1 || len(body.Maturities) != 2 {
		t.Fatalf("body = %+v", body)
	}
	if got := body.Maturities[0].Opportunities[0]; got.Amount != "7" || got.Key != "1000:ETH@9800/7:USDC@9500/7" {
		t.Fatalf("opportunity = %+v", got)
	}
}

func TestOpportunityGet(t *testing.T) {
	h := NewOpportunityHandler(sample()).Get
	tests := []struct {
		target string
		want   int
	}{
		{"/api/opportunities/1000", http.StatusOK},
		{"/api/opportunities/2000", http.StatusOK},
		{"/api/opportunities/3000", http.StatusNotFound},
		{"/api/opportunities/soon", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := serve(h, "GET /api/opportunities/{maturity}", tt.target); rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.target, rec.Code, tt.want)
		}
	}
}

func TestExecutionList(t *testing.T) {
	store := &fakeExecStore{execs: []domain.Execution{{ID: "a", Status: domain.ExecSubmitted, StartedAt: time.Unix(0, 0)}}}
	rec := serve(NewExecutionHandler(store, discard()).List, "GET /api/executions", "/api/executions?limit=9999")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if store.limit != 500 {
		t.Fatalf("limit = %d, want capped 500", store.limit)
	}

	store.err = errors.New("db down")
	if rec := serve(NewExecutionHandler(store, discard()).List, "GET /api/executions", "/api/executions"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExecutionGet(t *testing.T) {
	store := &fakeExecStore{execs: []domain.Execution{{ID: "a", Status: domain.ExecDryRun}}}
	h := NewExecutionHandler(store, discard()).Get
	if rec := serve(h, "GET /api/executions/{id}", "/api/executions/a"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := serve(h, "GET /api/executions/{id}", "/api/executions/b"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	h := NewStatusHandler(StatusInfo{Mode: "scan", Matcher: "cross_product", StartedAt: time.Now()}, sample(), &fakeExecStore{}, discard())
	rec := serve(h.GetStatus, "GET /api/status", "/api/status")
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["mode"] != "scan" || body["last_run_id"] != "run-9" || body["expected_profit_24h"] != 12.5 {
		t.Fatalf("body = %v", body)
	}
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(map[string]HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("refused") },
	})
	rec := serve(h.HealthCheck, "GET /api/health", "/api/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := serve(NewHealthHandler(nil).HealthCheck, "GET /api/health", "/api/health"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

type fakeAudit struct {
	opts domain.ListOpts
}

func (f *fakeAudit) Log(context.Context, string, map[string]any) error { return nil }

func (f *fakeAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	f.opts = opts
	return []domain.AuditEntry{{ID: 1, Event: "execution_submitted", CreatedAt: time.Unix(0, 0)}}, nil
}

func TestAuditList(t *testing.T) {
	store := &fakeAudit{}
	h := NewAuditHandler(store, discard()).List

	rec := serve(h, "GET /api/audit", "/api/audit?limit=5&offset=10&since=2026-01-02T00:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if store.opts.Limit != 5 || store.opts.Offset != 10 || store.opts.Since == nil {
		t.Fatalf("opts = %+v", store.opts)
	}
	var body struct {
		Entries []auditJSON `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Event != "execution_submitted" {
		t.Fatalf("entries = %+v", body.Entries)
	}

	for _, target := range []string{"/api/audit?offset=-1", "/api/audit?since=yesterday"} {
		if rec := serve(h, "GET /api/audit", target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

type fakeStream struct {
	stream, after string
	count         int
	msgs          []domain.StreamMessage
}

func (f *fakeStream) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	f.stream, f.after, f.count = stream, lastID, count
	return f.msgs, nil
}

func TestEventList(t *testing.T) {
	reader := &fakeStream{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"event":"opportunities_detected"}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
		{ID: "3-0", Payload: []byte(`{"event":"opportunities_detected","count":2}`)},
	}}
	h := NewEventHandler(reader, "events", discard()).List

	rec := serve(h, "GET /api/events", "/api/events?limit=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if reader.stream != "events" || reader.after != "0" || reader.count != 3 {
		t.Fatalf("read %q after %q count %d", reader.stream, reader.after, reader.count)
	}
	var body struct {
		Events []eventJSON `json:"events"`
		Next   string      `json:"next"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Events) != 2 || body.Next != "3-0" {
		t.Fatalf("events = %d, next = %q", len(body.Events), body.Next)
	}

	serve(h, "GET /api/events", "/api/events?after=3-0")
	if reader.after != "3-0" {
		t.Fatalf("after = %q", reader.after)
	}
}
