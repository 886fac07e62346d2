package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/termarb/internal/domain"
)

// ExecutionReader is the read side of the execution store.
type ExecutionReader interface {
	GetByID(ctx context.Context, id string) (domain.Execution, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Execution, error)
}

type executionJSON struct {
	ID             string  `json:"id"`
	RunID          string  `json:"run_id"`
	OpportunityKey string  `json:"opportunity_key"`
	Maturity       int64   `json:"maturity"`
	BorrowToken    string  `json:"borrow_token"`
	LendToken      string  `json:"lend_token"`
	BorrowPrice    int     `json:"borrow_price"`
	LendPrice      int     `json:"lend_price"`
	Amount         string  `json:"amount"`
	ExpectedProfit float64 `json:"expected_profit"`
	BorrowTxHash   string  `json:"borrow_tx_hash,omitempty"`
	LendTxHash     string  `json:"lend_tx_hash,omitempty"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	StartedAt      string  `json:"started_at"`
	CompletedAt    string  `json:"completed_at,omitempty"`
}

func toExecutionJSON(e domain.Execution) executionJSON {
	out := executionJSON{
		ID:             e.ID,
		RunID:          e.RunID,
		OpportunityKey: e.OpportunityKey,
		Maturity:       e.Maturity,
		BorrowToken:    e.BorrowToken,
		LendToken:      e.LendToken,
		BorrowPrice:    e.BorrowPrice,
		LendPrice:      e.LendPrice,
		Amount:         e.Amount,
		ExpectedProfit: e.ExpectedProfit,
		BorrowTxHash:   e.BorrowTxHash,
		LendTxHash:     e.LendTxHash,
		Status:         string(e.Status),
		Error:          e.Error,
		StartedAt:      e.StartedAt.UTC().Format(time.RFC3339),
	}
	if e.CompletedAt != nil {
		out.CompletedAt = e.CompletedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// ExecutionHandler serves execution history.
type ExecutionHandler struct {
	store  ExecutionReader
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(store ExecutionReader, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: store, logger: logger}
}

// List returns recent executions, newest first.
// GET /api/executions?limit=50
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	execs, err := h.store.ListRecent(r.Context(), queryLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	out := make([]executionJSON, 0, len(execs))
	for _, e := range execs {
		out = append(out, toExecutionJSON(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": out})
}

// Get returns one execution.
// GET /api/executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get execution failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, toExecutionJSON(e))
}
