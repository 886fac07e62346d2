package domain

import (
	"time"

	"github.com/holiman/uint256"
)

// OrderRequest is one leg submitted to the lending market controller. Amount
// is already scaled to the protocol's base units.
type OrderRequest struct {
	Token     Token
	Maturity  int64
	Side      PositionSide
	Amount    *uint256.Int
	UnitPrice int
}

// OrderResult is what the protocol client reports after submitting a leg.
type OrderResult struct {
	TxHash      string
	Submitted   bool
	Message     string
	SubmittedAt time.Time
}

// ExecutionStatus is the lifecycle state of a carry trade execution.
type ExecutionStatus string

const (
	ExecPending   ExecutionStatus = "pending"
	ExecDryRun    ExecutionStatus = "dry_run"
	ExecPartial   ExecutionStatus = "partial"
	ExecSubmitted ExecutionStatus = "submitted"
	ExecFailed    ExecutionStatus = "failed"
)

// Execution records an attempt to execute one opportunity.
type Execution struct {
	ID             string
	RunID          string
	OpportunityKey string
	Maturity       int64
	BorrowToken    string
	LendToken      string
	BorrowPrice    int
	LendPrice      int
	Amount         string // base units, decimal string
	ExpectedProfit float64
	BorrowTxHash   string
	LendTxHash     string
	Status         ExecutionStatus
	Error          string
	StartedAt      time.Time
	CompletedAt    *time.Time
}
