package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/termarb/internal/domain"
)

const executionColumns = `id, run_id, opportunity_key, maturity, borrow_token, lend_token,
	borrow_price, lend_price, amount::text, expected_profit, borrow_tx_hash, lend_tx_hash,
	status, error, started_at, completed_at`

// ExecutionStore implements domain.ExecutionStore.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore on pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts a new execution attempt.
func (s *ExecutionStore) Create(ctx context.Context, e domain.Execution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (id, run_id, opportunity_key, maturity, borrow_token, lend_token,
			borrow_price, lend_price, amount, expected_profit, borrow_tx_hash, lend_tx_hash,
			status, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13, $14, $15, $16)`,
		e.ID, e.RunID, e.OpportunityKey, e.Maturity, e.BorrowToken, e.LendToken,
		e.BorrowPrice, e.LendPrice, e.Amount, e.ExpectedProfit, e.BorrowTxHash, e.LendTxHash,
		string(e.Status), e.Error, e.StartedAt, e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", e.ID, err)
	}
	return nil
}

// UpdateStatus records the outcome of an execution. Terminal statuses stamp
// completed_at.
func (s *ExecutionStore) UpdateStatus(ctx context.Context, id string, status domain.ExecutionStatus, borrowTx, lendTx, errMsg string) error {
	var completedAt *time.Time
	if status != domain.ExecPending {
		now := time.Now().UTC()
		completedAt = &now
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, borrow_tx_hash = $3, lend_tx_hash = $4, error = $5, completed_at = $6
		WHERE id = $1`,
		id, string(status), borrowTx, lendTx, errMsg, completedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update execution %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update execution %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns one execution.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Execution{}, domain.ErrNotFound
		}
		return domain.Execution{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	return e, nil
}

// ListRecent returns the latest executions, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var list []domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// SumExpectedProfit totals the expected profit of submitted executions since
// the given time.
func (s *ExecutionStore) SumExpectedProfit(ctx context.Context, since time.Time) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(expected_profit), 0) FROM executions
		WHERE status = $1 AND started_at >= $2`,
		string(domain.ExecSubmitted), since,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum expected profit: %w", err)
	}
	return sum, nil
}

func scanExecution(row pgx.Row) (domain.Execution, error) {
	var e domain.Execution
	var status string
	err := row.Scan(&e.ID, &e.RunID, &e.OpportunityKey, &e.Maturity, &e.BorrowToken, &e.LendToken,
		&e.BorrowPrice, &e.LendPrice, &e.Amount, &e.ExpectedProfit, &e.BorrowTxHash, &e.LendTxHash,
		&status, &e.Error, &e.StartedAt, &e.CompletedAt)
	if err != nil {
		return domain.Execution{}, err
	}
	e.Status = domain.ExecutionStatus(status)
	return e, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
