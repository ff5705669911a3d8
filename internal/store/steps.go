package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"optiinfra/pkginstall/internal/model"
)

// InsertStep persists a new step row in pending status. Order indices must
// be assigned densely by the caller (the Manager), per invariant 2.
func (s *Store) InsertStep(ctx context.Context, step model.Step) (err error) {
	start := time.Now()
	defer func() { s.recordOp("insert_step", start, err) }()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO steps (transaction_id, "order", type, data_blob, status, rollback, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		step.TransactionID, step.Order, string(step.Type), step.Data, string(step.Status), string(step.Rollback), step.ExecutedAt,
	)
	if err != nil {
		err = fmt.Errorf("insert step (%d, %d): %w", step.TransactionID, step.Order, err)
	}
	return err
}

// UpdateStepStatus writes a new status for a step, stamping executed_at.
func (s *Store) UpdateStepStatus(ctx context.Context, txnID int64, order int, status model.StepStatus) (err error) {
	start := time.Now()
	defer func() { s.recordOp("update_step_status", start, err) }()

	_, err = s.db.ExecContext(ctx,
		`UPDATE steps SET status = ?, executed_at = ? WHERE transaction_id = ? AND "order" = ?`,
		string(status), time.Now().UTC(), txnID, order,
	)
	if err != nil {
		err = fmt.Errorf("update step (%d, %d) status: %w", txnID, order, err)
	}
	return err
}

// GetSteps returns all steps for a transaction, ordered by index ascending.
func (s *Store) GetSteps(ctx context.Context, txnID int64) ([]model.Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT transaction_id, "order", type, data_blob, status, rollback, executed_at
		 FROM steps WHERE transaction_id = ? ORDER BY "order" ASC`, txnID,
	)
	if err != nil {
		return nil, fmt.Errorf("get steps for %d: %w", txnID, err)
	}
	defer rows.Close()

	var out []model.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// StepsInStatus returns the steps of a transaction whose status is one of
// the given statuses, ordered by index ascending.
func (s *Store) StepsInStatus(ctx context.Context, txnID int64, statuses ...model.StepStatus) ([]model.Step, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT transaction_id, "order", type, data_blob, status, rollback, executed_at
	          FROM steps WHERE transaction_id = ? AND status IN (`
	args := []any{txnID}
	for i, st := range statuses {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(st))
	}
	query += `) ORDER BY "order" ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get steps in status for %d: %w", txnID, err)
	}
	defer rows.Close()

	var out []model.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStep(rows *sql.Rows) (model.Step, error) {
	var st model.Step
	var typ, status, rb string
	var executedAt sql.NullTime

	if err := rows.Scan(&st.TransactionID, &st.Order, &typ, &st.Data, &status, &rb, &executedAt); err != nil {
		return model.Step{}, fmt.Errorf("scan step row: %w", err)
	}
	st.Type = model.StepType(typ)
	st.Status = model.StepStatus(status)
	st.Rollback = model.RollbackStrategy(rb)
	if executedAt.Valid {
		st.ExecutedAt = &executedAt.Time
	}
	return st, nil
}
