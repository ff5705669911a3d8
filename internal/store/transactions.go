package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"optiinfra/pkginstall/internal/model"
)

// CountInProgress returns the number of transactions currently in_progress,
// the single-writer interlock the Manager checks at Begin time.
func (s *Store) CountInProgress(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE status = ?`,
		string(model.TransactionInProgress),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count in_progress transactions: %w", err)
	}
	return n, nil
}

// InsertTransaction creates a new transaction row in pending status and
// returns its assigned id.
func (s *Store) InsertTransaction(ctx context.Context, packageName, fingerprint string, metadata []byte) (id int64, err error) {
	start := time.Now()
	defer func() { s.recordOp("insert_transaction", start, err) }()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (package_name, metadata_hash, metadata, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		packageName, fingerprint, metadata, string(model.TransactionPending), time.Now().UTC(),
	)
	if err != nil {
		err = fmt.Errorf("insert transaction: %w", err)
		return 0, err
	}
	id, err = res.LastInsertId()
	return id, err
}

// UpdateTransactionStatus writes a new status for a transaction. When the
// new status is terminal, completed_at is stamped.
func (s *Store) UpdateTransactionStatus(ctx context.Context, id int64, status model.TransactionStatus) (err error) {
	start := time.Now()
	defer func() { s.recordOp("update_transaction_status", start, err) }()

	if status.Terminal() {
		_, err = s.db.ExecContext(ctx,
			`UPDATE transactions SET status = ?, completed_at = ? WHERE id = ?`,
			string(status), time.Now().UTC(), id,
		)
		if err != nil {
			err = fmt.Errorf("update transaction %d status: %w", id, err)
		}
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ? WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		err = fmt.Errorf("update transaction %d status: %w", id, err)
	}
	return err
}

// GetTransaction loads a single transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id int64) (model.Transaction, error) {
	var t model.Transaction
	var completedAt sql.NullTime
	var status string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, package_name, metadata_hash, metadata, status, created_at, completed_at
		 FROM transactions WHERE id = ?`, id,
	).Scan(&t.ID, &t.PackageName, &t.Fingerprint, &t.Metadata, &status, &t.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return model.Transaction{}, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}

	t.Status = model.TransactionStatus(status)
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

// ListTransactions returns the most recent transactions, newest first,
// capped at limit (0 means no cap).
func (s *Store) ListTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	query := `SELECT id, package_name, metadata_hash, metadata, status, created_at, completed_at
	          FROM transactions ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var completedAt sql.NullTime
		var status string
		if err := rows.Scan(&t.ID, &t.PackageName, &t.Fingerprint, &t.Metadata, &status, &t.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		t.Status = model.TransactionStatus(status)
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// NonTerminalTransactions returns every transaction whose status is not
// committed, rolled_back, or failed — the set crash recovery must inspect.
func (s *Store) NonTerminalTransactions(ctx context.Context) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, package_name, metadata_hash, metadata, status, created_at, completed_at
		 FROM transactions WHERE status IN (?, ?, ?)`,
		string(model.TransactionPending), string(model.TransactionInProgress), string(model.TransactionRollingBack),
	)
	if err != nil {
		return nil, fmt.Errorf("query non-terminal transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var completedAt sql.NullTime
		var status string
		if err := rows.Scan(&t.ID, &t.PackageName, &t.Fingerprint, &t.Metadata, &status, &t.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		t.Status = model.TransactionStatus(status)
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTransactionTree atomically deletes a transaction and its steps and
// snapshots, as required for terminal-state retention (invariant 5).
func (s *Store) DeleteTransactionTree(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { s.recordOp("delete_transaction_tree", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("begin gc tx: %w", err)
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM snapshots WHERE transaction_id = ?`, id); err != nil {
		err = fmt.Errorf("delete snapshots for %d: %w", id, err)
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM steps WHERE transaction_id = ?`, id); err != nil {
		err = fmt.Errorf("delete steps for %d: %w", id, err)
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		err = fmt.Errorf("delete transaction %d: %w", id, err)
		return err
	}
	err = tx.Commit()
	return err
}

// GCOlderThan deletes every terminal transaction (and its steps/snapshots)
// whose completed_at is older than the cutoff, returning the count removed.
func (s *Store) GCOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM transactions WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(model.TransactionCommitted), string(model.TransactionRolledBack), string(model.TransactionFailed), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("query gc candidates: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan gc candidate: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := s.DeleteTransactionTree(ctx, id); err != nil {
			return 0, fmt.Errorf("gc transaction %d: %w", id, err)
		}
	}
	return len(ids), nil
}

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }
