package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"optiinfra/pkginstall/internal/model"
)

// InsertSnapshot persists a step's pre-image evidence. Must be called, and
// durably flushed, before the paired step's apply runs (invariant 1).
func (s *Store) InsertSnapshot(ctx context.Context, snap model.Snapshot) (err error) {
	start := time.Now()
	defer func() { s.recordOp("insert_snapshot", start, err) }()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (transaction_id, "order", data_blob, created_at)
		 VALUES (?, ?, ?, ?)`,
		snap.TransactionID, snap.Order, snap.Data, time.Now().UTC(),
	)
	if err != nil {
		err = fmt.Errorf("insert snapshot (%d, %d): %w", snap.TransactionID, snap.Order, err)
	}
	return err
}

// GetSnapshot loads the snapshot paired with one step.
func (s *Store) GetSnapshot(ctx context.Context, txnID int64, order int) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT transaction_id, "order", data_blob, created_at FROM snapshots
		 WHERE transaction_id = ? AND "order" = ?`, txnID, order,
	).Scan(&snap.TransactionID, &snap.Order, &snap.Data, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Snapshot{}, fmt.Errorf("snapshot (%d, %d): %w", txnID, order, ErrNotFound)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("get snapshot (%d, %d): %w", txnID, order, err)
	}
	return snap, nil
}

// DeleteSnapshots removes all snapshot rows for a transaction. Called on
// commit, since a committed transaction will never be rolled back.
func (s *Store) DeleteSnapshots(ctx context.Context, txnID int64) (err error) {
	start := time.Now()
	defer func() { s.recordOp("delete_snapshots", start, err) }()

	_, err = s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE transaction_id = ?`, txnID)
	if err != nil {
		err = fmt.Errorf("delete snapshots for %d: %w", txnID, err)
	}
	return err
}
