package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const accountColumns = `entity_id, world_id, room_id, agent_id, current_points, total_points_earned, created_at, updated_at`

// GetAccount returns the points account for the triple, or ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, entityID, worldID, roomID string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM points_accounts WHERE entity_id = ? AND world_id = ? AND room_id = ?`,
		entityID, worldID, roomID,
	)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s/%s/%s: %w", entityID, worldID, roomID, ErrNotFound)
	}
	return a, err
}

// ListAccounts returns every account held by the entity.
func (s *Store) ListAccounts(ctx context.Context, entityID string) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM points_accounts WHERE entity_id = ? ORDER BY world_id, room_id`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("account list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListTransactions returns the entity's ledger across all accounts, newest first.
func (s *Store) ListTransactions(ctx context.Context, entityID string) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, a.entity_id, a.world_id, a.room_id, t.amount, t.reason, t.task_id, t.created_at
		FROM points_transactions t
		JOIN points_accounts a ON a.id = t.account_id
		WHERE a.entity_id = ?
		ORDER BY t.created_at DESC, t.id DESC`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("transaction list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Transaction{}
	for rows.Next() {
		var (
			tx        Transaction
			taskID    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&tx.ID, &tx.EntityID, &tx.WorldID, &tx.RoomID, &tx.Amount, &tx.Reason, &taskID, &createdAt); err != nil {
			return nil, fmt.Errorf("transaction scan: %w", err)
		}
		if taskID.Valid {
			v := taskID.String
			tx.TaskID = &v
		}
		if tx.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("transaction created_at: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// ApplyTransaction adds in.Delta to the account (creating it if absent) and
// appends a ledger entry, in one transaction. The balance change is computed
// by SQLite as current_points + delta, never read-then-written by the caller.
// It returns the new balance. When in.TaskMetadata is set and cannot be
// applied, nothing is written.
func (s *Store) ApplyTransaction(ctx context.Context, in TransactionInput) (int, error) {
	switch {
	case in.EntityID == "":
		return 0, Required("entityId")
	case in.WorldID == "":
		return 0, Required("worldId")
	case in.RoomID == "":
		return 0, Required("roomId")
	case in.Delta == 0:
		return 0, &ValidationError{Field: "delta", Message: "transaction delta must be non-zero"}
	}

	earned := max(in.Delta, 0)
	now := s.timestamp()

	var balance int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var accountID int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO points_accounts (
				entity_id, world_id, room_id, agent_id, current_points, total_points_earned, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_id, world_id, room_id) DO UPDATE SET
				current_points      = current_points + excluded.current_points,
				total_points_earned = total_points_earned + excluded.total_points_earned,
				updated_at          = excluded.updated_at
			RETURNING id, current_points`,
			in.EntityID, in.WorldID, in.RoomID, in.AgentID, in.Delta, earned, now, now,
		).Scan(&accountID, &balance); err != nil {
			return fmt.Errorf("account upsert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO points_transactions (account_id, task_id, amount, reason, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			accountID, nullableString(in.TaskID), in.Delta, in.Reason, now,
		); err != nil {
			return fmt.Errorf("transaction insert: %w", err)
		}

		if in.TaskMetadata != nil && in.TaskID != "" {
			return s.patchMetadata(ctx, tx, in.TaskID, *in.TaskMetadata)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func scanAccount(row scanner) (*Account, error) {
	var (
		a         Account
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&a.EntityID, &a.WorldID, &a.RoomID, &a.AgentID,
		&a.CurrentPoints, &a.TotalPointsEarned, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("account scan: %w", err)
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("account created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("account updated_at: %w", err)
	}
	return &a, nil
}
