package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetOrCreateStreak returns the streak for (taskID, entityID), creating a
// zero-valued one if absent.
func (s *Store) GetOrCreateStreak(ctx context.Context, taskID, entityID string) (*Streak, error) {
	if entityID == "" {
		return nil, Required("entityId")
	}
	var out *Streak
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureStreak(ctx, tx, taskID, entityID, s.timestamp()); err != nil {
			return err
		}
		st, err := getStreak(ctx, tx, taskID, entityID)
		if err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

// ApplyStreakOutcome records one completion attempt. Success increments the
// current streak, raises longest if exceeded and stamps last-completed; a
// break resets current to zero and leaves longest alone.
func (s *Store) ApplyStreakOutcome(ctx context.Context, taskID, entityID string, succeeded bool) (*Streak, error) {
	if entityID == "" {
		return nil, Required("entityId")
	}
	now := s.timestamp()
	var out *Streak
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureStreak(ctx, tx, taskID, entityID, now); err != nil {
			return err
		}

		var err error
		if succeeded {
			_, err = tx.ExecContext(ctx, `
				UPDATE streaks
				SET current_streak = current_streak + 1,
				    longest_streak = MAX(longest_streak, current_streak + 1),
				    last_completed_at = ?,
				    updated_at = ?
				WHERE task_id = ? AND entity_id = ?`,
				now, now, taskID, entityID,
			)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE streaks
				SET current_streak = 0, updated_at = ?
				WHERE task_id = ? AND entity_id = ?`,
				now, taskID, entityID,
			)
		}
		if err != nil {
			return fmt.Errorf("streak update: %w", err)
		}

		st, err := getStreak(ctx, tx, taskID, entityID)
		if err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

func ensureStreak(ctx context.Context, tx *sql.Tx, taskID, entityID, now string) error {
	ok, err := taskExists(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO streaks (task_id, entity_id, current_streak, longest_streak, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?)
		ON CONFLICT(task_id, entity_id) DO NOTHING`,
		taskID, entityID, now, now,
	); err != nil {
		return fmt.Errorf("streak insert: %w", err)
	}
	return nil
}

func getStreak(ctx context.Context, tx *sql.Tx, taskID, entityID string) (*Streak, error) {
	var (
		st   Streak
		last sql.NullString
	)
	err := tx.QueryRowContext(ctx, `
		SELECT task_id, entity_id, current_streak, longest_streak, last_completed_at
		FROM streaks WHERE task_id = ? AND entity_id = ?`,
		taskID, entityID,
	).Scan(&st.TaskID, &st.EntityID, &st.Current, &st.Longest, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("streak %s/%s: %w", taskID, entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("streak get: %w", err)
	}
	if st.LastCompletedAt, err = parseNullTime(last); err != nil {
		return nil, fmt.Errorf("streak last_completed_at: %w", err)
	}
	return &st, nil
}
