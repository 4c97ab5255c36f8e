package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

const taskColumns = `id, agent_id, world_id, room_id, entity_id, name, description, type,
	priority, is_urgent, is_completed, due_date, completed_at, metadata, created_at, updated_at`

// ─── Create ──────────────────────────────────────────────────────────────────

// CreateTask persists a new task and returns its id. Daily tasks get a
// zero-valued streak for the owning entity in the same transaction.
func (s *Store) CreateTask(ctx context.Context, in NewTask) (string, error) {
	if err := validateNewTask(in); err != nil {
		return "", err
	}

	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	var priority any
	isUrgent := false
	if in.Type == TypeOneOff {
		isUrgent = in.IsUrgent
		if in.Priority != nil {
			priority = *in.Priority
		}
	}
	dueDate := in.DueDate
	if in.Type == TypeAspirational {
		dueDate = nil
	}

	id := s.newID()
	now := s.timestamp()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (
				id, agent_id, world_id, room_id, entity_id, name, description, type,
				priority, is_urgent, is_completed, due_date, completed_at, metadata,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, NULL, ?, ?, ?)`,
			id, in.AgentID, in.WorldID, in.RoomID, in.EntityID, strings.TrimSpace(in.Name),
			nullableString(strings.TrimSpace(in.Description)), string(in.Type),
			priority, boolToInt(isUrgent), nullableTime(dueDate), string(metaJSON), now, now,
		); err != nil {
			return fmt.Errorf("task insert: %w", err)
		}

		if err := replaceTags(ctx, tx, id, in.Tags); err != nil {
			return err
		}

		if in.Type == TypeDaily {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO streaks (task_id, entity_id, current_streak, longest_streak, created_at, updated_at)
				VALUES (?, ?, 0, 0, ?, ?)`,
				id, in.EntityID, now, now,
			); err != nil {
				return fmt.Errorf("streak insert: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func validateNewTask(in NewTask) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return Required("name")
	case in.Type == "":
		return Required("type")
	case !in.Type.IsValid():
		_, err := ParseTaskType(string(in.Type))
		return err
	case in.AgentID == "":
		return Required("agentId")
	case in.EntityID == "":
		return Required("entityId")
	case in.RoomID == "":
		return Required("roomId")
	case in.WorldID == "":
		return Required("worldId")
	}
	if in.Priority != nil && in.Type == TypeOneOff {
		if err := ValidatePriority(*in.Priority); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePriority checks that p is within 1..4.
func ValidatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return &ValidationError{
			Field:   "priority",
			Message: fmt.Sprintf("invalid priority %d: must be between %d and %d", p, MinPriority, MaxPriority),
		}
	}
	return nil
}

// ─── Read ────────────────────────────────────────────────────────────────────

// GetTask retrieves a task by id, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	tasks := []Task{*t}
	if err := s.loadTags(ctx, tasks); err != nil {
		return nil, err
	}
	return &tasks[0], nil
}

// ListTasks returns tasks matching every filter field, most recently created first.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []any{}

	if f.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, f.AgentID)
	}
	if f.WorldID != "" {
		query += " AND world_id = ?"
		args = append(args, f.WorldID)
	}
	if f.RoomID != "" {
		query += " AND room_id = ?"
		args = append(args, f.RoomID)
	}
	if f.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, f.EntityID)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, string(f.Type))
	}
	if f.Completed != nil {
		query += " AND is_completed = ?"
		args = append(args, boolToInt(*f.Completed))
	}
	if tags := NormalizeTags(f.Tags); len(tags) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
		query += ` AND id IN (
			SELECT task_id FROM task_tags
			WHERE tag IN (` + placeholders + `)
			GROUP BY task_id
			HAVING COUNT(DISTINCT tag) = ?)`
		for _, tag := range tags {
			args = append(args, tag)
		}
		args = append(args, len(tags))
	}

	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return s.queryTasks(ctx, query, args...)
}

// GetOverdueTasks returns incomplete one-off tasks whose due date is strictly
// before the current time.
func (s *Store) GetOverdueTasks(ctx context.Context) ([]Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE type = ? AND is_completed = 0 AND due_date IS NOT NULL AND due_date < ?
		ORDER BY due_date ASC`,
		string(TypeOneOff), s.timestamp(),
	)
}

// ListTags returns the distinct tags in use, sorted.
func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tag FROM task_tags ORDER BY tag ASC`)
	if err != nil {
		return nil, fmt.Errorf("tag list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("tag scan: %w", err)
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("task list: %w", err)
	}

	out := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("task list rows: %w", err)
	}
	// Rows must be released before loadTags: the pool has one connection.
	_ = rows.Close()

	if err := s.loadTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) loadTags(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	index := make(map[string]int, len(tasks))
	args := make([]any, 0, len(tasks))
	for i := range tasks {
		tasks[i].Tags = []string{}
		index[tasks[i].ID] = i
		args = append(args, tasks[i].ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, tag FROM task_tags WHERE task_id IN (`+placeholders+`) ORDER BY tag ASC`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("tag load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var taskID, tag string
		if err := rows.Scan(&taskID, &tag); err != nil {
			return fmt.Errorf("tag scan: %w", err)
		}
		if i, ok := index[taskID]; ok {
			tasks[i].Tags = append(tasks[i].Tags, tag)
		}
	}
	return rows.Err()
}

// ─── Update ──────────────────────────────────────────────────────────────────

// UpdateTask merges the non-nil fields of u into the task. Tags, when
// present, fully replace the tag set.
func (s *Store) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	sets := []string{}
	args := []any{}

	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return Required("name")
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullableString(strings.TrimSpace(*u.Description)))
	}
	if u.Priority != nil {
		if err := ValidatePriority(*u.Priority); err != nil {
			return err
		}
		sets = append(sets, "priority = ?")
		args = append(args, *u.Priority)
	}
	if u.IsUrgent != nil {
		sets = append(sets, "is_urgent = ?")
		args = append(args, boolToInt(*u.IsUrgent))
	}
	if u.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if u.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, nullableTime(u.DueDate))
	}
	if u.Metadata != nil {
		data, err := json.Marshal(u.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, string(data))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.timestamp(), id)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return fmt.Errorf("task update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("task update rows: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		if u.Tags != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = ?`, id); err != nil {
				return fmt.Errorf("tag delete: %w", err)
			}
			return replaceTags(ctx, tx, id, u.Tags)
		}
		return nil
	})
}

// MarkCompleted flips a task to completed only if it is currently incomplete,
// so concurrent completions of the same task have exactly one winner. The
// metadata patch is applied in the same statement.
func (s *Store) MarkCompleted(ctx context.Context, id string, p MetadataPatch) error {
	expr, metaArgs, err := p.expr()
	if err != nil {
		return err
	}
	now := s.timestamp()
	args := append([]any{now}, metaArgs...)
	args = append(args, now, id)
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET is_completed = 1, completed_at = ?, metadata = `+expr+`, updated_at = ?
		WHERE id = ? AND is_completed = 0`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("task mark completed: %w", err)
	}
	return conditionalResult(ctx, s.db, res, id, ErrAlreadyCompleted)
}

// MarkIncomplete clears completion only if the task is currently completed.
func (s *Store) MarkIncomplete(ctx context.Context, id string, p MetadataPatch) error {
	expr, metaArgs, err := p.expr()
	if err != nil {
		return err
	}
	args := append(metaArgs, s.timestamp(), id)
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET is_completed = 0, completed_at = NULL, metadata = `+expr+`, updated_at = ?
		WHERE id = ? AND is_completed = 1`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("task mark incomplete: %w", err)
	}
	return conditionalResult(ctx, s.db, res, id, ErrNotCompleted)
}

// PatchMetadata sets and removes single metadata keys in one statement, so
// writers touching different keys never overwrite each other.
func (s *Store) PatchMetadata(ctx context.Context, id string, p MetadataPatch) error {
	return s.patchMetadata(ctx, s.db, id, p)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) patchMetadata(ctx context.Context, q execQuerier, id string, p MetadataPatch) error {
	if p.IsEmpty() {
		return nil
	}
	expr, args, err := p.expr()
	if err != nil {
		return err
	}
	query := `UPDATE tasks SET metadata = ` + expr + `, updated_at = ? WHERE id = ?`
	args = append(args, s.timestamp(), id)

	var conflict error
	if p.IfCompleted != nil {
		query += " AND is_completed = ?"
		args = append(args, boolToInt(*p.IfCompleted))
		conflict = ErrAlreadyCompleted
		if *p.IfCompleted {
			conflict = ErrNotCompleted
		}
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("task metadata patch: %w", err)
	}
	return conditionalResult(ctx, q, res, id, conflict)
}

// expr renders the patch as an SQL expression over the metadata column.
func (p MetadataPatch) expr() (string, []any, error) {
	expr := "COALESCE(metadata, '{}')"
	var args []any
	if len(p.Remove) > 0 {
		expr = "json_remove(" + expr + strings.Repeat(", ?", len(p.Remove)) + ")"
		for _, key := range p.Remove {
			args = append(args, metaPath(key))
		}
	}
	if len(p.Set) > 0 {
		keys := slices.Sorted(maps.Keys(p.Set))
		expr = "json_set(" + expr + strings.Repeat(", ?, json(?)", len(keys)) + ")"
		for _, key := range keys {
			v, err := json.Marshal(p.Set[key])
			if err != nil {
				return "", nil, fmt.Errorf("marshal metadata %s: %w", key, err)
			}
			args = append(args, metaPath(key), string(v))
		}
	}
	return expr, args, nil
}

func metaPath(key string) string {
	return `$."` + key + `"`
}

// conditionalResult maps a zero-row conditional update to ErrNotFound or,
// when the row exists, to conflict.
func conditionalResult(ctx context.Context, q execQuerier, res sql.Result, id string, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	ok, err := taskExists(ctx, q, id)
	if err != nil {
		return err
	}
	if !ok || conflict == nil {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("task %s: %w", id, conflict)
}

// DailyAgents returns the agents owning at least one completed daily task.
func (s *Store) DailyAgents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT agent_id FROM tasks
		WHERE type = ? AND is_completed = 1
		ORDER BY agent_id ASC`,
		string(TypeDaily),
	)
	if err != nil {
		return nil, fmt.Errorf("daily agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var agentID string
		if err := rows.Scan(&agentID); err != nil {
			return nil, fmt.Errorf("daily agents scan: %w", err)
		}
		out = append(out, agentID)
	}
	return out, rows.Err()
}

// ResetDailyTasks clears completion on the agent's completed daily tasks and
// returns how many were reset. Streaks are left untouched.
func (s *Store) ResetDailyTasks(ctx context.Context, agentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET is_completed = 0,
		    completed_at = NULL,
		    metadata = json_remove(metadata, '$.`+MetaCompletedToday+`'),
		    updated_at = ?
		WHERE agent_id = ? AND type = ? AND is_completed = 1`,
		s.timestamp(), agentID, string(TypeDaily),
	)
	if err != nil {
		return 0, fmt.Errorf("reset daily tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset daily rows: %w", err)
	}
	return int(n), nil
}

// ─── Delete ──────────────────────────────────────────────────────────────────

// DeleteTask removes a task. Tags and streaks cascade; ledger entries keep
// their amounts but lose the task reference.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("task delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("task delete rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ─── Scanning ────────────────────────────────────────────────────────────────

func replaceTags(ctx context.Context, tx *sql.Tx, taskID string, tags []string) error {
	for _, tag := range NormalizeTags(tags) {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO task_tags (task_id, tag) VALUES (?, ?)`, taskID, tag,
		); err != nil {
			return fmt.Errorf("tag insert: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var (
		t           Task
		description sql.NullString
		typ         string
		priority    sql.NullInt64
		isUrgent    int
		isCompleted int
		dueDate     sql.NullString
		completedAt sql.NullString
		metaRaw     string
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(
		&t.ID, &t.AgentID, &t.WorldID, &t.RoomID, &t.EntityID, &t.Name, &description, &typ,
		&priority, &isUrgent, &isCompleted, &dueDate, &completedAt, &metaRaw, &createdAt, &updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("task scan: %w", err)
	}

	t.Type = TaskType(typ)
	t.IsUrgent = isUrgent != 0
	t.IsCompleted = isCompleted != 0
	if description.Valid {
		v := description.String
		t.Description = &v
	}
	if priority.Valid {
		v := int(priority.Int64)
		t.Priority = &v
	}

	var err error
	if t.DueDate, err = parseNullTime(dueDate); err != nil {
		return nil, fmt.Errorf("task %s due_date: %w", t.ID, err)
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("task %s completed_at: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("task %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("task %s updated_at: %w", t.ID, err)
	}

	t.Metadata = map[string]any{}
	if metaRaw != "" {
		if err := json.Unmarshal([]byte(metaRaw), &t.Metadata); err != nil {
			return nil, fmt.Errorf("task %s metadata: %w", t.ID, err)
		}
	}
	return &t, nil
}
