// Package completion turns completion requests into task state, streak and
// points-ledger changes.
//
// Each request is a single attempt that ends in one of the terminal statuses
// below. The task is claimed with a conditional update before any streak or
// ledger work, so concurrent completions of one task award points at most
// once.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/HendryAvila/tally/internal/points"
	"github.com/HendryAvila/tally/internal/store"
	"github.com/spf13/cast"
)

// ErrNoStore is returned by New when no task store is supplied.
var ErrNoStore = errors.New("completion: task store is required")

// Store is the slice of the task store the orchestrator needs.
type Store interface {
	GetTask(ctx context.Context, id string) (*store.Task, error)
	MarkCompleted(ctx context.Context, id string, p store.MetadataPatch) error
	MarkIncomplete(ctx context.Context, id string, p store.MetadataPatch) error
	PatchMetadata(ctx context.Context, id string, p store.MetadataPatch) error
	ResetDailyTasks(ctx context.Context, agentID string) (int, error)
	DailyAgents(ctx context.Context) ([]string, error)
	GetOrCreateStreak(ctx context.Context, taskID, entityID string) (*store.Streak, error)
	ApplyStreakOutcome(ctx context.Context, taskID, entityID string, succeeded bool) (*store.Streak, error)
	ApplyTransaction(ctx context.Context, in store.TransactionInput) (int, error)
}

// Status is the terminal state of one completion attempt.
type Status string

const (
	Resolved        Status = "resolved"
	NotFound        Status = "not_found"
	AlreadyComplete Status = "already_complete"
	NotCompleted    Status = "not_completed"
	Rejected        Status = "rejected"
)

// Context identifies who completed a task and which points account is paid.
// Points are only awarded when EntityID, WorldID and RoomID are all set.
type Context struct {
	EntityID string `json:"entity_id,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
	WorldID  string `json:"world_id,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`
}

// HasPoints reports whether the context names a full points account.
func (c Context) HasPoints() bool {
	return c.EntityID != "" && c.WorldID != "" && c.RoomID != ""
}

// Result summarizes a completion or uncompletion attempt.
type Result struct {
	Status  Status      `json:"status"`
	Message string      `json:"message"`
	Task    *store.Task `json:"task,omitempty"`
	Points  int         `json:"points"`
	Streak  *int        `json:"streak,omitempty"`
	OnTime  *bool       `json:"on_time,omitempty"`
	Balance *int        `json:"balance,omitempty"`
}

// Orchestrator dispatches completions to the policy for each task type.
type Orchestrator struct {
	store  Store
	now    func() time.Time
	logger *log.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for storage failures.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator. It refuses to build one without a store.
func New(st Store, opts ...Option) (*Orchestrator, error) {
	if st == nil {
		return nil, ErrNoStore
	}
	if s, ok := st.(*store.Store); ok && s == nil {
		return nil, ErrNoStore
	}
	o := &Orchestrator{
		store:  st,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// ─── Complete ────────────────────────────────────────────────────────────────

// Complete marks the task completed and awards points for its type. Domain
// outcomes (not found, already complete) are reported through Result.Status;
// the error is non-nil only for storage failures.
func (o *Orchestrator) Complete(ctx context.Context, taskID string, cc Context) (*Result, error) {
	if strings.TrimSpace(taskID) == "" {
		return &Result{Status: Rejected, Message: "task id is required"}, nil
	}

	task, err := o.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return &Result{Status: NotFound, Message: fmt.Sprintf("task %s not found", taskID)}, nil
	}
	if err != nil {
		return nil, o.fail("load task", taskID, err)
	}
	if task.IsCompleted {
		return &Result{Status: AlreadyComplete, Task: task, Message: fmt.Sprintf("%q is already completed", task.Name)}, nil
	}

	now := o.now().UTC()
	claim := store.MetadataPatch{
		Set:    map[string]any{store.MetaCompletedAt: now.Format(time.RFC3339Nano)},
		Remove: store.CompletionMetaKeys,
	}

	switch err := o.store.MarkCompleted(ctx, task.ID, claim); {
	case errors.Is(err, store.ErrAlreadyCompleted):
		return &Result{Status: AlreadyComplete, Task: task, Message: fmt.Sprintf("%q is already completed", task.Name)}, nil
	case errors.Is(err, store.ErrNotFound):
		return &Result{Status: NotFound, Message: fmt.Sprintf("task %s not found", taskID)}, nil
	case err != nil:
		return nil, o.fail("claim task", task.ID, err)
	}

	res := &Result{Status: Resolved}
	meta := map[string]any{}
	award, err := o.score(ctx, task, cc, now, meta, res)
	if err != nil {
		o.release(ctx, task.ID)
		return nil, err
	}

	// The audit is only written while the task is still completed, and in
	// the same database transaction as any ledger entry it describes.
	stillCompleted := true
	audit := store.MetadataPatch{Set: meta, IfCompleted: &stillCompleted}
	if award.points > 0 && cc.HasPoints() {
		meta[store.MetaPointsAwarded] = award.points
		meta[store.MetaPointsEntityID] = cc.EntityID
		meta[store.MetaPointsWorldID] = cc.WorldID
		meta[store.MetaPointsRoomID] = cc.RoomID
		balance, err := o.store.ApplyTransaction(ctx, store.TransactionInput{
			EntityID:     cc.EntityID,
			WorldID:      cc.WorldID,
			RoomID:       cc.RoomID,
			AgentID:      firstNonEmpty(cc.AgentID, task.AgentID),
			Delta:        award.points,
			Reason:       award.reason,
			TaskID:       task.ID,
			TaskMetadata: &audit,
		})
		if err != nil {
			o.release(ctx, task.ID)
			return nil, o.fail("apply transaction", task.ID, err)
		}
		res.Points = award.points
		res.Balance = &balance
	} else if err := o.store.PatchMetadata(ctx, task.ID, audit); err != nil {
		o.release(ctx, task.ID)
		return nil, o.fail("record completion metadata", task.ID, err)
	}

	if res.Task, err = o.store.GetTask(ctx, task.ID); err != nil {
		return nil, o.fail("reload task", task.ID, err)
	}
	res.Message = award.summary(task.Name, res.Points)
	return res, nil
}

type award struct {
	points int
	reason string
	detail string
}

func (a award) summary(name string, pts int) string {
	msg := fmt.Sprintf("Completed %q", name)
	if a.detail != "" {
		msg += " " + a.detail
	}
	if pts > 0 {
		msg += fmt.Sprintf(": +%d points", pts)
	}
	return msg
}

// score runs the type-specific policy. It fills meta and res with the
// streak and on-time details and returns the points owed.
func (o *Orchestrator) score(ctx context.Context, task *store.Task, cc Context, now time.Time, meta map[string]any, res *Result) (award, error) {
	switch task.Type {
	case store.TypeDaily:
		entity := firstNonEmpty(cc.EntityID, task.EntityID)
		st, err := o.advanceStreak(ctx, task.ID, entity, now)
		if err != nil {
			return award{}, err
		}
		current := st.Current
		res.Streak = &current
		meta[store.MetaStreak] = current
		meta[store.MetaCompletedToday] = true
		return award{
			points: points.DailyTotal(current),
			reason: fmt.Sprintf("Completed daily task: %s (streak: %d)", task.Name, current),
			detail: fmt.Sprintf("(streak %d)", current),
		}, nil

	case store.TypeOneOff:
		onTime := points.IsOnTime(task.DueDate, now)
		res.OnTime = &onTime
		meta[store.MetaCompletedOnTime] = onTime
		outcome, label := points.OnTime, "on time"
		if !onTime {
			outcome, label = points.Late, "late"
		}
		pts, err := points.Calculate(task, outcome, 0)
		if err != nil {
			return award{}, fmt.Errorf("score task %s: %w", task.ID, err)
		}
		return award{
			points: pts,
			reason: fmt.Sprintf("Completed task %s: %s", label, task.Name),
			detail: label,
		}, nil

	case store.TypeAspirational:
		return award{
			points: points.AspirationalPoints,
			reason: fmt.Sprintf("Achieved goal: %s", task.Name),
			detail: "(goal achieved)",
		}, nil

	default:
		return award{}, nil
	}
}

// advanceStreak breaks a lapsed streak before counting today's completion.
func (o *Orchestrator) advanceStreak(ctx context.Context, taskID, entityID string, now time.Time) (*store.Streak, error) {
	st, err := o.store.GetOrCreateStreak(ctx, taskID, entityID)
	if err != nil {
		return nil, o.fail("load streak", taskID, err)
	}
	if st.Current > 0 && !points.StreakContinues(st.LastCompletedAt, now) {
		if _, err := o.store.ApplyStreakOutcome(ctx, taskID, entityID, false); err != nil {
			return nil, o.fail("break streak", taskID, err)
		}
	}
	st, err = o.store.ApplyStreakOutcome(ctx, taskID, entityID, true)
	if err != nil {
		return nil, o.fail("extend streak", taskID, err)
	}
	return st, nil
}

// release gives back a claim whose completion could not finish. Keys written
// by other paths, such as the reminder stamp, are left alone.
func (o *Orchestrator) release(ctx context.Context, taskID string) {
	if err := o.store.MarkIncomplete(ctx, taskID, store.MetadataPatch{Remove: store.CompletionMetaKeys}); err != nil {
		o.logger.Printf("WARNING: completion: release task %s: %v", taskID, err)
	}
}

// ─── Uncomplete ──────────────────────────────────────────────────────────────

// Uncomplete reverses a completion. Completion metadata is removed and any
// points recorded against the task are returned with a compensating
// transaction. Streaks are left as they are.
func (o *Orchestrator) Uncomplete(ctx context.Context, taskID string) (*Result, error) {
	if strings.TrimSpace(taskID) == "" {
		return &Result{Status: Rejected, Message: "task id is required"}, nil
	}

	task, err := o.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return &Result{Status: NotFound, Message: fmt.Sprintf("task %s not found", taskID)}, nil
	}
	if err != nil {
		return nil, o.fail("load task", taskID, err)
	}
	if !task.IsCompleted {
		return &Result{Status: NotCompleted, Task: task, Message: fmt.Sprintf("%q is not completed", task.Name)}, nil
	}

	meta := task.Metadata
	awarded := cast.ToInt(meta[store.MetaPointsAwarded])
	entityID := cast.ToString(meta[store.MetaPointsEntityID])
	worldID := cast.ToString(meta[store.MetaPointsWorldID])
	roomID := cast.ToString(meta[store.MetaPointsRoomID])

	switch err := o.store.MarkIncomplete(ctx, task.ID, store.MetadataPatch{Remove: store.CompletionMetaKeys}); {
	case errors.Is(err, store.ErrNotCompleted):
		return &Result{Status: NotCompleted, Task: task, Message: fmt.Sprintf("%q is not completed", task.Name)}, nil
	case errors.Is(err, store.ErrNotFound):
		return &Result{Status: NotFound, Message: fmt.Sprintf("task %s not found", taskID)}, nil
	case err != nil:
		return nil, o.fail("uncomplete task", task.ID, err)
	}

	res := &Result{Status: Resolved, Message: fmt.Sprintf("Reopened %q", task.Name)}
	if awarded > 0 && entityID != "" && worldID != "" && roomID != "" {
		balance, err := o.store.ApplyTransaction(ctx, store.TransactionInput{
			EntityID: entityID,
			WorldID:  worldID,
			RoomID:   roomID,
			AgentID:  task.AgentID,
			Delta:    -awarded,
			Reason:   fmt.Sprintf("Reversed completion: %s", task.Name),
			TaskID:   task.ID,
		})
		if err != nil {
			return nil, o.fail("reverse transaction", task.ID, err)
		}
		res.Points = -awarded
		res.Balance = &balance
		res.Message += fmt.Sprintf(": -%d points", awarded)
	}

	if res.Task, err = o.store.GetTask(ctx, task.ID); err != nil {
		return nil, o.fail("reload task", task.ID, err)
	}
	return res, nil
}

// ─── Daily rollover ──────────────────────────────────────────────────────────

// ResetDaily clears completion on the agent's daily tasks and returns how
// many were reset.
func (o *Orchestrator) ResetDaily(ctx context.Context, agentID string) (int, error) {
	if strings.TrimSpace(agentID) == "" {
		return 0, store.Required("agentId")
	}
	n, err := o.store.ResetDailyTasks(ctx, agentID)
	if err != nil {
		return 0, o.fail("reset daily tasks", agentID, err)
	}
	return n, nil
}

// ResetAllDaily runs the daily rollover for every agent that has a completed
// daily task. One agent's failure does not stop the others; the first error
// is returned with the total reset so far.
func (o *Orchestrator) ResetAllDaily(ctx context.Context) (int, error) {
	agents, err := o.store.DailyAgents(ctx)
	if err != nil {
		o.logger.Printf("ERROR: completion: list daily agents: %v", err)
		return 0, fmt.Errorf("list daily agents: %w", err)
	}
	var (
		total    int
		firstErr error
	)
	for _, agentID := range agents {
		n, err := o.ResetDaily(ctx, agentID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += n
	}
	return total, firstErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (o *Orchestrator) fail(op, id string, err error) error {
	o.logger.Printf("ERROR: completion: %s %s: %v", op, id, err)
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
