package store

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ─── Task types ──────────────────────────────────────────────────────────────

// TaskType categorizes how a task is completed and rewarded.
type TaskType string

const (
	TypeDaily        TaskType = "daily"
	TypeOneOff       TaskType = "one-off"
	TypeAspirational TaskType = "aspirational"
)

// validTypes is the set of allowed task types.
var validTypes = map[TaskType]bool{
	TypeDaily:        true,
	TypeOneOff:       true,
	TypeAspirational: true,
}

// IsValid reports whether t is one of the three known task types.
func (t TaskType) IsValid() bool {
	return validTypes[t]
}

// ParseTaskType normalizes user input into a TaskType.
func ParseTaskType(input string) (TaskType, error) {
	t := TaskType(strings.TrimSpace(strings.ToLower(input)))
	if !t.IsValid() {
		return "", &ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("invalid task type %q: must be one of: daily, one-off, aspirational", input),
		}
	}
	return t, nil
}

// Priority bounds. 1 is the most important.
const (
	MinPriority     = 1
	MaxPriority     = 4
	DefaultPriority = 4
)

// Metadata keys written by the completion and reminder paths.
const (
	MetaStreak           = "streak"
	MetaPointsAwarded    = "pointsAwarded"
	MetaCompletedAt      = "completedAt"
	MetaCompletedToday   = "completedToday"
	MetaCompletedOnTime  = "completedOnTime"
	MetaLastReminderSent = "lastReminderSent"
	MetaPointsEntityID   = "pointsEntityId"
	MetaPointsWorldID    = "pointsWorldId"
	MetaPointsRoomID     = "pointsRoomId"
)

// CompletionMetaKeys are the metadata keys that describe one completion.
// They are dropped when a task is claimed again or reopened.
var CompletionMetaKeys = []string{
	MetaPointsAwarded,
	MetaCompletedToday,
	MetaCompletedAt,
	MetaCompletedOnTime,
	MetaPointsEntityID,
	MetaPointsWorldID,
	MetaPointsRoomID,
}

// ─── Records ─────────────────────────────────────────────────────────────────

// Task is a persisted todo item.
type Task struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agent_id"`
	WorldID     string         `json:"world_id"`
	RoomID      string         `json:"room_id"`
	EntityID    string         `json:"entity_id"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Type        TaskType       `json:"type"`
	Priority    *int           `json:"priority,omitempty"`
	IsUrgent    bool           `json:"is_urgent"`
	IsCompleted bool           `json:"is_completed"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	Tags        []string       `json:"tags"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HasTag reports whether the task carries tag.
func (t *Task) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// EffectivePriority returns the task priority, defaulting to the lowest.
func (t *Task) EffectivePriority() int {
	if t.Priority == nil {
		return DefaultPriority
	}
	return *t.Priority
}

// NewTask holds the input for creating a task.
type NewTask struct {
	AgentID     string
	WorldID     string
	RoomID      string
	EntityID    string
	Name        string
	Description string
	Type        TaskType
	Priority    *int
	IsUrgent    bool
	DueDate     *time.Time
	Metadata    map[string]any
	Tags        []string
}

// TaskFilter selects tasks. All non-zero fields must match (AND).
// Tags is a superset match: a task matches only if it has every tag.
type TaskFilter struct {
	AgentID   string
	WorldID   string
	RoomID    string
	EntityID  string
	Type      TaskType
	Completed *bool
	Tags      []string
	Limit     int
}

// TaskUpdate holds partial update fields for a task. Nil fields are left
// untouched. A non-nil Tags slice replaces the whole tag set; a non-nil
// Metadata map replaces the whole metadata object; use PatchMetadata to
// change single keys.
type TaskUpdate struct {
	Name         *string
	Description  *string
	Priority     *int
	IsUrgent     *bool
	DueDate      *time.Time
	ClearDueDate bool
	Metadata     map[string]any
	Tags         []string
}

// Streak tracks consecutive completions of a daily task by one entity.
type Streak struct {
	TaskID          string     `json:"task_id"`
	EntityID        string     `json:"entity_id"`
	Current         int        `json:"current_streak"`
	Longest         int        `json:"longest_streak"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// Account is the points balance of an entity within one world/room.
type Account struct {
	EntityID          string    `json:"entity_id"`
	WorldID           string    `json:"world_id"`
	RoomID            string    `json:"room_id"`
	AgentID           string    `json:"agent_id"`
	CurrentPoints     int       `json:"current_points"`
	TotalPointsEarned int       `json:"total_points_earned"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Transaction is one append-only entry of the points ledger.
type Transaction struct {
	ID        int64     `json:"id"`
	EntityID  string    `json:"entity_id"`
	WorldID   string    `json:"world_id"`
	RoomID    string    `json:"room_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	TaskID    *string   `json:"task_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MetadataPatch edits individual metadata keys in place. Remove runs before
// Set. When IfCompleted is non-nil the patch only applies while the task's
// completion state matches it.
type MetadataPatch struct {
	Set         map[string]any
	Remove      []string
	IfCompleted *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p MetadataPatch) IsEmpty() bool {
	return len(p.Set) == 0 && len(p.Remove) == 0
}

// TransactionInput holds the input for ApplyTransaction. A non-nil
// TaskMetadata is applied to TaskID in the same database transaction as the
// ledger entry.
type TransactionInput struct {
	EntityID     string
	WorldID      string
	RoomID       string
	AgentID      string
	Delta        int
	Reason       string
	TaskID       string
	TaskMetadata *MetadataPatch
}

// NormalizeTags trims, drops empties, deduplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}
