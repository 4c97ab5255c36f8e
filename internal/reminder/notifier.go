package reminder

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Reminder is the payload delivered for one overdue task.
type Reminder struct {
	TaskID   string        `json:"task_id"`
	Name     string        `json:"name"`
	AgentID  string        `json:"agent_id"`
	WorldID  string        `json:"world_id"`
	RoomID   string        `json:"room_id"`
	EntityID string        `json:"entity_id"`
	Priority int           `json:"priority"`
	IsUrgent bool          `json:"is_urgent"`
	DueDate  time.Time     `json:"due_date"`
	Overdue  time.Duration `json:"overdue_ns"`
}

// Text renders the reminder as a short human-readable line.
func (r Reminder) Text() string {
	urgent := ""
	if r.IsUrgent {
		urgent = " [urgent]"
	}
	return fmt.Sprintf("Reminder: %q (P%d)%s is overdue by %s", r.Name, r.Priority, urgent, humanDuration(r.Overdue))
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Reminder) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, r Reminder) error {
	return f(ctx, r)
}

// LogNotifier writes reminders to a logger.
type LogNotifier struct {
	Logger *log.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, r Reminder) error {
	l := n.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf("%s (task %s, room %s)", r.Text(), r.TaskID, r.RoomID)
	return nil
}

// MultiNotifier fans a reminder out to every notifier. All are tried; the
// first error is returned.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(ctx context.Context, r Reminder) error {
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
}
