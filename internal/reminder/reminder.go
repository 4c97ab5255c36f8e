// Package reminder finds overdue one-off tasks and sends at most one
// reminder per task per cooldown window.
package reminder

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/HendryAvila/tally/internal/store"
	"github.com/spf13/cast"
)

// Defaults for the background scan.
const (
	DefaultCheckInterval = time.Hour
	DefaultCooldown      = 24 * time.Hour
)

// ErrNoStore is returned by New when no task store is supplied.
var ErrNoStore = errors.New("reminder: task store is required")

// Store is the slice of the task store the scanner needs.
type Store interface {
	GetOverdueTasks(ctx context.Context) ([]store.Task, error)
	PatchMetadata(ctx context.Context, id string, p store.MetadataPatch) error
}

// Scanner runs reminder scans. It holds no state between scans: the
// last-sent time lives in each task's metadata.
type Scanner struct {
	store    Store
	notifier Notifier
	cooldown time.Duration
	now      func() time.Time
	logger   *log.Logger
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithCooldown sets the minimum gap between reminders for one task.
func WithCooldown(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger for skipped tasks and swallowed errors.
func WithLogger(l *log.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Scanner. A nil notifier logs reminders instead.
func New(st Store, n Notifier, opts ...Option) (*Scanner, error) {
	if st == nil {
		return nil, ErrNoStore
	}
	if s, ok := st.(*store.Store); ok && s == nil {
		return nil, ErrNoStore
	}
	s := &Scanner{
		store:    st,
		notifier: n,
		cooldown: DefaultCooldown,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	return s, nil
}

// Report counts what one scan did.
type Report struct {
	Overdue  int
	Sent     int
	Cooldown int
	NoRoom   int
	Failed   int
}

// Scan sends reminders for every overdue task outside its cooldown. Errors
// are logged and never abort the scan.
func (s *Scanner) Scan(ctx context.Context) Report {
	var rep Report

	tasks, err := s.store.GetOverdueTasks(ctx)
	if err != nil {
		s.logger.Printf("WARNING: reminder: fetch overdue tasks: %v", err)
		return rep
	}
	rep.Overdue = len(tasks)

	now := s.now().UTC()
	for i := range tasks {
		if ctx.Err() != nil {
			return rep
		}
		task := &tasks[i]

		if last, ok := s.lastSent(task); ok && now.Sub(last) < s.cooldown {
			rep.Cooldown++
			continue
		}
		if task.RoomID == "" {
			s.logger.Printf("reminder: task %s (%q) has no room, skipping", task.ID, task.Name)
			rep.NoRoom++
			continue
		}

		if err := s.notifier.Notify(ctx, toReminder(task, now)); err != nil {
			s.logger.Printf("WARNING: reminder: notify task %s: %v", task.ID, err)
			rep.Failed++
			continue
		}

		open := false
		err := s.store.PatchMetadata(ctx, task.ID, store.MetadataPatch{
			Set:         map[string]any{store.MetaLastReminderSent: now.Format(time.RFC3339Nano)},
			IfCompleted: &open,
		})
		if errors.Is(err, store.ErrAlreadyCompleted) || errors.Is(err, store.ErrNotFound) {
			// Completed or deleted after the fetch; the reminder already went out.
			rep.Sent++
			continue
		}
		if err != nil {
			s.logger.Printf("WARNING: reminder: record reminder for task %s: %v", task.ID, err)
			rep.Failed++
			continue
		}
		rep.Sent++
	}
	return rep
}

// Run is a schedule.Job that scans and logs a summary when anything was sent.
func (s *Scanner) Run(ctx context.Context) {
	rep := s.Scan(ctx)
	if rep.Sent > 0 || rep.Failed > 0 {
		s.logger.Printf("reminder: %d overdue, %d sent, %d failed", rep.Overdue, rep.Sent, rep.Failed)
	}
}

func (s *Scanner) lastSent(task *store.Task) (time.Time, bool) {
	v, ok := task.Metadata[store.MetaLastReminderSent]
	if !ok || v == nil {
		return time.Time{}, false
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		s.logger.Printf("WARNING: reminder: task %s has unreadable %s %v", task.ID, store.MetaLastReminderSent, v)
		return time.Time{}, false
	}
	return t, true
}

func toReminder(task *store.Task, now time.Time) Reminder {
	r := Reminder{
		TaskID:   task.ID,
		Name:     task.Name,
		AgentID:  task.AgentID,
		WorldID:  task.WorldID,
		RoomID:   task.RoomID,
		EntityID: task.EntityID,
		Priority: task.EffectivePriority(),
		IsUrgent: task.IsUrgent,
	}
	if task.DueDate != nil {
		r.DueDate = *task.DueDate
		r.Overdue = now.Sub(*task.DueDate)
	}
	return r
}
