// Package points computes reward points and streak continuity for completed
// tasks. Nothing here touches storage: callers apply the returned values
// through the task store.
package points

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/tally/internal/store"
)

// Outcome classifies a completion for scoring.
type Outcome string

const (
	OnTime      Outcome = "onTime"
	Late        Outcome = "late"
	Daily       Outcome = "daily"
	StreakBonus Outcome = "streakBonus"
)

// Reward constants.
const (
	LatePoints         = 5
	DailyPoints        = 10
	UrgentBonus        = 10
	StreakStep         = 5
	MaxStreakBonus     = 50
	AspirationalPoints = 50
)

// ErrInvalidOutcome is returned for an outcome Calculate does not know.
var ErrInvalidOutcome = errors.New("invalid completion outcome")

// IsValid reports whether o is a known outcome.
func (o Outcome) IsValid() bool {
	switch o {
	case OnTime, Late, Daily, StreakBonus:
		return true
	default:
		return false
	}
}

// ParseOutcome normalizes user input into an Outcome.
func ParseOutcome(input string) (Outcome, error) {
	s := strings.TrimSpace(input)
	for _, o := range []Outcome{OnTime, Late, Daily, StreakBonus} {
		if strings.EqualFold(s, string(o)) {
			return o, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, input)
}

// Calculate returns the points for completing task with the given outcome.
// streak is only read for StreakBonus and is the streak after increment.
func Calculate(task *store.Task, outcome Outcome, streak int) (int, error) {
	switch outcome {
	case OnTime:
		if task == nil {
			return 0, errors.New("points: task is required for on-time scoring")
		}
		p := task.EffectivePriority()
		if p < store.MinPriority || p > store.MaxPriority {
			return 0, fmt.Errorf("points: priority %d out of range", p)
		}
		pts := (5 - p) * 10
		if task.IsUrgent {
			pts += UrgentBonus
		}
		return pts, nil
	case Late:
		return LatePoints, nil
	case Daily:
		return DailyPoints, nil
	case StreakBonus:
		if streak <= 1 {
			return 0, nil
		}
		return min(streak*StreakStep, MaxStreakBonus), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
}

// DailyTotal is the award for a daily completion that brings the streak to
// streak: the base plus the bonus once the streak exceeds one.
func DailyTotal(streak int) int {
	base, _ := Calculate(nil, Daily, streak)
	bonus, _ := Calculate(nil, StreakBonus, streak)
	return base + bonus
}

// IsOnTime reports whether completing at now meets the due date. A task
// without a due date is always on time.
func IsOnTime(due *time.Time, now time.Time) bool {
	return due == nil || !now.After(*due)
}

// StreakContinues reports whether a completion at now extends a streak whose
// last completion was at last. The streak holds when last falls on the same
// or the previous UTC calendar day.
func StreakContinues(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	days := dayIndex(now) - dayIndex(*last)
	return days == 0 || days == 1
}

func dayIndex(t time.Time) int64 {
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return d.Unix() / 86400
}
