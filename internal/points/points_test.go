package points

import (
	"errors"
	"testing"
	"time"

	"github.com/HendryAvila/tally/internal/store"
)

func oneOff(priority *int, urgent bool) *store.Task {
	return &store.Task{Type: store.TypeOneOff, Priority: priority, IsUrgent: urgent}
}

func intPtr(v int) *int { return &v }

func TestCalculate_OnTimeByPriority(t *testing.T) {
	tests := []struct {
		priority *int
		urgent   bool
		want     int
	}{
		{intPtr(1), false, 40},
		{intPtr(2), false, 30},
		{intPtr(3), false, 20},
		{intPtr(4), false, 10},
		{nil, false, 10},
		{intPtr(1), true, 50},
		{nil, true, 20},
	}
	for _, tt := range tests {
		got, err := Calculate(oneOff(tt.priority, tt.urgent), OnTime, 0)
		if err != nil {
			t.Fatalf("Calculate: %v", err)
		}
		if got != tt.want {
			t.Errorf("Calculate(p=%v urgent=%v) = %d, want %d", tt.priority, tt.urgent, got, tt.want)
		}
	}
}

func TestCalculate_OnTimeMonotonic(t *testing.T) {
	for _, urgent := range []bool{false, true} {
		prev := -1
		for p := store.MaxPriority; p >= store.MinPriority; p-- {
			got, err := Calculate(oneOff(intPtr(p), urgent), OnTime, 0)
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			if got < prev {
				t.Errorf("P%d (%d) scored below P%d (%d)", p, got, p+1, prev)
			}
			prev = got
		}
	}
	for p := store.MinPriority; p <= store.MaxPriority; p++ {
		plain, _ := Calculate(oneOff(intPtr(p), false), OnTime, 0)
		urgent, _ := Calculate(oneOff(intPtr(p), true), OnTime, 0)
		if urgent <= plain {
			t.Errorf("P%d urgent %d should exceed plain %d", p, urgent, plain)
		}
	}
}

func TestCalculate_FlatOutcomes(t *testing.T) {
	late, _ := Calculate(oneOff(intPtr(1), true), Late, 0)
	if late != 5 {
		t.Errorf("late = %d, want 5", late)
	}
	daily, _ := Calculate(&store.Task{Type: store.TypeDaily}, Daily, 9)
	if daily != 10 {
		t.Errorf("daily = %d, want 10", daily)
	}
}

func TestCalculate_StreakBonus(t *testing.T) {
	tests := map[int]int{0: 0, 1: 0, 2: 10, 3: 15, 10: 50, 11: 50, 40: 50}
	for streak, want := range tests {
		got, err := Calculate(nil, StreakBonus, streak)
		if err != nil {
			t.Fatalf("Calculate: %v", err)
		}
		if got != want {
			t.Errorf("bonus(%d) = %d, want %d", streak, got, want)
		}
	}
}

func TestCalculate_InvalidOutcome(t *testing.T) {
	_, err := Calculate(oneOff(nil, false), Outcome("bogus"), 0)
	if !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("err = %v, want ErrInvalidOutcome", err)
	}
	if _, err := ParseOutcome("nope"); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("ParseOutcome err = %v, want ErrInvalidOutcome", err)
	}
	if o, err := ParseOutcome(" ONTIME "); err != nil || o != OnTime {
		t.Errorf("ParseOutcome = %q, %v", o, err)
	}
}

func TestCalculate_OnTimeOutOfRangePriority(t *testing.T) {
	if _, err := Calculate(oneOff(intPtr(9), false), OnTime, 0); err == nil {
		t.Error("expected error for priority 9")
	}
}

func TestDailyTotal(t *testing.T) {
	want := []int{10, 15, 20, 25}
	for i, w := range want {
		if got := DailyTotal(i + 1); got != w {
			t.Errorf("DailyTotal(%d) = %d, want %d", i+1, got, w)
		}
	}
}

func TestIsOnTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if !IsOnTime(nil, now) {
		t.Error("no due date should be on time")
	}
	if !IsOnTime(&future, now) {
		t.Error("future due date should be on time")
	}
	if !IsOnTime(&now, now) {
		t.Error("completion exactly at due date should be on time")
	}
	if IsOnTime(&past, now) {
		t.Error("past due date should be late")
	}
}

func TestStreakContinues(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		last time.Time
		want bool
	}{
		{"same day", now.Add(-10 * time.Minute), true},
		{"late yesterday", time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC), true},
		{"early yesterday", time.Date(2026, 3, 9, 0, 1, 0, 0, time.UTC), true},
		{"two days ago", time.Date(2026, 3, 8, 23, 59, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := tt.last
			if got := StreakContinues(&last, now); got != tt.want {
				t.Errorf("StreakContinues = %v, want %v", got, tt.want)
			}
		})
	}
	if !StreakContinues(nil, now) {
		t.Error("no previous completion should continue")
	}
}
