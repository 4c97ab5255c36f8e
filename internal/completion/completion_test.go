package completion_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/HendryAvila/tally/internal/completion"
	"github.com/HendryAvila/tally/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store *store.Store
	orch  *completion.Orchestrator
	clock *fakeClock
	logs  *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	s, err := store.New(store.Config{DataDir: t.TempDir()}, store.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	logs := &bytes.Buffer{}
	o, err := completion.New(s, completion.WithClock(clock.Now), completion.WithLogger(log.New(logs, "", 0)))
	if err != nil {
		t.Fatalf("completion.New: %v", err)
	}
	return &harness{store: s, orch: o, clock: clock, logs: logs}
}

var pointsCtx = completion.Context{EntityID: "user-1", WorldID: "world-1", RoomID: "room-1", AgentID: "agent-1"}

func (h *harness) create(t *testing.T, name string, typ store.TaskType, mutate func(*store.NewTask)) string {
	t.Helper()
	in := store.NewTask{
		AgentID: "agent-1", WorldID: "world-1", RoomID: "room-1", EntityID: "user-1",
		Name: name, Type: typ,
	}
	if mutate != nil {
		mutate(&in)
	}
	id, err := h.store.CreateTask(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return id
}

func (h *harness) complete(t *testing.T, id string, cc completion.Context) *completion.Result {
	t.Helper()
	res, err := h.orch.Complete(context.Background(), id, cc)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return res
}

func (h *harness) balance(t *testing.T) (current, total int) {
	t.Helper()
	acct, err := h.store.GetAccount(context.Background(), "user-1", "world-1", "room-1")
	if errors.Is(err, store.ErrNotFound) {
		return 0, 0
	}
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	return acct.CurrentPoints, acct.TotalPointsEarned
}

// ─── Construction ────────────────────────────────────────────────────────────

func TestNew_RequiresStore(t *testing.T) {
	if _, err := completion.New(nil); !errors.Is(err, completion.ErrNoStore) {
		t.Errorf("New(nil) err = %v, want ErrNoStore", err)
	}
	var s *store.Store
	if _, err := completion.New(s); !errors.Is(err, completion.ErrNoStore) {
		t.Errorf("New(typed nil) err = %v, want ErrNoStore", err)
	}
}

// ─── Daily ───────────────────────────────────────────────────────────────────

func TestComplete_DailyThreeDaysRunning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "stretch", store.TypeDaily, nil)

	wantStreak := []int{1, 2, 3}
	wantPoints := []int{10, 15, 20}
	for day := range wantStreak {
		if day > 0 {
			h.clock.Advance(24 * time.Hour)
			if _, err := h.orch.ResetDaily(ctx, "agent-1"); err != nil {
				t.Fatalf("ResetDaily: %v", err)
			}
		}
		res := h.complete(t, id, pointsCtx)
		if res.Status != completion.Resolved {
			t.Fatalf("day %d: status = %s", day+1, res.Status)
		}
		if res.Streak == nil || *res.Streak != wantStreak[day] {
			t.Errorf("day %d: streak = %v, want %d", day+1, res.Streak, wantStreak[day])
		}
		if res.Points != wantPoints[day] {
			t.Errorf("day %d: points = %d, want %d", day+1, res.Points, wantPoints[day])
		}
	}

	current, total := h.balance(t)
	if current != 45 || total != 45 {
		t.Errorf("balance = %d/%d, want 45/45", current, total)
	}

	task, _ := h.store.GetTask(ctx, id)
	if task.Metadata[store.MetaCompletedToday] != true {
		t.Errorf("completedToday = %v, want true", task.Metadata[store.MetaCompletedToday])
	}
	if v, ok := task.Metadata[store.MetaStreak].(float64); !ok || v != 3 {
		t.Errorf("metadata streak = %v, want 3", task.Metadata[store.MetaStreak])
	}
}

func TestComplete_DailyStreakDecaysAfterGap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "read", store.TypeDaily, nil)

	for day := 0; day < 2; day++ {
		if day > 0 {
			h.clock.Advance(24 * time.Hour)
			_, _ = h.orch.ResetDaily(ctx, "agent-1")
		}
		h.complete(t, id, pointsCtx)
	}

	h.clock.Advance(72 * time.Hour)
	_, _ = h.orch.ResetDaily(ctx, "agent-1")
	res := h.complete(t, id, pointsCtx)
	if res.Streak == nil || *res.Streak != 1 {
		t.Fatalf("streak after gap = %v, want 1", res.Streak)
	}
	if res.Points != 10 {
		t.Errorf("points after gap = %d, want 10", res.Points)
	}

	st, _ := h.store.GetOrCreateStreak(ctx, id, "user-1")
	if st.Longest != 2 {
		t.Errorf("longest = %d, want 2", st.Longest)
	}
}

func TestComplete_DailyWithoutContextCountsStreakOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "walk", store.TypeDaily, nil)

	res := h.complete(t, id, completion.Context{})
	if res.Status != completion.Resolved {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Points != 0 || res.Balance != nil {
		t.Errorf("points = %d balance = %v, want none", res.Points, res.Balance)
	}
	if res.Streak == nil || *res.Streak != 1 {
		t.Errorf("streak = %v, want 1", res.Streak)
	}
	st, _ := h.store.GetOrCreateStreak(ctx, id, "user-1")
	if st.Current != 1 {
		t.Errorf("owner streak = %d, want 1", st.Current)
	}
	txs, _ := h.store.ListTransactions(ctx, "user-1")
	if len(txs) != 0 {
		t.Errorf("transactions = %d, want 0", len(txs))
	}
}

func TestComplete_DailyTwiceWithoutResetIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "vitamins", store.TypeDaily, nil)

	h.complete(t, id, pointsCtx)
	res := h.complete(t, id, pointsCtx)
	if res.Status != completion.AlreadyComplete {
		t.Errorf("second status = %s, want already_complete", res.Status)
	}
	txs, _ := h.store.ListTransactions(ctx, "user-1")
	if len(txs) != 1 {
		t.Errorf("transactions = %d, want 1", len(txs))
	}
}

// ─── One-off ─────────────────────────────────────────────────────────────────

func TestComplete_OneOffLateIsFlat(t *testing.T) {
	h := newHarness(t)
	yesterday := h.clock.Now().Add(-24 * time.Hour)
	id := h.create(t, "submit report", store.TypeOneOff, func(in *store.NewTask) {
		p := 1
		in.Priority = &p
		in.IsUrgent = true
		in.DueDate = &yesterday
	})

	res := h.complete(t, id, pointsCtx)
	if res.OnTime == nil || *res.OnTime {
		t.Errorf("on time = %v, want false", res.OnTime)
	}
	if res.Points != 5 {
		t.Errorf("points = %d, want 5", res.Points)
	}
	if res.Task == nil || res.Task.Metadata[store.MetaCompletedOnTime] != false {
		t.Errorf("metadata completedOnTime missing or true: %+v", res.Task)
	}
}

func TestComplete_OneOffOnTime(t *testing.T) {
	h := newHarness(t)
	tomorrow := h.clock.Now().Add(24 * time.Hour)
	id := h.create(t, "book dentist", store.TypeOneOff, func(in *store.NewTask) {
		p := 2
		in.Priority = &p
		in.IsUrgent = true
		in.DueDate = &tomorrow
	})

	res := h.complete(t, id, pointsCtx)
	if res.OnTime == nil || !*res.OnTime {
		t.Errorf("on time = %v, want true", res.OnTime)
	}
	if res.Points != 40 {
		t.Errorf("points = %d, want 40", res.Points)
	}
	if res.Balance == nil || *res.Balance != 40 {
		t.Errorf("balance = %v, want 40", res.Balance)
	}
}

func TestComplete_OneOffNoDueDateIsOnTime(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "tidy desk", store.TypeOneOff, nil)

	res := h.complete(t, id, pointsCtx)
	if res.OnTime == nil || !*res.OnTime || res.Points != 10 {
		t.Errorf("on time = %v points = %d, want true/10", res.OnTime, res.Points)
	}
}

// ─── Aspirational ────────────────────────────────────────────────────────────

func TestComplete_AspirationalFixedAward(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "run a marathon", store.TypeAspirational, nil)

	res := h.complete(t, id, pointsCtx)
	if res.Points != 50 {
		t.Errorf("points = %d, want 50", res.Points)
	}
	if res.Task == nil || !res.Task.IsCompleted {
		t.Error("task should be completed")
	}
	txs, _ := h.store.ListTransactions(ctx, "user-1")
	if len(txs) != 1 || txs[0].Amount != 50 {
		t.Errorf("transactions = %+v, want one of 50", txs)
	}
}

// ─── Outcomes ────────────────────────────────────────────────────────────────

func TestComplete_NotFoundAndRejected(t *testing.T) {
	h := newHarness(t)
	if res := h.complete(t, "missing", pointsCtx); res.Status != completion.NotFound {
		t.Errorf("status = %s, want not_found", res.Status)
	}
	if res := h.complete(t, " ", pointsCtx); res.Status != completion.Rejected {
		t.Errorf("status = %s, want rejected", res.Status)
	}
}

func TestComplete_ConcurrentAwardsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "pay rent", store.TypeOneOff, nil)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		resolved int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.orch.Complete(ctx, id, pointsCtx)
			if err != nil {
				t.Errorf("Complete: %v", err)
				return
			}
			if res.Status == completion.Resolved {
				mu.Lock()
				resolved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if resolved != 1 {
		t.Errorf("resolved = %d, want exactly 1", resolved)
	}
	txs, _ := h.store.ListTransactions(ctx, "user-1")
	if len(txs) != 1 {
		t.Errorf("transactions = %d, want 1", len(txs))
	}
}

type failingLedger struct {
	*store.Store
}

func (f failingLedger) ApplyTransaction(context.Context, store.TransactionInput) (int, error) {
	return 0, errors.New("disk full")
}

func TestComplete_StorageFailurePropagatesAndReleasesClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "fix bike", store.TypeAspirational, nil)

	logs := &bytes.Buffer{}
	o, err := completion.New(failingLedger{h.store}, completion.WithLogger(log.New(logs, "", 0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := o.Complete(ctx, id, pointsCtx); err == nil {
		t.Fatal("expected storage error")
	}
	task, _ := h.store.GetTask(ctx, id)
	if task.IsCompleted {
		t.Error("claim should be released after ledger failure")
	}
	if !bytes.Contains(logs.Bytes(), []byte("disk full")) {
		t.Errorf("failure not logged: %q", logs.String())
	}
}

func TestComplete_ReleaseKeepsReminderStamp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "fix bike", store.TypeAspirational, nil)
	if err := h.store.PatchMetadata(ctx, id, store.MetadataPatch{
		Set: map[string]any{store.MetaLastReminderSent: "2026-03-10T08:00:00Z"},
	}); err != nil {
		t.Fatalf("PatchMetadata: %v", err)
	}

	o, err := completion.New(failingLedger{h.store}, completion.WithLogger(log.New(&bytes.Buffer{}, "", 0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := o.Complete(ctx, id, pointsCtx); err == nil {
		t.Fatal("expected storage error")
	}

	task, _ := h.store.GetTask(ctx, id)
	if task.Metadata[store.MetaLastReminderSent] != "2026-03-10T08:00:00Z" {
		t.Errorf("reminder stamp lost on release: %v", task.Metadata)
	}
	if _, ok := task.Metadata[store.MetaCompletedAt]; ok {
		t.Errorf("completedAt should be removed on release: %v", task.Metadata)
	}
}

// reopeningLedger reopens the task right before the ledger write, so the
// completion audit can no longer be attached to a completed task.
type reopeningLedger struct {
	*store.Store
}

func (r reopeningLedger) ApplyTransaction(ctx context.Context, in store.TransactionInput) (int, error) {
	if err := r.Store.MarkIncomplete(ctx, in.TaskID, store.MetadataPatch{}); err != nil {
		return 0, err
	}
	return r.Store.ApplyTransaction(ctx, in)
}

func TestComplete_LedgerAndAuditCommitTogether(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "learn go", store.TypeAspirational, nil)

	o, err := completion.New(reopeningLedger{h.store}, completion.WithLogger(log.New(&bytes.Buffer{}, "", 0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := o.Complete(ctx, id, pointsCtx); !errors.Is(err, store.ErrNotCompleted) {
		t.Fatalf("Complete err = %v, want ErrNotCompleted", err)
	}

	txs, _ := h.store.ListTransactions(ctx, "user-1")
	if len(txs) != 0 {
		t.Errorf("transactions = %d, want 0 when the audit cannot be written", len(txs))
	}
	if current, _ := h.balance(t); current != 0 {
		t.Errorf("balance = %d, want 0", current)
	}
	task, _ := h.store.GetTask(ctx, id)
	if _, ok := task.Metadata[store.MetaPointsAwarded]; ok {
		t.Errorf("pointsAwarded written without a ledger entry: %v", task.Metadata)
	}
}

// ─── Uncomplete ──────────────────────────────────────────────────────────────

func TestUncomplete_ReversesPoints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "learn go", store.TypeAspirational, nil)
	h.complete(t, id, pointsCtx)

	res, err := h.orch.Uncomplete(ctx, id)
	if err != nil {
		t.Fatalf("Uncomplete: %v", err)
	}
	if res.Status != completion.Resolved || res.Points != -50 {
		t.Errorf("result = %+v, want resolved with -50", res)
	}
	if res.Task.IsCompleted || res.Task.CompletedAt != nil {
		t.Error("task should be incomplete")
	}
	for _, k := range []string{store.MetaPointsAwarded, store.MetaCompletedAt, store.MetaPointsEntityID} {
		if _, ok := res.Task.Metadata[k]; ok {
			t.Errorf("metadata %q should be removed", k)
		}
	}

	current, total := h.balance(t)
	if current != 0 || total != 50 {
		t.Errorf("balance = %d/%d, want 0/50", current, total)
	}
	txs, _ := h.store.ListTransactions(ctx, "user-1")
	sum := 0
	for _, tx := range txs {
		sum += tx.Amount
	}
	if sum != current {
		t.Errorf("ledger sum %d != balance %d", sum, current)
	}

	again, err := h.orch.Uncomplete(ctx, id)
	if err != nil {
		t.Fatalf("second Uncomplete: %v", err)
	}
	if again.Status != completion.NotCompleted {
		t.Errorf("second status = %s, want not_completed", again.Status)
	}
}

func TestUncomplete_NoPointsNoTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.create(t, "nap", store.TypeOneOff, nil)
	h.complete(t, id, completion.Context{})

	res, err := h.orch.Uncomplete(ctx, id)
	if err != nil {
		t.Fatalf("Uncomplete: %v", err)
	}
	if res.Points != 0 || res.Balance != nil {
		t.Errorf("result = %+v, want no points", res)
	}
	txs, _ := h.store.ListTransactions(ctx, "user-1")
	if len(txs) != 0 {
		t.Errorf("transactions = %d, want 0", len(txs))
	}
}

// ─── ResetDaily ──────────────────────────────────────────────────────────────

func TestResetDaily_RequiresAgent(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.ResetDaily(context.Background(), ""); !store.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestResetAllDaily_CoversEveryAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, "stretch", store.TypeDaily, nil)
	b := h.create(t, "read", store.TypeDaily, func(in *store.NewTask) { in.AgentID = "agent-2" })
	open := h.create(t, "walk", store.TypeDaily, func(in *store.NewTask) { in.AgentID = "agent-3" })
	h.complete(t, a, pointsCtx)
	h.complete(t, b, pointsCtx)

	n, err := h.orch.ResetAllDaily(ctx)
	if err != nil {
		t.Fatalf("ResetAllDaily: %v", err)
	}
	if n != 2 {
		t.Errorf("reset = %d, want 2", n)
	}
	for _, id := range []string{a, b, open} {
		task, _ := h.store.GetTask(ctx, id)
		if task.IsCompleted {
			t.Errorf("task %s still completed after rollover", task.Name)
		}
	}
}
