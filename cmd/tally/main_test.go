package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/tally/internal/completion"
	"github.com/HendryAvila/tally/internal/config"
	"github.com/HendryAvila/tally/internal/store"
	"github.com/HendryAvila/tally/internal/todo"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "tally v") {
		t.Errorf("out = %q", out)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	out, err := execute(t, "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("out = %q", out)
	}
	if _, err := config.Load(path); err != nil {
		t.Errorf("written config does not load: %v", err)
	}
	if _, err := execute(t, "config", "init", "--config", path); err == nil {
		t.Error("second config init should fail")
	}
}

// seed opens the data dir directly and completes an aspirational task for
// user-1 so the points command has something to show.
func seed(t *testing.T, dataDir string) string {
	t.Helper()
	st, err := store.New(store.Config{DataDir: dataDir})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()

	orch, err := completion.New(st)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := todo.New(st, orch, todo.WithDefaults(todo.Defaults{AgentID: "tally", WorldID: "default"}))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	goal, err := svc.Create(ctx, todo.CreateInput{Name: "run a marathon", Type: "aspirational", RoomID: "room-1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Complete(ctx, goal.ID, completion.Context{EntityID: "user-1", WorldID: "default", RoomID: "room-1"}); err != nil {
		t.Fatal(err)
	}
	daily, err := svc.Create(ctx, todo.CreateInput{Name: "stretch", Type: "daily", RoomID: "room-1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Complete(ctx, daily.ID, completion.Context{}); err != nil {
		t.Fatal(err)
	}
	return daily.ID
}

func TestPointsAndResetDaily(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("TALLY_DATA_DIR", dataDir)
	configPath := filepath.Join(t.TempDir(), "missing.yaml")
	seed(t, dataDir)

	out, err := execute(t, "points", "user-1", "--config", configPath)
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	for _, want := range []string{"Points for user-1", "default/room-1", "50 pts", "Achieved goal: run a marathon"} {
		if !strings.Contains(out, want) {
			t.Errorf("points output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "points", "nobody", "--config", configPath)
	if err != nil || !strings.Contains(out, "No points yet.") {
		t.Errorf("empty points = %q, err = %v", out, err)
	}

	out, err = execute(t, "reset-daily", "--config", configPath)
	if err != nil {
		t.Fatalf("reset-daily: %v", err)
	}
	if !strings.Contains(out, "Reset 1 daily task(s)") {
		t.Errorf("reset-daily output = %q", out)
	}
}

func TestPoints_RequiresEntity(t *testing.T) {
	if _, err := execute(t, "points"); err == nil {
		t.Error("points without an entity should fail")
	}
}
