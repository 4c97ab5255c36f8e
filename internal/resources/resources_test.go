package resources

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tally/internal/store"
)

type fakeLister struct {
	tasks []store.Task
	err   error
	got   store.TaskFilter
}

func (f *fakeLister) List(_ context.Context, filter store.TaskFilter) ([]store.Task, error) {
	f.got = filter
	return f.tasks, f.err
}

func read(t *testing.T, h *Handler) mcp.TextResourceContents {
	t.Helper()
	req := mcp.ReadResourceRequest{}
	req.Params.URI = OpenTodosURI
	contents, err := h.HandleOpenTodos(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleOpenTodos: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content type = %T", contents[0])
	}
	return tc
}

func TestOpenTodosResource(t *testing.T) {
	res := NewHandler(&fakeLister{}).OpenTodosResource()
	if res.URI != OpenTodosURI || res.MIMEType != "application/json" {
		t.Errorf("resource = %+v", res)
	}
}

func TestHandleOpenTodos(t *testing.T) {
	lister := &fakeLister{tasks: []store.Task{
		{ID: "t1", Name: "water the plants", Type: store.TypeDaily, Tags: []string{"TODO", "daily"}},
	}}
	tc := read(t, NewHandler(lister))

	if lister.got.Completed == nil || *lister.got.Completed {
		t.Errorf("filter = %+v, want open tasks only", lister.got)
	}
	if tc.MIMEType != "application/json" || tc.URI != OpenTodosURI {
		t.Errorf("contents = %+v", tc)
	}
	var body openTodos
	if err := json.Unmarshal([]byte(tc.Text), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Tasks[0].Name != "water the plants" {
		t.Errorf("body = %+v", body)
	}
}

func TestHandleOpenTodos_Empty(t *testing.T) {
	tc := read(t, NewHandler(&fakeLister{}))
	if !strings.Contains(tc.Text, `"tasks": []`) {
		t.Errorf("empty list should encode as []:\n%s", tc.Text)
	}
}

func TestHandleOpenTodos_Error(t *testing.T) {
	tc := read(t, NewHandler(&fakeLister{err: errors.New("disk on fire")}))
	if tc.MIMEType != "text/plain" || tc.Text != "Error: disk on fire" {
		t.Errorf("contents = %+v", tc)
	}
}
