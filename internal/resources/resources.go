// Package resources implements MCP resource handlers for Tally.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (tally://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tally/internal/store"
)

// OpenTodosURI addresses the open tasks of the configured agent.
const OpenTodosURI = "tally://todos/open"

// TaskLister lists tasks. An empty AgentID in the filter means the
// configured agent.
type TaskLister interface {
	List(ctx context.Context, f store.TaskFilter) ([]store.Task, error)
}

// Handler manages Tally resource endpoints.
type Handler struct {
	tasks TaskLister
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(tasks TaskLister) *Handler {
	return &Handler{tasks: tasks}
}

// OpenTodosResource returns the MCP resource definition for open todos.
func (h *Handler) OpenTodosResource() mcp.Resource {
	return mcp.NewResource(
		OpenTodosURI,
		"Open Todos",
		mcp.WithResourceDescription("Open tasks of the agent, newest first, with tags and metadata"),
		mcp.WithMIMEType("application/json"),
	)
}

type openTodos struct {
	Count int          `json:"count"`
	Tasks []store.Task `json:"tasks"`
}

// HandleOpenTodos returns the open tasks as JSON.
func (h *Handler) HandleOpenTodos(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	open := false
	tasks, err := h.tasks.List(ctx, store.TaskFilter{Completed: &open})
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	if tasks == nil {
		tasks = []store.Task{}
	}

	data, err := json.MarshalIndent(openTodos{Count: len(tasks), Tasks: tasks}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling open todos: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
