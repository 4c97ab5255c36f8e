package todotools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tally/internal/todo"
)

// CreateTool handles the todo_create MCP tool.
type CreateTool struct {
	svc *todo.Service
}

// NewCreateTool creates a CreateTool.
func NewCreateTool(svc *todo.Service) *CreateTool {
	return &CreateTool{svc: svc}
}

// Definition returns the MCP tool definition for todo_create.
func (t *CreateTool) Definition() mcp.Tool {
	return mcp.NewTool("todo_create",
		mcp.WithDescription(
			"Create a todo for someone in the current room. Use 'daily' for habits that reset every day, "+
				"'one-off' for tasks with an optional due date and priority, 'aspirational' for long-term goals.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Short task name (e.g. 'water the plants')"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Task type: daily, one-off, aspirational"),
		),
		mcp.WithString("room_id",
			mcp.Required(),
			mcp.Description("Room (conversation) the task belongs to; reminders are delivered there"),
		),
		mcp.WithString("entity_id",
			mcp.Description("Person the task is for (default: the agent)"),
		),
		mcp.WithString("world_id",
			mcp.Description("World the room belongs to (default: configured world)"),
		),
		mcp.WithString("description",
			mcp.Description("Optional longer description"),
		),
		mcp.WithNumber("priority",
			mcp.Description("One-off only: 1 (highest) to 4 (default)"),
		),
		mcp.WithBoolean("urgent",
			mcp.Description("One-off only: mark as urgent for a bonus on on-time completion"),
		),
		mcp.WithString("due_date",
			mcp.Description("One-off only: RFC 3339 timestamp or YYYY-MM-DD (end of day UTC)"),
		),
		mcp.WithString("tags",
			mcp.Description("Extra comma-separated tags"),
		),
	)
}

// Handle processes the todo_create tool call.
func (t *CreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := todo.CreateInput{
		Name:        req.GetString("name", ""),
		Type:        req.GetString("type", ""),
		RoomID:      req.GetString("room_id", ""),
		EntityID:    req.GetString("entity_id", ""),
		WorldID:     req.GetString("world_id", ""),
		Description: req.GetString("description", ""),
		IsUrgent:    boolArg(req, "urgent", false),
		Tags:        splitList(req.GetString("tags", "")),
	}
	if hasArg(req, "priority") {
		p := intArg(req, "priority", 0)
		in.Priority = &p
	}
	if raw := req.GetString("due_date", ""); strings.TrimSpace(raw) != "" {
		due, err := todo.ParseDueDate(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		in.DueDate = &due
	}

	task, err := t.svc.Create(ctx, in)
	if err != nil {
		return toolError("create task", err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Created %s task %q\n%s", task.Type, task.Name, formatTask(*task))), nil
}
