package todotools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tally/internal/store"
	"github.com/HendryAvila/tally/internal/todo"
)

// ListTool handles the todo_list MCP tool.
type ListTool struct {
	svc *todo.Service
}

// NewListTool creates a ListTool.
func NewListTool(svc *todo.Service) *ListTool {
	return &ListTool{svc: svc}
}

// Definition returns the MCP tool definition for todo_list.
func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("todo_list",
		mcp.WithDescription(
			"List todos grouped by world and room. Shows open tasks by default; "+
				"pass status='all' or status='completed' to see finished ones.",
		),
		mcp.WithString("room_id",
			mcp.Description("Only tasks in this room"),
		),
		mcp.WithString("world_id",
			mcp.Description("Only tasks in this world"),
		),
		mcp.WithString("entity_id",
			mcp.Description("Only tasks owned by this person"),
		),
		mcp.WithString("type",
			mcp.Description("Only tasks of this type: daily, one-off, aspirational"),
		),
		mcp.WithString("status",
			mcp.Description("open (default), completed, all"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags; a task must carry all of them"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of tasks (default: 50)"),
		),
	)
}

// Handle processes the todo_list tool call.
func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := store.TaskFilter{
		RoomID:   req.GetString("room_id", ""),
		WorldID:  req.GetString("world_id", ""),
		EntityID: req.GetString("entity_id", ""),
		Tags:     splitList(req.GetString("tags", "")),
		Limit:    intArg(req, "limit", 50),
	}
	if raw := req.GetString("type", ""); raw != "" {
		typ, err := store.ParseTaskType(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		f.Type = typ
	}
	status := strings.ToLower(req.GetString("status", "open"))
	switch status {
	case "open":
		open := false
		f.Completed = &open
	case "completed":
		done := true
		f.Completed = &done
	case "all":
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid status %q: must be one of: open, completed, all", status)), nil
	}

	tasks, err := t.svc.List(ctx, f)
	if err != nil {
		return toolError("list tasks", err), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No %s tasks found.", status)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d %s task(s)\n", len(tasks), status)
	for _, world := range todo.GroupTasks(tasks) {
		fmt.Fprintf(&b, "\n## World %s\n", world.WorldID)
		for _, room := range world.Rooms {
			fmt.Fprintf(&b, "\n### Room %s\n", room.RoomID)
			for _, task := range room.Tasks {
				b.WriteString(formatTask(task))
				b.WriteByte('\n')
			}
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}
