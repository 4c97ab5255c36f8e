package todotools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tally/internal/todo"
)

// ─── UpdateTool ──────────────────────────────────────────────────────────────

// UpdateTool handles the todo_update MCP tool.
type UpdateTool struct {
	svc *todo.Service
}

// NewUpdateTool creates an UpdateTool.
func NewUpdateTool(svc *todo.Service) *UpdateTool {
	return &UpdateTool{svc: svc}
}

// Definition returns the MCP tool definition for todo_update.
func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("todo_update",
		mcp.WithDescription(
			"Change a todo. Only the fields you pass are updated. Priority, urgent and due_date apply to one-off tasks; "+
				"recurring applies to daily tasks. Pass due_date='none' to remove a due date.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("ID of the task to update"),
		),
		mcp.WithString("name",
			mcp.Description("New task name"),
		),
		mcp.WithString("description",
			mcp.Description("New description"),
		),
		mcp.WithNumber("priority",
			mcp.Description("1 (highest) to 4"),
		),
		mcp.WithBoolean("urgent",
			mcp.Description("Mark or unmark as urgent"),
		),
		mcp.WithString("due_date",
			mcp.Description("RFC 3339 timestamp, YYYY-MM-DD, or 'none' to clear"),
		),
		mcp.WithString("recurring",
			mcp.Description("daily, weekly, monthly"),
		),
	)
}

// Handle processes the todo_update tool call.
func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := req.GetString("task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	var in todo.UpdateInput
	var changed []string
	if hasArg(req, "name") {
		name := req.GetString("name", "")
		in.Name = &name
		changed = append(changed, "name")
	}
	if hasArg(req, "description") {
		desc := req.GetString("description", "")
		in.Description = &desc
		changed = append(changed, "description")
	}
	if hasArg(req, "priority") {
		p := intArg(req, "priority", 0)
		in.Priority = &p
		changed = append(changed, "priority")
	}
	if hasArg(req, "urgent") {
		urgent := boolArg(req, "urgent", false)
		in.IsUrgent = &urgent
		changed = append(changed, "urgent")
	}
	if hasArg(req, "due_date") {
		raw := strings.TrimSpace(req.GetString("due_date", ""))
		switch strings.ToLower(raw) {
		case "", "none", "null":
			in.ClearDueDate = true
		default:
			due, err := todo.ParseDueDate(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			in.DueDate = &due
		}
		changed = append(changed, "due_date")
	}
	if hasArg(req, "recurring") {
		rec := req.GetString("recurring", "")
		in.Recurring = &rec
		changed = append(changed, "recurring")
	}
	if len(changed) == 0 {
		return mcp.NewToolResultError("nothing to update: pass at least one field"), nil
	}

	task, err := t.svc.Update(ctx, taskID, in)
	if err != nil {
		return toolError("update task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Updated %s of %q\n%s",
		strings.Join(changed, ", "), task.Name, formatTask(*task))), nil
}

// ─── DeleteTool ──────────────────────────────────────────────────────────────

// DeleteTool handles the todo_delete MCP tool.
type DeleteTool struct {
	svc *todo.Service
}

// NewDeleteTool creates a DeleteTool.
func NewDeleteTool(svc *todo.Service) *DeleteTool {
	return &DeleteTool{svc: svc}
}

// Definition returns the MCP tool definition for todo_delete.
func (t *DeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("todo_delete",
		mcp.WithDescription(
			"Delete a todo permanently, including its streaks. Points already earned stay in the ledger.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("ID of the task to delete"),
		),
	)
}

// Handle processes the todo_delete tool call.
func (t *DeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := req.GetString("task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	task, err := t.svc.Get(ctx, taskID)
	if err != nil {
		return toolError("delete task", err), nil
	}
	if err := t.svc.Delete(ctx, taskID); err != nil {
		return toolError("delete task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted %q (ID: %s)", task.Name, taskID)), nil
}
