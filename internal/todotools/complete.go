package todotools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tally/internal/completion"
	"github.com/HendryAvila/tally/internal/store"
	"github.com/HendryAvila/tally/internal/todo"
)

// CompleteTool handles the todo_complete MCP tool.
type CompleteTool struct {
	svc *todo.Service
}

// NewCompleteTool creates a CompleteTool.
func NewCompleteTool(svc *todo.Service) *CompleteTool {
	return &CompleteTool{svc: svc}
}

// Definition returns the MCP tool definition for todo_complete.
func (t *CompleteTool) Definition() mcp.Tool {
	return mcp.NewTool("todo_complete",
		mcp.WithDescription(
			"Mark a todo as done and award points. Pass task_id when you know it, or query with what the person said "+
				"(e.g. 'I watered the plants') to match it against their open tasks in the room. "+
				"Pass entity_id and room_id so the points are credited to the right person.",
		),
		mcp.WithString("task_id",
			mcp.Description("ID of the task to complete"),
		),
		mcp.WithString("query",
			mcp.Description("Free text describing the finished task, used when task_id is unknown"),
		),
		mcp.WithString("entity_id",
			mcp.Description("Person who completed the task and receives the points"),
		),
		mcp.WithString("room_id",
			mcp.Description("Room the completion happened in; also scopes query matching"),
		),
		mcp.WithString("world_id",
			mcp.Description("World of the room (default: configured world)"),
		),
	)
}

// Handle processes the todo_complete tool call.
func (t *CompleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := strings.TrimSpace(req.GetString("task_id", ""))
	query := strings.TrimSpace(req.GetString("query", ""))
	if taskID == "" && query == "" {
		return mcp.NewToolResultError("either 'task_id' or 'query' is required"), nil
	}

	defaults := t.svc.Defaults()
	cc := completion.Context{
		EntityID: req.GetString("entity_id", ""),
		RoomID:   req.GetString("room_id", ""),
		WorldID:  req.GetString("world_id", defaults.WorldID),
		AgentID:  defaults.AgentID,
	}

	var (
		res *completion.Result
		err error
	)
	if taskID != "" {
		res, err = t.svc.Complete(ctx, taskID, cc)
	} else {
		res, _, err = t.svc.CompleteByQuery(ctx, query, store.TaskFilter{RoomID: cc.RoomID}, cc)
	}
	if err != nil {
		return toolError("complete task", err), nil
	}
	return resultToTool(res), nil
}

// UncompleteTool handles the todo_uncomplete MCP tool.
type UncompleteTool struct {
	svc *todo.Service
}

// NewUncompleteTool creates an UncompleteTool.
func NewUncompleteTool(svc *todo.Service) *UncompleteTool {
	return &UncompleteTool{svc: svc}
}

// Definition returns the MCP tool definition for todo_uncomplete.
func (t *UncompleteTool) Definition() mcp.Tool {
	return mcp.NewTool("todo_uncomplete",
		mcp.WithDescription(
			"Reopen a completed todo, e.g. when it was marked done by mistake. "+
				"Points awarded for the completion are taken back.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("ID of the task to reopen"),
		),
	)
}

// Handle processes the todo_uncomplete tool call.
func (t *UncompleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := req.GetString("task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}
	res, err := t.svc.Uncomplete(ctx, taskID)
	if err != nil {
		return toolError("reopen task", err), nil
	}
	return resultToTool(res), nil
}

// resultToTool renders a completion result. Anything but Resolved is a tool
// error so the agent does not report success.
func resultToTool(res *completion.Result) *mcp.CallToolResult {
	if res.Status != completion.Resolved {
		return mcp.NewToolResultError(res.Message)
	}

	var b strings.Builder
	b.WriteString(res.Message)
	if res.Streak != nil {
		fmt.Fprintf(&b, "\nStreak: %d day(s)", *res.Streak)
	}
	if res.OnTime != nil {
		if *res.OnTime {
			b.WriteString("\nCompleted on time")
		} else {
			b.WriteString("\nCompleted late")
		}
	}
	if res.Balance != nil {
		fmt.Fprintf(&b, "\nBalance: %d points", *res.Balance)
	}
	if res.Task != nil {
		b.WriteString("\n")
		b.WriteString(formatTask(*res.Task))
	}
	return mcp.NewToolResultText(b.String())
}
