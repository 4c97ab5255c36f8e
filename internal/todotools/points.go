package todotools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/tally/internal/store"
	"github.com/HendryAvila/tally/internal/todo"
)

// maxLedgerLines caps the transactions shown by todo_points.
const maxLedgerLines = 10

// PointsTool handles the todo_points MCP tool.
type PointsTool struct {
	svc *todo.Service
}

// NewPointsTool creates a PointsTool.
func NewPointsTool(svc *todo.Service) *PointsTool {
	return &PointsTool{svc: svc}
}

// Definition returns the MCP tool definition for todo_points.
func (t *PointsTool) Definition() mcp.Tool {
	return mcp.NewTool("todo_points",
		mcp.WithDescription(
			"Show a person's points. With world_id and room_id, shows that one balance; "+
				"otherwise every balance plus recent ledger entries.",
		),
		mcp.WithString("entity_id",
			mcp.Required(),
			mcp.Description("Person whose points to show"),
		),
		mcp.WithString("world_id",
			mcp.Description("World of the balance"),
		),
		mcp.WithString("room_id",
			mcp.Description("Room of the balance"),
		),
	)
}

// Handle processes the todo_points tool call.
func (t *PointsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityID := req.GetString("entity_id", "")
	if entityID == "" {
		return mcp.NewToolResultError("'entity_id' is required"), nil
	}

	view, err := t.svc.Points(ctx, entityID, req.GetString("world_id", ""), req.GetString("room_id", ""))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultText(fmt.Sprintf("%s has no points in this room yet.", entityID)), nil
		}
		return toolError("load points", err), nil
	}

	var b strings.Builder
	if view.Account != nil {
		a := view.Account
		fmt.Fprintf(&b, "%s has %d points in %s/%s (%d earned in total)",
			entityID, a.CurrentPoints, a.WorldID, a.RoomID, a.TotalPointsEarned)
		return mcp.NewToolResultText(b.String()), nil
	}

	if len(view.Accounts) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("%s has no points yet.", entityID)), nil
	}
	fmt.Fprintf(&b, "## Points for %s\n\n", entityID)
	for _, a := range view.Accounts {
		fmt.Fprintf(&b, "- %s/%s: %d points (%d earned)\n", a.WorldID, a.RoomID, a.CurrentPoints, a.TotalPointsEarned)
	}
	if len(view.Transactions) > 0 {
		b.WriteString("\n## Recent activity\n\n")
		for i, tx := range view.Transactions {
			if i == maxLedgerLines {
				fmt.Fprintf(&b, "... and %d more\n", len(view.Transactions)-maxLedgerLines)
				break
			}
			fmt.Fprintf(&b, "- %s %+d %s\n", tx.CreatedAt.Format("2006-01-02"), tx.Amount, tx.Reason)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// TagsTool handles the todo_tags MCP tool.
type TagsTool struct {
	svc *todo.Service
}

// NewTagsTool creates a TagsTool.
func NewTagsTool(svc *todo.Service) *TagsTool {
	return &TagsTool{svc: svc}
}

// Definition returns the MCP tool definition for todo_tags.
func (t *TagsTool) Definition() mcp.Tool {
	return mcp.NewTool("todo_tags",
		mcp.WithDescription("List the tags in use across all todos, for filtering with todo_list."),
	)
}

// Handle processes the todo_tags tool call.
func (t *TagsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := t.svc.Tags(ctx)
	if err != nil {
		return toolError("list tags", err), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("No tags in use."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d tag(s): %s", len(tags), strings.Join(tags, ", "))), nil
}
