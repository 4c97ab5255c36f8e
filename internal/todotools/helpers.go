// Package todotools provides the MCP tool handlers an agent uses to manage
// todos and points on behalf of the people it talks to.
//
// Each tool follows the same shape:
// - a struct holding the todo.Service, injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Domain failures (validation, not found, conflicts, unresolved queries)
// come back as tool errors, never as Go errors.
package todotools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/HendryAvila/tally/internal/resolve"
	"github.com/HendryAvila/tally/internal/store"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// hasArg reports whether the caller passed key at all.
func hasArg(req mcp.CallToolRequest, key string) bool {
	_, ok := req.GetArguments()[key]
	return ok
}

// splitList parses a comma-separated argument.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// toolError turns a service error into a tool error the agent can act on.
func toolError(action string, err error) *mcp.CallToolResult {
	switch {
	case store.IsValidation(err):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, store.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s: task not found", action))
	case store.IsConflict(err):
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
	case errors.Is(err, resolve.ErrNoMatch), errors.Is(err, resolve.ErrAmbiguous):
		return mcp.NewToolResultError(fmt.Sprintf("%v. Call todo_list and pass task_id instead.", err))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
	}
}

// formatTask renders one task as a markdown list item.
func formatTask(t store.Task) string {
	var b strings.Builder
	if t.IsCompleted {
		b.WriteString("- [x] ")
	} else {
		b.WriteString("- [ ] ")
	}
	b.WriteString(t.Name)

	details := []string{string(t.Type)}
	if t.Type == store.TypeOneOff {
		details = append(details, fmt.Sprintf("P%d", t.EffectivePriority()))
	}
	if t.IsUrgent {
		details = append(details, "urgent")
	}
	if t.DueDate != nil {
		details = append(details, "due "+t.DueDate.Format("2006-01-02 15:04 UTC"))
	}
	if streak := cast.ToInt(t.Metadata[store.MetaStreak]); streak > 0 {
		details = append(details, fmt.Sprintf("streak %d", streak))
	}
	fmt.Fprintf(&b, " (%s) `%s`", strings.Join(details, ", "), t.ID)
	return b.String()
}
