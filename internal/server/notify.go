package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/tally/internal/reminder"
)

// mcpNotifier broadcasts reminders to connected MCP clients as log
// message notifications.
type mcpNotifier struct {
	srv *server.MCPServer
}

func (n mcpNotifier) Notify(_ context.Context, r reminder.Reminder) error {
	n.srv.SendNotificationToAllClients("notifications/message", reminderParams(r))
	return nil
}

func reminderParams(r reminder.Reminder) map[string]any {
	return map[string]any{
		"level":  mcp.LoggingLevelWarning,
		"logger": "tally.reminders",
		"data": map[string]any{
			"message":   r.Text(),
			"task_id":   r.TaskID,
			"room_id":   r.RoomID,
			"world_id":  r.WorldID,
			"entity_id": r.EntityID,
			"due_date":  r.DueDate,
		},
	}
}
