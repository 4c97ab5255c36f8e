// Package prompts implements MCP prompt handlers for Tally.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to run a specific sequence of tool calls. Unlike tools
// (which the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReviewPrompt handles the todo-review MCP prompt.
// It asks the AI to walk someone through their open tasks and points.
type ReviewPrompt struct{}

// NewReviewPrompt creates a ReviewPrompt.
func NewReviewPrompt() *ReviewPrompt {
	return &ReviewPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("todo-review",
		mcp.WithPromptDescription(
			"Review open todos and points for a person: what is overdue, "+
				"which daily streaks are at risk, and what to tackle next.",
		),
		mcp.WithArgument("entity_id",
			mcp.ArgumentDescription("Person whose todos to review"),
		),
		mcp.WithArgument("room_id",
			mcp.ArgumentDescription("Limit the review to one room"),
		),
	)
}

// Handle processes the todo-review prompt request.
func (p *ReviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	var entityID, roomID string
	if args := req.Params.Arguments; args != nil {
		entityID = strings.TrimSpace(args["entity_id"])
		roomID = strings.TrimSpace(args["room_id"])
	}

	listCall := "`todo_list`"
	switch {
	case entityID != "" && roomID != "":
		listCall = fmt.Sprintf("`todo_list` with entity_id=%q and room_id=%q", entityID, roomID)
	case entityID != "":
		listCall = fmt.Sprintf("`todo_list` with entity_id=%q", entityID)
	case roomID != "":
		listCall = fmt.Sprintf("`todo_list` with room_id=%q", roomID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Please run %s to load the open todos", listCall)
	if entityID != "" {
		fmt.Fprintf(&b, ", then `todo_points` with entity_id=%q", entityID)
	}
	b.WriteString(".\n\nThen:\n" +
		"1. List overdue one-off tasks first, most important priority first\n" +
		"2. Call out daily tasks not done today, especially ones with a streak worth keeping\n" +
		"3. Mention aspirational goals briefly, without pressure\n" +
		"4. Suggest the one task to do next and why\n")
	if entityID != "" {
		b.WriteString("5. Close with the current points balance\n")
	}
	b.WriteString("\nKeep it short and encouraging. Do not complete or change any task unless I ask.")

	return &mcp.GetPromptResult{
		Description: "Todo Review",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(b.String()),
			},
		},
	}, nil
}
