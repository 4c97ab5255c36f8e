package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/HendryAvila/tally/internal/completion"
	"github.com/HendryAvila/tally/internal/store"
	"github.com/HendryAvila/tally/internal/todo"
)

const maxBodySize = 64 * 1024

// ─── Todos ───────────────────────────────────────────────────────────────────

func (s *Server) handleList(c *gin.Context) {
	groups, err := s.svc.Grouped(c.Request.Context(), c.Query("agentId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    groups,
	})
}

func (s *Server) handleGet(c *gin.Context) {
	task, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    task,
	})
}

type createRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Priority    *int     `json:"priority"`
	DueDate     *string  `json:"dueDate"`
	IsUrgent    bool     `json:"isUrgent"`
	RoomID      string   `json:"roomId"`
	WorldID     string   `json:"worldId"`
	EntityID    string   `json:"entityId"`
	AgentID     string   `json:"agentId"`
	Tags        []string `json:"tags"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := bindBody(c, &req); err != nil {
		badRequest(c, err.Error())
		return
	}

	in := todo.CreateInput{
		AgentID:     req.AgentID,
		WorldID:     req.WorldID,
		RoomID:      req.RoomID,
		EntityID:    req.EntityID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		IsUrgent:    req.IsUrgent,
		Tags:        req.Tags,
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := todo.ParseDueDate(*req.DueDate)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		in.DueDate = &due
	}

	task, err := s.svc.Create(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    task,
	})
}

func (s *Server) handleUpdate(c *gin.Context) {
	var raw map[string]json.RawMessage
	if err := bindBody(c, &raw); err != nil {
		badRequest(c, err.Error())
		return
	}
	in, err := parseUpdate(raw)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	task, err := s.svc.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    task,
	})
}

func (s *Server) handleDelete(c *gin.Context) {
	id := c.Param("id")
	if err := s.svc.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      id,
		"message": "Task deleted",
	})
}

// ─── Completion ──────────────────────────────────────────────────────────────

type completeRequest struct {
	EntityID string `json:"entityId"`
	RoomID   string `json:"roomId"`
	WorldID  string `json:"worldId"`
	AgentID  string `json:"agentId"`
}

func (s *Server) handleComplete(c *gin.Context) {
	var req completeRequest
	if err := bindBody(c, &req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := s.svc.Complete(c.Request.Context(), c.Param("id"), completion.Context(req))
	if err != nil {
		s.writeError(c, err)
		return
	}
	writeResult(c, res)
}

func (s *Server) handleUncomplete(c *gin.Context) {
	res, err := s.svc.Uncomplete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	writeResult(c, res)
}

func (s *Server) handleResetDaily(c *gin.Context) {
	var req struct {
		AgentID string `json:"agentId"`
	}
	if err := bindBody(c, &req); err != nil {
		badRequest(c, err.Error())
		return
	}
	n, err := s.svc.ResetDaily(c.Request.Context(), req.AgentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"reset":   n,
	})
}

// ─── Points & tags ───────────────────────────────────────────────────────────

func (s *Server) handlePoints(c *gin.Context) {
	view, err := s.svc.Points(c.Request.Context(), c.Param("entityId"), c.Query("worldId"), c.Query("roomId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    view,
	})
}

func (s *Server) handleTags(c *gin.Context) {
	tags, err := s.svc.Tags(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    tags,
		"count":   len(tags),
	})
}

// ─── Responses ───────────────────────────────────────────────────────────────

func writeResult(c *gin.Context, res *completion.Result) {
	switch res.Status {
	case completion.Resolved:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": res.Message,
			"data":    res,
		})
	case completion.NotFound:
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   res.Message,
		})
	default:
		badRequest(c, res.Message)
	}
}

// writeError maps service errors to status codes. Storage failures are
// logged and reported without detail.
func (s *Server) writeError(c *gin.Context, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		badRequest(c, verr.Error())
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "not found",
		})
	case store.IsConflict(err):
		badRequest(c, err.Error())
	default:
		s.logger.Printf("ERROR: api: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal error",
		})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}

// ─── Request parsing ─────────────────────────────────────────────────────────

// bindBody binds an optional JSON body into v. An empty body leaves v as is.
func bindBody(c *gin.Context, v any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	err := c.ShouldBindJSON(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooLarge):
		return errors.New("request body too large")
	default:
		return fmt.Errorf("invalid JSON body: %w", err)
	}
}

func parseUpdate(raw map[string]json.RawMessage) (todo.UpdateInput, error) {
	var in todo.UpdateInput
	for key, val := range raw {
		var err error
		switch key {
		case "name":
			in.Name = new(string)
			err = json.Unmarshal(val, in.Name)
		case "description":
			in.Description = new(string)
			err = json.Unmarshal(val, in.Description)
		case "priority":
			in.Priority = new(int)
			err = json.Unmarshal(val, in.Priority)
		case "urgent", "isUrgent":
			in.IsUrgent = new(bool)
			err = json.Unmarshal(val, in.IsUrgent)
		case "recurring":
			in.Recurring = new(string)
			err = json.Unmarshal(val, in.Recurring)
		case "dueDate":
			if string(val) == "null" {
				in.ClearDueDate = true
				continue
			}
			var s string
			if err = json.Unmarshal(val, &s); err == nil {
				var due time.Time
				due, err = todo.ParseDueDate(s)
				in.DueDate = &due
			}
		default:
			continue
		}
		if err != nil {
			return todo.UpdateInput{}, fmt.Errorf("invalid %s: %v", key, err)
		}
	}
	return in, nil
}
