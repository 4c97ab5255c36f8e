// Package todo is the application service behind the REST API and the MCP
// tools. It applies tag conventions and type rules before handing work to
// the task store and the completion orchestrator.
package todo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/HendryAvila/tally/internal/completion"
	"github.com/HendryAvila/tally/internal/resolve"
	"github.com/HendryAvila/tally/internal/store"
)

// Store is the slice of the task store the service reads and writes.
type Store interface {
	CreateTask(ctx context.Context, in store.NewTask) (string, error)
	GetTask(ctx context.Context, id string) (*store.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error)
	UpdateTask(ctx context.Context, id string, u store.TaskUpdate) error
	DeleteTask(ctx context.Context, id string) error
	ListTags(ctx context.Context) ([]string, error)
	GetAccount(ctx context.Context, entityID, worldID, roomID string) (*store.Account, error)
	ListAccounts(ctx context.Context, entityID string) ([]store.Account, error)
	ListTransactions(ctx context.Context, entityID string) ([]store.Transaction, error)
}

// Defaults fill identity fields callers leave empty.
type Defaults struct {
	AgentID string
	WorldID string
}

// Service implements the todo operations.
type Service struct {
	store    Store
	orch     *completion.Orchestrator
	resolver resolve.Resolver
	defaults Defaults
}

// Option customizes a Service.
type Option func(*Service)

// WithResolver replaces the free-text resolver.
func WithResolver(r resolve.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithDefaults sets the agent and world used when a request omits them.
func WithDefaults(d Defaults) Option {
	return func(s *Service) { s.defaults = d }
}

// New creates a Service.
func New(st Store, orch *completion.Orchestrator, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("todo: task store is required")
	}
	if orch == nil {
		return nil, errors.New("todo: completion orchestrator is required")
	}
	s := &Service{store: st, orch: orch, resolver: resolve.NameMatcher{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Defaults returns the configured identity defaults.
func (s *Service) Defaults() Defaults { return s.defaults }

// ─── Create ──────────────────────────────────────────────────────────────────

// CreateInput is a request to create a task.
type CreateInput struct {
	AgentID     string     `json:"agentId"`
	WorldID     string     `json:"worldId"`
	RoomID      string     `json:"roomId"`
	EntityID    string     `json:"entityId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Priority    *int       `json:"priority"`
	IsUrgent    bool       `json:"isUrgent"`
	DueDate     *time.Time `json:"dueDate"`
	Tags        []string   `json:"tags"`
}

// Create validates in, derives its tags and stores the task.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Task, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, store.Required("name")
	}
	if strings.TrimSpace(in.Type) == "" {
		return nil, store.Required("type")
	}
	typ, err := store.ParseTaskType(in.Type)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.RoomID) == "" {
		return nil, store.Required("roomId")
	}
	if typ == store.TypeOneOff && in.Priority != nil {
		if err := store.ValidatePriority(*in.Priority); err != nil {
			return nil, err
		}
	}

	agentID := firstNonEmpty(in.AgentID, s.defaults.AgentID)
	id, err := s.store.CreateTask(ctx, store.NewTask{
		AgentID:     agentID,
		WorldID:     firstNonEmpty(in.WorldID, s.defaults.WorldID),
		RoomID:      in.RoomID,
		EntityID:    firstNonEmpty(in.EntityID, agentID),
		Name:        in.Name,
		Description: in.Description,
		Type:        typ,
		Priority:    in.Priority,
		IsUrgent:    in.IsUrgent,
		DueDate:     in.DueDate,
		Tags:        CreateTags(typ, in.Priority, in.IsUrgent, in.Tags),
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetTask(ctx, id)
}

// ─── Read ────────────────────────────────────────────────────────────────────

// Get returns one task.
func (s *Service) Get(ctx context.Context, id string) (*store.Task, error) {
	return s.store.GetTask(ctx, id)
}

// List returns tasks matching f. An empty agent falls back to the default.
func (s *Service) List(ctx context.Context, f store.TaskFilter) ([]store.Task, error) {
	if f.AgentID == "" {
		f.AgentID = s.defaults.AgentID
	}
	return s.store.ListTasks(ctx, f)
}

// RoomGroup holds the tasks of one room.
type RoomGroup struct {
	RoomID string       `json:"roomId"`
	Tasks  []store.Task `json:"tasks"`
}

// WorldGroup holds the rooms of one world.
type WorldGroup struct {
	WorldID string      `json:"worldId"`
	Rooms   []RoomGroup `json:"rooms"`
}

// Grouped returns the agent's tasks grouped by world, then room. Worlds and
// rooms are sorted by id; tasks keep the store's newest-first order.
func (s *Service) Grouped(ctx context.Context, agentID string) ([]WorldGroup, error) {
	tasks, err := s.List(ctx, store.TaskFilter{AgentID: agentID})
	if err != nil {
		return nil, err
	}
	return GroupTasks(tasks), nil
}

// GroupTasks groups tasks by world and room.
func GroupTasks(tasks []store.Task) []WorldGroup {
	byWorld := map[string]map[string][]store.Task{}
	for _, t := range tasks {
		rooms, ok := byWorld[t.WorldID]
		if !ok {
			rooms = map[string][]store.Task{}
			byWorld[t.WorldID] = rooms
		}
		rooms[t.RoomID] = append(rooms[t.RoomID], t)
	}

	out := make([]WorldGroup, 0, len(byWorld))
	for worldID, rooms := range byWorld {
		wg := WorldGroup{WorldID: worldID, Rooms: make([]RoomGroup, 0, len(rooms))}
		for roomID, ts := range rooms {
			wg.Rooms = append(wg.Rooms, RoomGroup{RoomID: roomID, Tasks: ts})
		}
		sort.Slice(wg.Rooms, func(i, j int) bool { return wg.Rooms[i].RoomID < wg.Rooms[j].RoomID })
		out = append(out, wg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorldID < out[j].WorldID })
	return out
}

// Tags returns the distinct tags in use.
func (s *Service) Tags(ctx context.Context) ([]string, error) {
	return s.store.ListTags(ctx)
}

// PointsView is either a single account or every account of an entity with
// its full ledger.
type PointsView struct {
	Account      *store.Account      `json:"account,omitempty"`
	Accounts     []store.Account     `json:"accounts,omitempty"`
	Transactions []store.Transaction `json:"transactions,omitempty"`
}

// Points returns the entity's points. With both worldID and roomID it
// returns that one account (or ErrNotFound); otherwise all accounts plus
// the ledger, newest first.
func (s *Service) Points(ctx context.Context, entityID, worldID, roomID string) (*PointsView, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, store.Required("entityId")
	}
	if worldID != "" && roomID != "" {
		acct, err := s.store.GetAccount(ctx, entityID, worldID, roomID)
		if err != nil {
			return nil, err
		}
		return &PointsView{Account: acct}, nil
	}
	accounts, err := s.store.ListAccounts(ctx, entityID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return &PointsView{Accounts: accounts, Transactions: txs}, nil
}

// ─── Update ──────────────────────────────────────────────────────────────────

// UpdateInput is a partial update. Priority and IsUrgent apply to one-off
// tasks only; Recurring applies to daily tasks only.
type UpdateInput struct {
	Name         *string
	Description  *string
	Priority     *int
	IsUrgent     *bool
	DueDate      *time.Time
	ClearDueDate bool
	Recurring    *string
}

// Update applies in and recomputes the task's tags.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*store.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.Type != store.TypeOneOff {
		if in.Priority != nil {
			return nil, &store.ValidationError{Field: "priority", Message: "priority can only be set on one-off tasks"}
		}
		if in.IsUrgent != nil {
			return nil, &store.ValidationError{Field: "urgent", Message: "urgent can only be set on one-off tasks"}
		}
	}
	if in.Recurring != nil {
		if task.Type != store.TypeDaily {
			return nil, &store.ValidationError{Field: "recurring", Message: "recurring can only be set on daily tasks"}
		}
		if !recurrences[strings.ToLower(strings.TrimSpace(*in.Recurring))] {
			return nil, &store.ValidationError{
				Field:   "recurring",
				Message: fmt.Sprintf("invalid recurring value %q: must be one of: daily, weekly, monthly", *in.Recurring),
			}
		}
	}

	u := store.TaskUpdate{
		Name:         in.Name,
		Description:  in.Description,
		Priority:     in.Priority,
		IsUrgent:     in.IsUrgent,
		DueDate:      in.DueDate,
		ClearDueDate: in.ClearDueDate,
	}
	change := TagChange{Priority: in.Priority, IsUrgent: in.IsUrgent, Recurring: in.Recurring}
	if change != (TagChange{}) {
		u.Tags = RecomputeTags(task.Tags, change)
	}

	if err := s.store.UpdateTask(ctx, id, u); err != nil {
		return nil, err
	}
	return s.store.GetTask(ctx, id)
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteTask(ctx, id)
}

// ─── Completion ──────────────────────────────────────────────────────────────

// Complete completes a task by id.
func (s *Service) Complete(ctx context.Context, id string, cc completion.Context) (*completion.Result, error) {
	return s.orch.Complete(ctx, id, cc)
}

// Uncomplete reopens a task by id.
func (s *Service) Uncomplete(ctx context.Context, id string) (*completion.Result, error) {
	return s.orch.Uncomplete(ctx, id)
}

// ResetDaily runs the daily rollover for agentID, or the default agent.
func (s *Service) ResetDaily(ctx context.Context, agentID string) (int, error) {
	return s.orch.ResetDaily(ctx, firstNonEmpty(agentID, s.defaults.AgentID))
}

// ResetAllDaily runs the daily rollover for every agent with a completed
// daily task.
func (s *Service) ResetAllDaily(ctx context.Context) (int, error) {
	return s.orch.ResetAllDaily(ctx)
}

// Resolve picks the open task in scope that query refers to.
func (s *Service) Resolve(ctx context.Context, query string, scope store.TaskFilter) (resolve.Resolution, error) {
	open := false
	scope.Completed = &open
	candidates, err := s.List(ctx, scope)
	if err != nil {
		return resolve.Resolution{}, err
	}
	return s.resolver.Resolve(ctx, query, candidates)
}

// CompleteByQuery resolves query among the open tasks in scope and completes
// the match. Resolution failures wrap resolve.ErrNoMatch or
// resolve.ErrAmbiguous.
func (s *Service) CompleteByQuery(ctx context.Context, query string, scope store.TaskFilter, cc completion.Context) (*completion.Result, resolve.Resolution, error) {
	match, err := s.Resolve(ctx, query, scope)
	if err != nil {
		return nil, resolve.Resolution{}, err
	}
	res, err := s.orch.Complete(ctx, match.TaskID, cc)
	return res, match, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
