// Package server wires all Tally components together.
//
// This is the composition root: it opens the store, builds the services,
// registers MCP tools, prompts and resources, and prepares the REST API and
// the background jobs. No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/tally/internal/api"
	"github.com/HendryAvila/tally/internal/completion"
	"github.com/HendryAvila/tally/internal/config"
	"github.com/HendryAvila/tally/internal/prompts"
	"github.com/HendryAvila/tally/internal/reminder"
	"github.com/HendryAvila/tally/internal/resources"
	"github.com/HendryAvila/tally/internal/schedule"
	"github.com/HendryAvila/tally/internal/store"
	"github.com/HendryAvila/tally/internal/todo"
	"github.com/HendryAvila/tally/internal/todotools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App holds the wired components of one Tally process.
type App struct {
	cfg    *config.Config
	logger *log.Logger

	store *store.Store
	svc   *todo.Service
	mcp   *server.MCPServer
	api   *api.Server

	scanner *reminder.Scanner
	jobs    []*schedule.Runner
}

// New creates every component from cfg. The returned cleanup function stops
// the background jobs and closes the database; it is always non-nil and
// safe to call even when New fails.
func New(cfg *config.Config, logger *log.Logger) (*App, func(), error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = log.Default()
	}

	// --- Create shared dependencies ---

	st, err := store.New(store.Config{DataDir: cfg.DataDir})
	if err != nil {
		return nil, noop, fmt.Errorf("opening task store: %w", err)
	}

	orch, err := completion.New(st, completion.WithLogger(logger))
	if err != nil {
		_ = st.Close()
		return nil, noop, fmt.Errorf("creating completion orchestrator: %w", err)
	}

	svc, err := todo.New(st, orch, todo.WithDefaults(todo.Defaults{
		AgentID: cfg.AgentID,
		WorldID: cfg.WorldID,
	}))
	if err != nil {
		_ = st.Close()
		return nil, noop, fmt.Errorf("creating todo service: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		store:  st,
		svc:    svc,
		mcp:    newMCPServer(svc),
		api:    api.NewServer(svc, logger),
	}

	// --- Background jobs ---

	scanner, err := reminder.New(st,
		reminder.MultiNotifier{
			reminder.LogNotifier{Logger: logger},
			mcpNotifier{srv: a.mcp},
		},
		reminder.WithCooldown(cfg.Reminders.Cooldown),
		reminder.WithLogger(logger),
	)
	if err != nil {
		_ = st.Close()
		return nil, noop, fmt.Errorf("creating reminder scanner: %w", err)
	}
	a.scanner = scanner

	if cfg.Reminders.Enabled {
		r, err := schedule.New("reminders", cfg.Reminders.CheckInterval, scanner.Run, schedule.WithLogger(logger))
		if err != nil {
			_ = st.Close()
			return nil, noop, fmt.Errorf("creating reminder job: %w", err)
		}
		a.jobs = append(a.jobs, r)
	}
	if cfg.Rollover.Enabled {
		r, err := schedule.New("daily-rollover", cfg.Rollover.Interval, a.rollover, schedule.WithLogger(logger))
		if err != nil {
			_ = st.Close()
			return nil, noop, fmt.Errorf("creating rollover job: %w", err)
		}
		a.jobs = append(a.jobs, r)
	}

	return a, a.close, nil
}

// newMCPServer creates the MCP server with all tools, prompts and resources
// registered.
func newMCPServer(svc *todo.Service) *server.MCPServer {
	s := server.NewMCPServer(
		"tally",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register todo tools ---

	createTool := todotools.NewCreateTool(svc)
	s.AddTool(createTool.Definition(), createTool.Handle)

	listTool := todotools.NewListTool(svc)
	s.AddTool(listTool.Definition(), listTool.Handle)

	completeTool := todotools.NewCompleteTool(svc)
	s.AddTool(completeTool.Definition(), completeTool.Handle)

	uncompleteTool := todotools.NewUncompleteTool(svc)
	s.AddTool(uncompleteTool.Definition(), uncompleteTool.Handle)

	updateTool := todotools.NewUpdateTool(svc)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	deleteTool := todotools.NewDeleteTool(svc)
	s.AddTool(deleteTool.Definition(), deleteTool.Handle)

	pointsTool := todotools.NewPointsTool(svc)
	s.AddTool(pointsTool.Definition(), pointsTool.Handle)

	tagsTool := todotools.NewTagsTool(svc)
	s.AddTool(tagsTool.Definition(), tagsTool.Handle)

	// --- Register prompts ---

	reviewPrompt := prompts.NewReviewPrompt()
	s.AddPrompt(reviewPrompt.Definition(), reviewPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(svc)
	s.AddResource(resourceHandler.OpenTodosResource(), resourceHandler.HandleOpenTodos)

	return s
}

// MCP returns the MCP server for a stdio transport.
func (a *App) MCP() *server.MCPServer { return a.mcp }

// Service returns the todo service.
func (a *App) Service() *todo.Service { return a.svc }

// Scanner returns the reminder scanner.
func (a *App) Scanner() *reminder.Scanner { return a.scanner }

// HTTPServer returns an http.Server for the REST API on the configured
// address.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// StartJobs starts the enabled background jobs. They stop when ctx is
// canceled or on cleanup.
func (a *App) StartJobs(ctx context.Context) {
	for _, j := range a.jobs {
		j.Start(ctx)
	}
}

func (a *App) rollover(ctx context.Context) {
	n, err := a.svc.ResetAllDaily(ctx)
	if err != nil {
		a.logger.Printf("WARNING: daily rollover: %v", err)
	}
	if n > 0 {
		a.logger.Printf("daily rollover: reset %d task(s)", n)
	}
}

func (a *App) close() {
	for _, j := range a.jobs {
		j.Stop()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Printf("WARNING: task store close: %v", err)
	}
}

// noop is the cleanup returned when New fails.
func noop() {}
