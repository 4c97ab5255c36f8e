package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	tallyserver "github.com/HendryAvila/tally/internal/server"
)

const shutdownTimeout = 5 * time.Second

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio), the REST API and background jobs",
		Long: `Start Tally for an agent host.

The MCP server speaks over stdin/stdout. When http.addr is set the REST API
listens there too. Reminder scans and the daily rollover run in the
background as configured.

Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "tally": {
        "command": "tally",
        "args": ["serve"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr)

			app, cleanup, err := tallyserver.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app.StartJobs(ctx)

			if cfg.HTTP.Addr != "" {
				srv := app.HTTPServer()
				go func() {
					logger.Printf("REST API listening on %s", srv.Addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Printf("WARNING: REST API stopped: %v", err)
					}
				}()
				defer shutdownHTTP(srv, logger.Printf)
			}

			return server.ServeStdio(app.MCP())
		},
	}
}

func apiCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Start only the REST API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if cfg.HTTP.Addr == "" {
				return errors.New("no listen address: set http.addr or pass --addr")
			}
			logger := newLogger(os.Stderr)

			app, cleanup, err := tallyserver.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app.StartJobs(ctx)

			srv := app.HTTPServer()
			errCh := make(chan error, 1)
			go func() {
				logger.Printf("REST API listening on %s", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("REST API: %w", err)
			case <-ctx.Done():
				shutdownHTTP(srv, logger.Printf)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func shutdownHTTP(srv *http.Server, logf func(string, ...any)) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logf("WARNING: REST API shutdown: %v", err)
	}
}
