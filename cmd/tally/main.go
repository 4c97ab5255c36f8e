// Tally: todos, streaks and points for conversational agents.
//
// Tally serves a todo and points subsystem to an agent over MCP (stdio) and
// to other hosts over a REST API, backed by a local SQLite file.
//
// Usage:
//
//	tally serve                 # MCP server (stdio) + REST API + background jobs
//	tally api                   # REST API + background jobs
//	tally reset-daily           # Reset today's daily tasks once
//	tally points <entity>       # Show an entity's points
//	tally config init           # Write the default config file
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/tally/internal/config"
	tallyserver "github.com/HendryAvila/tally/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the global flags.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "tally",
		Short:         "Tally - todos, streaks and points for conversational agents",
		Version:       tallyserver.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default ~/.tally/config.yaml)")

	root.AddCommand(
		serveCmd(opts),
		apiCmd(opts),
		resetDailyCmd(opts),
		pointsCmd(opts),
		configCmd(opts),
		versionCmd(),
	)
	return root
}

// load resolves the configuration from the --config flag.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger returns the process logger. It always writes to stderr so the
// MCP stdio channel on stdout stays clean.
func newLogger(w io.Writer) *log.Logger {
	return log.New(w, "tally: ", log.LstdFlags)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tally v%s\n", tallyserver.Version)
		},
	}
}
