package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/tally/internal/config"
	tallyserver "github.com/HendryAvila/tally/internal/server"
	"github.com/HendryAvila/tally/internal/todo"
	"github.com/HendryAvila/tally/internal/ui"
)

func resetDailyCmd(opts *options) *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "reset-daily",
		Short: "Reset completion on daily tasks once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			app, cleanup, err := tallyserver.New(cfg, newLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := app.Service().ResetDaily(cmd.Context(), agentID)
			if err != nil {
				return fmt.Errorf("resetting daily tasks: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Reset %d daily task(s) for %s\n",
				ui.IconDone, n, ui.Key.Render(firstNonEmpty(agentID, cfg.AgentID)))
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent whose tasks to reset (default: agent_id from config)")
	return cmd
}

func pointsCmd(opts *options) *cobra.Command {
	var worldID, roomID string
	var limit int
	cmd := &cobra.Command{
		Use:   "points <entity>",
		Short: "Show an entity's points balances and ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			app, cleanup, err := tallyserver.New(cfg, newLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer cleanup()

			view, err := app.Service().Points(cmd.Context(), args[0], worldID, roomID)
			if err != nil {
				return fmt.Errorf("loading points: %w", err)
			}
			printPoints(cmd.OutOrStdout(), args[0], view, limit)
			return nil
		},
	}
	cmd.Flags().StringVar(&worldID, "world", "", "world of a single balance (with --room)")
	cmd.Flags().StringVar(&roomID, "room", "", "room of a single balance (with --world)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "ledger entries to show")
	return cmd
}

func printPoints(w io.Writer, entityID string, view *todo.PointsView, limit int) {
	fmt.Fprintln(w, ui.Heading(ui.IconStar, "Points for "+entityID))

	if view.Account != nil {
		a := view.Account
		fmt.Fprintln(w, ui.LabelValue(a.WorldID+"/"+a.RoomID, ui.Balance(a.CurrentPoints)+
			ui.Muted.Render(fmt.Sprintf("  (%d earned)", a.TotalPointsEarned))))
		return
	}
	if len(view.Accounts) == 0 {
		fmt.Fprintln(w, ui.Muted.Render("No points yet."))
		return
	}
	for _, a := range view.Accounts {
		fmt.Fprintln(w, ui.LabelValue(a.WorldID+"/"+a.RoomID, ui.Balance(a.CurrentPoints)+
			ui.Muted.Render(fmt.Sprintf("  (%d earned)", a.TotalPointsEarned))))
	}

	if len(view.Transactions) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.H2.Render(ui.IconLedger+" Ledger"))
	for i, tx := range view.Transactions {
		if limit > 0 && i == limit {
			fmt.Fprintln(w, ui.Muted.Render(fmt.Sprintf("... %d older entries", len(view.Transactions)-limit)))
			break
		}
		fmt.Fprintf(w, "%s %6s  %s\n", ui.Muted.Render(tx.CreatedAt.Format("2006-01-02 15:04")), ui.Delta(tx.Amount), tx.Reason)
	}
}

func configCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", ui.IconDone, path)
			return nil
		},
	})
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
