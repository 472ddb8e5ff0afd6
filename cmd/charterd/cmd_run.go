package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/charterd/internal/types"
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("user-id", "", "user id (default test_user)")
	runCmd.Flags().String("session-id", "", "session id (default test_session)")
	runCmd.Flags().Bool("quiet", false, "print only the final document")
}

var runCmd = &cobra.Command{
	Use:   "run <message>",
	Short: "Run the pipeline once and print the drafted document",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		a, err := newApp(cfg)
		if err != nil {
			return err
		}

		userID, _ := cmd.Flags().GetString("user-id")
		sessionID, _ := cmd.Flags().GetString("session-id")
		quiet, _ := cmd.Flags().GetBool("quiet")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var onProgress func(types.Record)
		if !quiet {
			onProgress = func(rec types.Record) {
				fmt.Fprintln(os.Stderr, rec.Text)
			}
		}
		res, err := a.runner.Execute(ctx, "", &types.InboundEvent{
			Source:    "cli",
			UserID:    userID,
			SessionID: sessionID,
			Text:      strings.Join(args, " "),
		}, onProgress)
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, res.Text)
		if !quiet && res.ArtifactID != "" {
			fmt.Fprintf(os.Stderr, "Saved as artifact %s (session %s, run %s).\n", res.ArtifactID, res.Session, res.RunID)
		}
		return nil
	},
}
