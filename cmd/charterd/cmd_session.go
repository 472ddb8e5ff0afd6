package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionClearCmd)
	sessionShowCmd.Flags().Int("limit", 50, "number of most recent events to show")
}

func journal() (*state.Journal, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return state.NewJournal(cfg.DataDir), nil
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect journaled sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all journaled sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := journal()
		if err != nil {
			return err
		}

		ctx := context.Background()
		keys, err := j.Sessions(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(keys) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tEVENTS\tLAST EVENT")
		for _, key := range keys {
			count, err := j.Count(ctx, key)
			if err != nil {
				count = 0
			}
			last := "-"
			if tail, err := j.Tail(ctx, key, 1); err == nil && len(tail) == 1 {
				last = tail[0].At.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", key, count, last)
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <user_id:session_id>",
	Short: "Print the event log of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := journal()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		events, err := j.Tail(context.Background(), types.SessionKey(args[0]), limit)
		if err != nil {
			return fmt.Errorf("read session: %w", err)
		}
		if len(events) == 0 {
			return fmt.Errorf("session not found: %s", args[0])
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTIME\tTYPE\tAUTHOR\tTEXT")
		for _, ev := range events {
			text := ev.Text
			if ev.Escalate {
				text = "[escalate] " + text
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				ev.Seq,
				ev.At.Format("15:04:05"),
				ev.Type,
				ev.Author,
				oneLine(text, 80),
			)
		}
		return w.Flush()
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <user_id:session_id|all>",
	Short: "Delete the journal of a session or of all sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if args[0] == "all" {
			if err := os.RemoveAll(filepath.Join(cfg.DataDir, "sessions")); err != nil {
				return fmt.Errorf("remove sessions directory: %w", err)
			}
			fmt.Println("All sessions cleared.")
			return nil
		}

		j := state.NewJournal(cfg.DataDir)
		key := types.SessionKey(args[0])
		n, err := j.Count(context.Background(), key)
		if err != nil || n == 0 {
			return fmt.Errorf("session not found: %s", args[0])
		}
		if err := j.Remove(key); err != nil {
			return fmt.Errorf("remove session: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session %s cleared.\n", args[0])
		return nil
	},
}

// oneLine flattens text to a single line of at most n runes.
func oneLine(text string, n int) string {
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' || r == '\t' {
			runes[i] = ' '
		}
	}
	if len(runes) > n {
		return string(runes[:n-1]) + "…"
	}
	return string(runes)
}
