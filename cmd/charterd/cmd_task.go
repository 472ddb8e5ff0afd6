package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/charterd/internal/scheduler"
	"github.com/user/charterd/internal/state"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskRemoveCmd, taskEnableCmd, taskDisableCmd)

	taskAddCmd.Flags().String("name", "", "task name (required)")
	taskAddCmd.Flags().String("message", "", "assistant description sent to the pipeline (required)")
	taskAddCmd.Flags().String("schedule", "", "cron schedule expression")
	taskAddCmd.Flags().String("user-id", "", "user id for the task's session")
	taskAddCmd.Flags().String("session-id", "", "session id for the task's session")
	taskAddCmd.Flags().String("deliver-to", "", "delivery target, e.g. telegram:<chat id>, file:<path>, log:")
	_ = taskAddCmd.MarkFlagRequired("name")
	_ = taskAddCmd.MarkFlagRequired("message")
}

func taskStore() (*state.TaskStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return state.NewTaskStore(filepath.Join(cfg.DataDir, "tasks.json")), nil
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage named tasks fired by cron or webhook",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		message, _ := cmd.Flags().GetString("message")
		schedule, _ := cmd.Flags().GetString("schedule")
		userID, _ := cmd.Flags().GetString("user-id")
		sessionID, _ := cmd.Flags().GetString("session-id")
		deliverTo, _ := cmd.Flags().GetString("deliver-to")

		if schedule != "" {
			if err := scheduler.Validate(schedule); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}
		}

		store, err := taskStore()
		if err != nil {
			return err
		}
		task := &state.Task{
			Name:      name,
			Message:   message,
			Schedule:  schedule,
			UserID:    userID,
			SessionID: sessionID,
			DeliverTo: deliverTo,
			Enabled:   true,
		}
		if err := store.Add(task); err != nil {
			return fmt.Errorf("add task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %q added.\n", name)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := taskStore()
		if err != nil {
			return err
		}
		tasks, err := store.List()
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCHEDULE\tENABLED\tSESSION\tDELIVER TO")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
				t.Name,
				t.Schedule,
				t.Enabled,
				t.Inbound("", "").Key(),
				t.DeliverTo,
			)
		}
		return w.Flush()
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := taskStore()
		if err != nil {
			return err
		}
		if err := store.Remove(args[0]); err != nil {
			return fmt.Errorf("remove task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %q removed.\n", args[0])
		return nil
	},
}

var taskEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskEnabled(args[0], true)
	},
}

var taskDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskEnabled(args[0], false)
	},
}

func setTaskEnabled(name string, enabled bool) error {
	store, err := taskStore()
	if err != nil {
		return err
	}
	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	if err := store.SetEnabled(name, enabled); err != nil {
		return fmt.Errorf("set task %s: %w", verb, err)
	}
	fmt.Fprintf(os.Stdout, "Task %q %s. Restart the daemon to apply schedule changes.\n", name, verb)
	return nil
}
