package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/charterd/internal/scheduler"
	"github.com/user/charterd/internal/server"
	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "charterd.pid")
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.gateway.Start(ctx)
	defer a.gateway.Stop()

	slog.Info("charterd started",
		"version", version,
		"data_dir", cfg.DataDir,
		"listen", cfg.Listen,
		"max_concurrent", cfg.MaxConcurrent,
		"max_iterations", cfg.Loop.MaxIterations,
		"stage_timeout", cfg.StageTimeout,
		"pid_file", pidFile,
	)
	for name, st := range cfg.StageMap() {
		slog.Info("stage configured", "stage", name, "protocol", st.Protocol, "card_url", st.CardURL, "state_key", st.StateKey)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Telegram adapter
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, a.gateway, a.sessions)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		a.deliveries.Register("telegram", adapter.Deliver)
		g.Go(func() error {
			adapter.Start(gctx)
			return nil
		})
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	// Scheduler
	sched := scheduler.New(a.tasks, func(task *state.Task) {
		if _, err := a.fireTask(gctx, task, ""); err != nil {
			slog.Error("cron task failed", "task", task.Name, "error", err)
		}
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()
	slog.Info("scheduler started", "tasks", len(sched.Scheduled()))

	// HTTP server
	srv := server.New(server.Options{
		Gateway:   a.gateway,
		Sessions:  a.sessions,
		Journal:   a.journal,
		Artifacts: a.artifacts,
		Tasks:     a.tasks,
		OnTask:    a.fireTask,
		Card:      server.OrchestratorCard(version),
	})
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		slog.Info("http server started", "listen", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-sigChan:
				if sig == syscall.SIGHUP {
					reexec(cfg.DataDir, pidFile)
					continue
				}
				slog.Info("shutting down", "signal", sig)
				cancel()
				return nil
			}
		}
	})

	return g.Wait()
}

// reexec replaces the process with a fresh copy of itself. It only
// returns if the exec fails.
func reexec(dataDir, pidFile string) {
	slog.Info("received SIGHUP, restarting")
	execPath, err := os.Executable()
	if err != nil {
		slog.Error("failed to get executable path", "error", err)
		return
	}
	os.Remove(pidFile)
	if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
		slog.Error("failed to re-exec", "error", err)
		if _, err := writePIDFile(dataDir); err != nil {
			slog.Error("failed to re-write PID file", "error", err)
		}
	}
}
