package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/charterd/internal/config"
)

var version = "dev"

var (
	cfgPath      string
	flagLogLevel string
	flagDataDir  string
	flagListen   string
)

var rootCmd = &cobra.Command{
	Use:           "charterd",
	Short:         "Research, review, and draft AI constitutions with a pipeline of remote agents",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path (.json or .yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log_level")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override data_dir")
	rootCmd.PersistentFlags().StringVar(&flagListen, "listen", "", "override listen address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration with command-line overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath,
		config.WithLogLevel(flagLogLevel),
		config.WithDataDir(flagDataDir),
		config.WithListen(flagListen),
	)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
