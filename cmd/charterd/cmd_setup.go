package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/charterd/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("charterd setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Listen = ask(scanner, "Listen address", cfg.Listen)

		stages := []struct {
			label string
			st    *config.StageConfig
		}{
			{"Researcher", &cfg.Stages.Researcher},
			{"Judge", &cfg.Stages.Judge},
			{"Content builder", &cfg.Stages.ContentBuilder},
		}
		for _, s := range stages {
			s.st.Protocol = ask(scanner, s.label+" protocol (a2a, http, llm)", s.st.Protocol)
			if s.st.Protocol != config.ProtocolLLM {
				s.st.CardURL = ask(scanner, s.label+" discovery document URL", s.st.CardURL)
			}
		}

		if n, err := strconv.Atoi(ask(scanner, "Max research/review laps", strconv.Itoa(cfg.Loop.MaxIterations))); err == nil {
			cfg.Loop.MaxIterations = n
		}

		cfg.LLM.BaseURL = ask(scanner, "LLM base URL (for llm stages)", cfg.LLM.BaseURL)
		cfg.LLM.APIKey = ask(scanner, "LLM API key (optional)", cfg.LLM.APIKey)
		cfg.LLM.Model = ask(scanner, "LLM model name", cfg.LLM.Model)

		cfg.Telegram.Token = ask(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// ask displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func ask(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
