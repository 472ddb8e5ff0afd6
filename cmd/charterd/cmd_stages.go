package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/charterd/internal/config"
	"github.com/user/charterd/internal/remote"
)

func init() {
	rootCmd.AddCommand(stagesCmd)
}

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Show the configured stages and fetch their discovery documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		resolver := remote.NewCardResolver(nil, &remote.RetryPolicy{MaxAttempts: 1})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		stages := cfg.StageMap()
		names := make([]string, 0, len(stages))
		for name := range stages {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tPROTOCOL\tAGENT\tURL\tSTATUS")
		for _, name := range names {
			st := stages[name]
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, st.Protocol, describeStage(ctx, resolver, st))
		}
		return w.Flush()
	},
}

func describeStage(ctx context.Context, resolver *remote.CardResolver, st config.StageConfig) string {
	if st.Protocol == config.ProtocolLLM {
		return "-\t-\tlocal model"
	}
	if st.CardURL == "" {
		return fmt.Sprintf("-\t%s\tno card", st.BaseURL)
	}
	card, err := resolver.Resolve(ctx, st.CardURL)
	if err != nil {
		return fmt.Sprintf("-\t%s\tunreachable: %v", st.CardURL, err)
	}
	return fmt.Sprintf("%s\t%s\tok", card.Name, card.URL)
}
