package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/adaptivedocs/corrigo/internal/monitoring"
)

var statsLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory and decision statistics",
	Long:  "Prints a metrics snapshot: rule counts, confidence averages, auto-apply and approval rates.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		collector := monitoring.NewCollector(st, cfg.Engine.AutoApplyThreshold)
		snapshot, err := collector.Collect(ctx, statsLimit)
		if err != nil {
			return eris.Wrap(err, "collect stats")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsLimit, "limit", 1000, "max number of runs to include in run-based rates")
	rootCmd.AddCommand(statsCmd)
}
