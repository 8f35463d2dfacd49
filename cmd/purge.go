package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	purgeDuplicates bool
	purgeVendors    bool
	purgePatterns   bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Reset learned memory",
	Long:  "Purges the duplicate ledger and/or resets rule stores. Rules are only ever reset whole; there is no per-key delete.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !purgeDuplicates && !purgeVendors && !purgePatterns {
			return eris.New("nothing to purge: pass --duplicates, --vendor-rules, or --pattern-rules")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if purgeDuplicates {
			n, err := st.PurgeDuplicates(ctx)
			if err != nil {
				return eris.Wrap(err, "purge duplicates")
			}
			fmt.Printf("purged %d duplicate records\n", n)
		}
		if purgeVendors {
			if err := st.ResetVendorRules(ctx); err != nil {
				return eris.Wrap(err, "reset vendor rules")
			}
			fmt.Println("vendor rules reset")
		}
		if purgePatterns {
			if err := st.ResetPatternRules(ctx); err != nil {
				return eris.Wrap(err, "reset pattern rules")
			}
			fmt.Println("pattern rules reset")
		}

		zap.L().Info("purge complete",
			zap.Bool("duplicates", purgeDuplicates),
			zap.Bool("vendor_rules", purgeVendors),
			zap.Bool("pattern_rules", purgePatterns),
		)
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeDuplicates, "duplicates", false, "purge the duplicate ledger")
	purgeCmd.Flags().BoolVar(&purgeVendors, "vendor-rules", false, "reset all vendor rules")
	purgeCmd.Flags().BoolVar(&purgePatterns, "pattern-rules", false, "reset all pattern rules")
	rootCmd.AddCommand(purgeCmd)
}
