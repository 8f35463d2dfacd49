package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/adaptivedocs/corrigo/internal/model"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect learned correction rules",
	Long:  "Commands for listing vendor and pattern rules with their confidence scores.",
}

var rulesVendorsCmd = &cobra.Command{
	Use:   "vendors",
	Short: "List vendor rules",
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

		rules, err := st.ListVendorRules(ctx)
		if err != nil {
			return eris.Wrap(err, "list vendor rules")
		}
		if len(rules) == 0 {
			fmt.Fprintln(os.Stderr, "No vendor rules learned yet.")
			return nil
		}

		formatVendorRules(os.Stdout, rules)
		return nil
	},
}

var rulesPatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List pattern rules",
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

		rules, err := st.ListPatternRules(ctx)
		if err != nil {
			return eris.Wrap(err, "list pattern rules")
		}
		if len(rules) == 0 {
			fmt.Fprintln(os.Stderr, "No pattern rules learned yet.")
			return nil
		}

		formatPatternRules(os.Stdout, rules)
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesVendorsCmd)
	rulesCmd.AddCommand(rulesPatternsCmd)
	rootCmd.AddCommand(rulesCmd)
}

func formatVendorRules(out io.Writer, rules []model.VendorRule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VENDOR\tSERVICE_DATE_LABEL\tCONFIDENCE\tAPPROVED\tREJECTED\tUPDATED")
	for _, r := range rules {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%d\t%d\t%s\n",
			r.Vendor, r.ServiceDateLabel, r.Confidence,
			r.ApprovedCount, r.RejectedCount,
			r.LastUpdated.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatPatternRules(out io.Writer, rules []model.PatternRule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PATTERN\tACTION\tCONFIDENCE\tAPPROVED\tREJECTED\tUPDATED")
	for _, r := range rules {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%d\t%d\t%s\n",
			r.PatternID, r.Action, r.Confidence,
			r.ApprovedCount, r.RejectedCount,
			r.LastUpdated.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
