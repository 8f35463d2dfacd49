package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adaptivedocs/corrigo/internal/model"
)

var runFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Decide a single invoice",
	Long:  "Reads one invoice from a JSON file, runs the decision loop, and prints the decision result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		data, err := os.ReadFile(runFile)
		if err != nil {
			return eris.Wrap(err, "read invoice file")
		}
		var inv model.Invoice
		if err := json.Unmarshal(data, &inv); err != nil {
			return eris.Wrap(err, "parse invoice file")
		}
		if inv.Vendor == "" || inv.InvoiceNumber == "" {
			return eris.New("invoice must have vendor and invoice_number")
		}

		result, err := eng.Process(ctx, inv, nil)
		if err != nil {
			return eris.Wrap(err, "process invoice")
		}

		zap.L().Info("decision complete",
			zap.String("run_id", result.RunID),
			zap.Bool("requires_review", result.RequiresHumanReview),
			zap.Bool("duplicate", result.Duplicate),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "path to invoice JSON file (required)")
	_ = runCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(runCmd)
}
