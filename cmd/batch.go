package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adaptivedocs/corrigo/internal/engine"
	"github.com/adaptivedocs/corrigo/internal/ingest"
	"github.com/adaptivedocs/corrigo/internal/model"
)

var (
	batchFile      string
	batchLimit     int
	batchSheetName string
	batchSkipRows  int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Decide invoices from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var invoices []model.Invoice
		switch strings.ToLower(filepath.Ext(batchFile)) {
		case ".csv":
			invoices, err = ingest.ReadCSV(batchFile)
		case ".xlsx":
			invoices, err = ingest.ReadXLSX(batchFile, ingest.XLSXOptions{
				SheetName: batchSheetName,
				SkipRows:  batchSkipRows,
			})
		default:
			return eris.Errorf("unsupported file type: %s", batchFile)
		}
		if err != nil {
			return err
		}

		return processBatch(ctx, eng, invoices, batchLimit, cfg.Batch.MaxConcurrent)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "path to CSV or XLSX invoice file (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of invoices to process (0 = all)")
	batchCmd.Flags().StringVar(&batchSheetName, "sheet", "", "XLSX sheet name (default first sheet)")
	batchCmd.Flags().IntVar(&batchSkipRows, "skip-rows", 0, "rows to skip before the XLSX header")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

// processBatch decides invoices concurrently. Individual failures never
// abort the batch.
func processBatch(ctx context.Context, eng *engine.Engine, invoices []model.Invoice, limit, concurrency int) error {
	if len(invoices) == 0 {
		zap.L().Info("no invoices found in input file")
		return nil
	}
	if limit > 0 && len(invoices) > limit {
		invoices = invoices[:limit]
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("invoices", len(invoices)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var autoApplied, escalated, blocked, failed atomic.Int64

	for _, inv := range invoices {
		g.Go(func() error {
			log := zap.L().With(
				zap.String("vendor", inv.Vendor),
				zap.String("invoice", inv.InvoiceNumber),
			)

			result, err := eng.Process(gctx, inv, nil)
			if err != nil {
				failed.Add(1)
				log.Error("decision failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			switch {
			case result.Duplicate:
				blocked.Add(1)
			case result.RequiresHumanReview:
				escalated.Add(1)
			default:
				autoApplied.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("auto_applied", autoApplied.Load()),
		zap.Int64("escalated", escalated.Load()),
		zap.Int64("blocked", blocked.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
