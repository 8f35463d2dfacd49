package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adaptivedocs/corrigo/internal/config"
	"github.com/adaptivedocs/corrigo/internal/detect"
	"github.com/adaptivedocs/corrigo/internal/engine"
	"github.com/adaptivedocs/corrigo/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "corrigo",
	Short: "Confidence-scored invoice normalization",
	Long:  "Normalizes invoice fields using correction rules learned from reviewer feedback, with per-vendor and per-pattern confidence scores.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "corrigo.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEngine(ctx context.Context) (*engine.Engine, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}

	generators, err := detect.DefaultGenerators(cfg.Detect.SKUKeywordsPath)
	if err != nil {
		st.Close()
		return nil, nil, eris.Wrap(err, "init generators")
	}

	return engine.New(cfg.Engine, st, generators), st, nil
}
