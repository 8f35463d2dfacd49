package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adaptivedocs/corrigo/internal/monitoring"
	"github.com/adaptivedocs/corrigo/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		serverCfg := cfg.Server
		if servePort != 0 {
			serverCfg.Port = servePort
		}

		collector := monitoring.NewCollector(st, cfg.Engine.AutoApplyThreshold)
		return server.New(serverCfg, eng, st, collector).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
