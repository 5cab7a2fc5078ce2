package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hb-chen/skillgate/internal/config"
	"github.com/hb-chen/skillgate/internal/server"
	"github.com/hb-chen/skillgate/pkg/logger"
)

var (
	addrHTTP, addrGrpc string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long:  `Start the HTTP API and the gRPC health listener`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		pipeline, ledger, err := initPipeline(cfg)
		if err != nil {
			return err
		}
		defer closeLedger(ledger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Infof("Starting %s (%s)", cfg.Agent.ID, Version)
		if err := server.Serve(ctx, cfg, pipeline); err != nil {
			logger.Errorf("Server error: %v", err)
			return err
		}
		logger.Info("Server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&addrHTTP, "addr-http", "", "HTTP server address (overrides config file)")
	serveCmd.Flags().StringVar(&addrGrpc, "addr-grpc", "", "gRPC server address (overrides config file)")

	bindFlags(serveCmd.Name(), map[string]string{
		"server.http.addr": "addr-http",
		"server.grpc.addr": "addr-grpc",
	})

	rootCmd.AddCommand(serveCmd)
}
