package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hb-chen/skillgate/internal/config"
	"github.com/hb-chen/skillgate/internal/mcp"
	"github.com/hb-chen/skillgate/pkg/logger"
)

// mcpCmd serves the skills over MCP on stdin/stdout. Logs never go to
// stdout, which carries the protocol.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve skills as MCP tools over stdio",
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

		// A blocked read on stdin only returns once the file is closed.
		go func() {
			<-ctx.Done()
			_ = os.Stdin.Close()
		}()

		srv := mcp.NewGatewayServer(cfg.Agent.ID, Version, pipeline)
		logger.Info("MCP server ready on stdio")
		if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
