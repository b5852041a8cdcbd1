// ciqual-mcp serves the ANSES Ciqual food composition database to MCP
// clients, building the local SQLite store from the upstream XML
// distribution on first run and refreshing it yearly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zzgael/ciqual-mcp/pkg/ciqual/config"
	"github.com/zzgael/ciqual-mcp/pkg/ciqual/gateway"
	"github.com/zzgael/ciqual-mcp/pkg/ciqual/ingest"
	"github.com/zzgael/ciqual-mcp/pkg/ciqual/mcpserver"
)

var (
	configPath string
	httpAddr   string
	forceFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "ciqual-mcp",
	Short: "MCP server for the ANSES Ciqual food composition database",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download the Ciqual dataset and rebuild the local store",
	Args:  cobra.NoArgs,
	RunE:  runIngest,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.Flags().StringVar(&httpAddr, "http", "", "serve MCP over HTTP on this address instead of stdio")
	ingestCmd.Flags().BoolVar(&forceFlag, "force", false, "rebuild the store even when it is fresh")
	rootCmd.AddCommand(ingestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger writes to stderr: stdout belongs to the MCP stdio transport.
func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.EnsureStoreDir(); err != nil {
		return config.Config{}, nil, fmt.Errorf("create store directory: %w", err)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	_, statErr := os.Stat(cfg.DBPath)
	hadStore := statErr == nil

	if err := ingest.NewPipeline(cfg, logger).Run(ctx, false); err != nil {
		if !hadStore {
			// No data at all: the server cannot answer anything.
			return fmt.Errorf("initialize store: %w", err)
		}
		// Freshness is best-effort; availability is not.
		logger.Warn("refresh failed, serving existing store", zap.Error(err))
	}

	srv := mcpserver.New(cfg, gateway.New(cfg, logger), logger)
	if httpAddr != "" {
		return srv.ServeHTTP(httpAddr)
	}
	return srv.ServeStdio()
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	return ingest.NewPipeline(cfg, logger).Run(cmd.Context(), forceFlag)
}
