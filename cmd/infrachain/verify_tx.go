package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/logger"
	"github.com/spf13/cobra"
)

var verifyTimeout time.Duration

var verifyTxCmd = &cobra.Command{
	Use:   "verify-tx <hash>",
	Short: "Print the chain receipt status of a transaction",
	Long: `Look up a transaction receipt through the configured chain adapter.

Examples:
  infrachain verify-tx 0x5c50...e1f2
  infrachain verify-tx 0x5c50...e1f2 --config /etc/infrachain/config.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runVerifyTx,
}

func init() {
	verifyTxCmd.Flags().DurationVar(&verifyTimeout, "timeout", 30*time.Second, "overall lookup timeout")
}

func runVerifyTx(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	adapter := chain.NewAdapter(cfg.Chain)
	defer adapter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	result, err := adapter.VerifyTransaction(ctx, args[0])
	if err != nil {
		return fmt.Errorf("verify %s: %w", args[0], err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
