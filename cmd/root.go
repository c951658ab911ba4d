package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "growth-ops",
	Short: "Marketing operations automation for ads budgets and CRM leads",
	Long:  "Ingests Google Ads campaigns, recommends guarded budget changes, executes approved changes with rollback, resolves lead identities from the CRM webhook and delivers a daily brief.",

	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
