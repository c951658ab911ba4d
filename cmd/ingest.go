package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/ingest"
)

var ingestCustomers []string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull Google Ads campaigns into the campaign table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		customers := ingestCustomers
		if len(customers) == 0 {
			customers = cfg.GoogleAds.CustomerIDs
		}

		ads, err := initGoogleAds()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := ingest.NewIngester(ads, st, cfg.GoogleAds.Concurrency).Run(ctx, customers)
		if err != nil {
			return err
		}

		zap.L().Info("ingest complete",
			zap.Int("accounts", len(customers)),
			zap.Int("campaigns", n),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestCustomers, "customer", nil, "Google Ads customer IDs (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
