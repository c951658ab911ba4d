package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/budget"
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Apply approved budget changes with rollback on failure",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ads, err := initGoogleAds()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		decisions, err := st.ListApprovedDecisions(ctx)
		if err != nil {
			return eris.Wrap(err, "execute: load approvals")
		}
		if len(decisions) == 0 {
			zap.L().Info("execute: no pending approvals")
			return nil
		}

		res := budget.NewEngine(ads, st).ExecuteApproved(ctx, decisions)
		zap.L().Info("execute complete",
			zap.Int("approvals", len(decisions)),
			zap.Int("success", res.SuccessCount),
			zap.Int("failed", res.FailureCount),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(executeCmd)
}
