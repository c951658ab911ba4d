package main

import (
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/config"
	"github.com/lixohealthcareequipment/growth-ops/internal/decision"
	"github.com/lixohealthcareequipment/growth-ops/pkg/openai"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Ask the decision model for a budget recommendation per campaign",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := config.Require("openai.key", cfg.OpenAI.Key); err != nil {
			return err
		}
		var aiOpts []option.RequestOption
		if cfg.OpenAI.BaseURL != "" {
			aiOpts = append(aiOpts, option.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		ai := openai.NewClient(cfg.OpenAI.Key, cfg.OpenAI.Model, aiOpts...)

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec := decision.NewRecommender(st, decision.NewAdvisor(ai, cfg.OpenAI.Model), decision.Policy{
			MaxBudgetChangePct: cfg.Policy.MaxBudgetChangePct,
			AllowedActions:     cfg.Policy.AllowedActions,
		})
		recs, err := rec.Run(ctx)
		if err != nil {
			return err
		}

		changes := 0
		for _, r := range recs {
			if r.NewBudget != r.OldBudget {
				changes++
			}
		}
		zap.L().Info("recommend complete",
			zap.Int("recommendations", len(recs)),
			zap.Int("budget_changes", changes),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)
}
