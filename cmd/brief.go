package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/brief"
	"github.com/lixohealthcareequipment/growth-ops/internal/config"
	"github.com/lixohealthcareequipment/growth-ops/internal/mailer"
	"github.com/lixohealthcareequipment/growth-ops/pkg/anthropic"
	"github.com/lixohealthcareequipment/growth-ops/pkg/notion"
)

var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Generate, store and deliver the daily intelligence brief",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := config.Require("anthropic.key", cfg.Anthropic.Key); err != nil {
			return err
		}

		var sender brief.Sender
		if cfg.Brief.SendEmail {
			m, err := mailer.New(mailer.Config{
				Host: cfg.SMTP.Host,
				Port: cfg.SMTP.Port,
				User: cfg.SMTP.User,
				Pass: cfg.SMTP.Pass,
				From: cfg.SMTP.From,
				To:   cfg.SMTP.To,
			})
			if err != nil {
				return err
			}
			sender = m
		}

		var publisher brief.Publisher
		if cfg.Brief.PublishNotion {
			if err := config.Require("notion.token", cfg.Notion.Token, "notion.brief_db", cfg.Notion.BriefDB); err != nil {
				return err
			}
			publisher = brief.NewNotionPublisher(notion.NewClient(cfg.Notion.Token), cfg.Notion.BriefDB)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		gen := brief.NewGenerator(anthropic.NewClient(cfg.Anthropic.Key), st, sender, publisher, brief.Options{
			Company:   cfg.Brief.Company,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
		b, err := gen.Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("brief complete",
			zap.String("brief_id", b.ID),
			zap.Bool("send_email", cfg.Brief.SendEmail),
			zap.Bool("publish_notion", cfg.Brief.PublishNotion),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(briefCmd)
}
