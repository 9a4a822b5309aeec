package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Run a scheduled job once",
}

var digestDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Search and notify users about new relevant postings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{chat: true})
		if err != nil {
			return err
		}
		defer c.Close()

		if userID, _ := cmd.Flags().GetString("user"); userID != "" {
			notified, err := c.scheduler.RunDailyForUser(ctx, userID)
			if err != nil {
				return err
			}
			c.logger.Info("daily digest finished", zap.String("user_id", userID), zap.Int("notified", notified))
			return nil
		}

		report, err := c.scheduler.RunDaily(ctx)
		if err != nil {
			return err
		}
		c.logger.Info("daily digest finished",
			zap.Int("users", report.Users),
			zap.Int("notified", report.Notified),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
			zap.Int("resent", report.Resent),
		)
		return nil
	},
}

var digestWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Send the weekly application summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{chat: true})
		if err != nil {
			return err
		}
		defer c.Close()

		report, err := c.scheduler.RunWeekly(ctx)
		if err != nil {
			return err
		}
		c.logger.Info("weekly summary finished",
			zap.Int("users", report.Users),
			zap.Int("notified", report.Notified),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
		return nil
	},
}

func init() {
	digestDailyCmd.Flags().String("user", "", "only this user")
	digestCmd.AddCommand(digestDailyCmd, digestWeeklyCmd)
	rootCmd.AddCommand(digestCmd)
}
