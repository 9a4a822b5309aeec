package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/secrets"
	"go.uber.org/zap"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user and print its id",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{})
		if err != nil {
			return err
		}
		defer c.Close()

		flags := cmd.Flags()
		emailAddr, _ := flags.GetString("email")
		name, _ := flags.GetString("name")
		chatID, _ := flags.GetInt64("chat-id")
		passwordFile, _ := flags.GetString("email-password-file")

		password, err := secrets.Optional(secrets.Source{Name: "email password", File: passwordFile})
		if err != nil {
			return err
		}

		u := &models.User{
			Email:         emailAddr,
			FullName:      name,
			ChatID:        chatID,
			EmailPassword: password,
			Active:        true,
		}
		if flags.Changed("min-score") {
			minScore, _ := flags.GetFloat64("min-score")
			if minScore < 0 || minScore > 1 {
				return fmt.Errorf("min-score must be within [0, 1], got %v", minScore)
			}
			u.MinScore = &minScore
		}

		if err := c.store.UpsertUser(ctx, u); err != nil {
			return err
		}

		c.logger.Info("user created", zap.String("user_id", u.ID), zap.String("email", u.Email))
		fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		return nil
	},
}

func init() {
	userAddCmd.Flags().String("email", "", "email used as the reply address of applications")
	userAddCmd.Flags().String("name", "", "full name used to sign applications")
	userAddCmd.Flags().Int64("chat-id", 0, "telegram chat id, can be linked later with /start <user-id>")
	userAddCmd.Flags().Float64("min-score", 0, "relevance threshold for this user, overrides scheduler.threshold")
	userAddCmd.Flags().String("email-password-file", "", "file with the password of the user's mailbox to send from it")
	_ = userAddCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}
