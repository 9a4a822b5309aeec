package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spigell/hh-assistant/internal/apply"
	"github.com/spigell/hh-assistant/internal/models"
	"go.uber.org/zap"
)

var applyCmd = &cobra.Command{
	Use:   "apply posting-id...",
	Short: "Apply to postings on behalf of a user",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{})
		if err != nil {
			return err
		}
		defer c.Close()

		userID, _ := cmd.Flags().GetString("user")
		letterFile, _ := cmd.Flags().GetString("letter-file")
		yes, _ := cmd.Flags().GetBool("yes")

		letter := ""
		if letterFile != "" {
			data, err := os.ReadFile(letterFile)
			if err != nil {
				return fmt.Errorf("reading cover letter: %w", err)
			}
			letter = strings.TrimSpace(string(data))
		}

		if !yes {
			confirm := promptui.Prompt{
				Label:     fmt.Sprintf("Apply to %d posting(s)", len(args)),
				IsConfirm: true,
			}
			if _, err := confirm.Run(); err != nil {
				if errors.Is(err, promptui.ErrAbort) {
					c.logger.Info("cancelled")
					return nil
				}
				return err
			}
		}

		return applyAndPrint(ctx, cmd, c, userID, args, letter)
	},
}

func init() {
	applyCmd.Flags().String("user", "", "user id")
	applyCmd.Flags().String("letter-file", "", "cover letter used for every posting instead of a generated one")
	applyCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	_ = applyCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(applyCmd)
}

func applyAndPrint(ctx context.Context, cmd *cobra.Command, c *components, userID string, postingIDs []string, letter string) error {
	outcomes, err := c.orchestrator.Apply(ctx, apply.Request{
		UserID:      userID,
		PostingIDs:  postingIDs,
		CoverLetter: letter,
	})
	if err != nil {
		return err
	}

	var sent int
	for _, o := range outcomes {
		if o.Kind == models.OutcomeSucceeded {
			sent++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-15s %s %s: %s\n", o.Kind, o.PostingID, o.Title, o.Message)
	}

	c.logger.Info("apply finished", zap.Int("requested", len(outcomes)), zap.Int("succeeded", sent))
	return nil
}
