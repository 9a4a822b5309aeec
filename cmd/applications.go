package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spigell/hh-assistant/internal/digest"
	"go.uber.org/zap"
)

var applicationsCmd = &cobra.Command{
	Use:     "applications",
	Aliases: []string{"apps"},
	Short:   "Inspect and update applications",
}

var applicationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List applications of a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{})
		if err != nil {
			return err
		}
		defer c.Close()

		userID, _ := cmd.Flags().GetString("user")
		since, _ := cmd.Flags().GetDuration("since")

		var from time.Time
		if since > 0 {
			from = time.Now().Add(-since)
		}

		apps, err := c.store.ListApplications(ctx, userID, from)
		if err != nil {
			return err
		}

		n := c.composer.Status(userID, apps, digest.TargetPlain)
		fmt.Fprintln(cmd.OutOrStdout(), n.Body)
		for _, a := range apps {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-10s posting %s, %d deliveries, %s\n",
				a.ID, a.Status, a.PostingID, a.Delivered(), a.CreatedAt.Format(time.DateTime))
		}
		return nil
	},
}

var applicationsRespondCmd = &cobra.Command{
	Use:   "respond application-id",
	Short: "Record an employer response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{})
		if err != nil {
			return err
		}
		defer c.Close()

		text, _ := cmd.Flags().GetString("text")
		if err := c.orchestrator.RecordResponse(ctx, args[0], text); err != nil {
			return err
		}
		c.logger.Info("response recorded", zap.String("application_id", args[0]))
		return nil
	},
}

var applicationsRejectCmd = &cobra.Command{
	Use:   "reject application-id",
	Short: "Mark an application as rejected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{})
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.orchestrator.Reject(ctx, args[0]); err != nil {
			return err
		}
		c.logger.Info("application rejected", zap.String("application_id", args[0]))
		return nil
	},
}

func init() {
	applicationsListCmd.Flags().String("user", "", "user id")
	applicationsListCmd.Flags().Duration("since", 0, "only applications created within this period, 0 lists all")
	_ = applicationsListCmd.MarkFlagRequired("user")

	applicationsRespondCmd.Flags().String("text", "", "response text")

	applicationsCmd.AddCommand(applicationsListCmd, applicationsRespondCmd, applicationsRejectCmd)
	rootCmd.AddCommand(applicationsCmd)
}
