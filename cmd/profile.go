package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/profile"
	"go.uber.org/zap"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Upload resumes",
}

var profileAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a profile from a resume file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{})
		if err != nil {
			return err
		}
		defer c.Close()

		userID, _ := cmd.Flags().GetString("user")
		file, _ := cmd.Flags().GetString("file")
		attach, _ := cmd.Flags().GetBool("attach")

		text, err := profile.ReadResume(file)
		if err != nil {
			return err
		}

		resumePath := ""
		if attach {
			resumePath = file
		}

		p, err := c.profiles.Ingest(ctx, userID, text, resumePath, overridesFromFlags(cmd.Flags()))
		if err != nil {
			return err
		}
		printProfile(cmd, c.logger, p)
		return nil
	},
}

var profileImportHHCmd = &cobra.Command{
	Use:   "import-hh",
	Short: "Create a profile from a resume published on hh.ru",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{})
		if err != nil {
			return err
		}
		defer c.Close()

		if c.hh == nil {
			return fmt.Errorf("headhunter is disabled")
		}

		userID, _ := cmd.Flags().GetString("user")
		title, _ := cmd.Flags().GetString("title")
		if title == "" {
			title = c.cfg.HeadHunter.ResumeTitle
		}

		p, err := c.profiles.ImportHH(ctx, c.hh, userID, title, overridesFromFlags(cmd.Flags()))
		if err != nil {
			return err
		}
		printProfile(cmd, c.logger, p)
		return nil
	},
}

func init() {
	profileAddCmd.Flags().String("file", "", "resume file (.txt, .md or .html)")
	profileAddCmd.Flags().Bool("attach", false, "attach the resume file to application emails")
	_ = profileAddCmd.MarkFlagRequired("file")

	profileImportHHCmd.Flags().String("title", "", "title of the hh.ru resume (default is headhunter.resume-title)")

	for _, c := range []*cobra.Command{profileAddCmd, profileImportHHCmd} {
		c.Flags().String("user", "", "user id")
		c.Flags().StringSlice("skills", nil, "skills overriding the extracted ones")
		c.Flags().Int("years", -1, "years of experience overriding the extracted value")
		c.Flags().String("title-wanted", "", "desired position")
		c.Flags().String("location", "", "desired location")
		c.Flags().String("salary", "", "salary expectation")
		_ = c.MarkFlagRequired("user")
		profileCmd.AddCommand(c)
	}

	rootCmd.AddCommand(profileCmd)
}

func overridesFromFlags(flags *pflag.FlagSet) profile.Overrides {
	var o profile.Overrides
	o.Skills, _ = flags.GetStringSlice("skills")
	o.Title, _ = flags.GetString("title-wanted")
	o.Location, _ = flags.GetString("location")
	o.SalaryExpectation, _ = flags.GetString("salary")
	if years, _ := flags.GetInt("years"); years >= 0 {
		o.ExperienceYears = &years
	}
	return o
}

func printProfile(cmd *cobra.Command, log *zap.Logger, p *models.Profile) {
	log.Info("profile created",
		zap.String("profile_id", p.ID),
		zap.String("user_id", p.UserID),
		zap.String("tier", string(models.TierForYears(p.ExperienceYears))),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "profile %s\n  title: %s\n  location: %s\n  skills: %s\n",
		p.ID, p.DesiredTitle, p.DesiredLocation, strings.Join(p.Skills, ", "))
}
