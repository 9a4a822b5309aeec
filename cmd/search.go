package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spigell/hh-assistant/internal/digest"
	"github.com/spigell/hh-assistant/internal/filtering"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/ranking"
	"github.com/spigell/hh-assistant/internal/source"
	"go.uber.org/zap"
)

const (
	PromptBack                = "Back"
	PromptApplyAll            = "Apply to all listed"
	PromptAppendToExcludeFile = "Append all listed to exclude file"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search every source and rank postings for the latest profile of a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		c, err := setup(ctx, setupOptions{})
		if err != nil {
			return err
		}
		defer c.Close()

		flags := cmd.Flags()
		userID, _ := flags.GetString("user")
		top, _ := flags.GetInt("top")
		interactive, _ := flags.GetBool("interactive")

		profile, err := c.store.LatestProfile(ctx, userID)
		if err != nil {
			return fmt.Errorf("loading the latest profile of %s: %w", userID, err)
		}

		q := source.QueryFromProfile(profile, c.cfg.Scheduler.Limit)
		if keywords, _ := flags.GetStringSlice("keywords"); len(keywords) > 0 {
			q.Keywords = keywords
		}
		if flags.Changed("location") {
			q.Location, _ = flags.GetString("location")
		}
		if flags.Changed("salary") {
			q.SalaryFloor, _ = flags.GetInt("salary")
		}
		if flags.Changed("experience") {
			exp, _ := flags.GetString("experience")
			q.Experience = models.ExperienceTier(exp)
		}
		if flags.Changed("limit") {
			q.Limit, _ = flags.GetInt("limit")
		}

		result, err := c.pipeline.Rank(ctx, profile, q)
		if err != nil {
			return err
		}

		for _, report := range result.Sources {
			if report.Err != nil {
				c.logger.Warn("source failed", zap.String("source", report.Source), zap.Error(report.Err))
			}
		}

		items := result.Top(top)
		if len(items) == 0 {
			c.logger.Info("no postings found", zap.Strings("keywords", q.Keywords))
			return nil
		}

		if !interactive {
			for _, item := range items {
				fmt.Fprintln(cmd.OutOrStdout(), label(item))
			}
			return nil
		}

		return manualApply(ctx, cmd, c, userID, items)
	},
}

func init() {
	flags := searchCmd.Flags()
	flags.String("user", "", "user id")
	flags.StringSlice("keywords", nil, "keywords overriding the ones derived from the profile")
	flags.String("location", "", "location overriding the desired one")
	flags.Int("salary", 0, "salary floor")
	flags.String("experience", "", "experience tier: junior, middle or senior")
	flags.Int("limit", source.DefaultLimit, "postings requested from each source")
	flags.Int("top", 20, "postings shown, 0 shows every posting")
	flags.BoolP("interactive", "i", false, "choose postings to apply to")
	_ = searchCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(searchCmd)
}

func label(item models.RankedPosting) string {
	p := item.Posting
	parts := []string{
		p.ID,
		fmt.Sprintf("%3.0f%%", item.Match.Score*100),
		p.Title,
		p.Employer,
	}
	if salary := digest.FormatSalary(p.Salary); salary != "" {
		parts = append(parts, salary)
	}
	if p.URL != "" {
		parts = append(parts, p.URL)
	}
	return strings.Join(parts, " / ")
}

// manualApply lets the user pick postings one by one until they go back.
func manualApply(ctx context.Context, cmd *cobra.Command, c *components, userID string, items []models.RankedPosting) error {
	excludeFile := c.cfg.Filters.ExcludeFile

	for len(items) > 0 {
		labels := make([]string, 0, len(items)+3)
		byLabel := make(map[string]models.RankedPosting, len(items))
		for _, item := range items {
			l := label(item)
			labels = append(labels, l)
			byLabel[l] = item
		}

		labels = append(labels, PromptApplyAll)
		if excludeFile != "" {
			labels = append(labels, PromptAppendToExcludeFile)
		}

		postingPrompt := promptui.Select{
			Label: "Choose a posting and press ENTER",
			Items: append(labels, PromptBack),
			Size:  15,
		}

		_, selected, err := postingPrompt.Run()
		if err != nil {
			return err
		}

		switch selected {
		case PromptBack:
			return nil
		case PromptAppendToExcludeFile:
			excluded, err := filtering.GetExcludedPostingsFromFile(excludeFile)
			if err != nil {
				return err
			}

			postings := make([]*models.Posting, 0, len(items))
			for _, item := range items {
				postings = append(postings, item.Posting)
			}
			excluded.Append(filtering.ToExcluded(postings))

			if err := excluded.ToFile(excludeFile); err != nil {
				return err
			}

			c.logger.Info("appended to exclude file", zap.String("filename", excludeFile), zap.Int("count", len(postings)))
			return nil
		case PromptApplyAll:
			ids := make([]string, 0, len(items))
			for _, item := range items {
				ids = append(ids, item.Posting.ID)
			}
			if err := applyAndPrint(ctx, cmd, c, userID, ids, ""); err != nil {
				return err
			}
			return nil
		default:
			item, ok := byLabel[selected]
			if !ok {
				return fmt.Errorf("there is no such posting: %s", selected)
			}

			if err := applyAndPrint(ctx, cmd, c, userID, []string{item.Posting.ID}, ""); err != nil {
				return err
			}

			items = ranking.Without(items, item.Posting.ID)
		}
	}

	return nil
}
