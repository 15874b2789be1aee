package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/FranksOps/painminer/internal/analyzer"
	"github.com/FranksOps/painminer/internal/config"
	"github.com/FranksOps/painminer/internal/ranking"
	"github.com/FranksOps/painminer/internal/report"
	"github.com/spf13/cobra"
)

// DeepCmd scores the comments of a single thread.
var DeepCmd = &cobra.Command{
	Use:   "deep <thread-url>",
	Short: "Score the comments of one Reddit thread for pain",
	Long: `Fetch a thread with its replies (five levels deep) and list the comments
whose pain score reaches --min-pain. Nothing is stored.

Examples:
  painminer deep https://www.reddit.com/r/smallbusiness/comments/abc123/invoicing/
  painminer deep /r/freelance/comments/abc123/ --min-pain 5 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runDeep,
}

var (
	deepMinPain int
	deepTop     int
	deepFormat  string
)

func init() {
	DeepCmd.Flags().IntVar(&deepMinPain, "min-pain", ranking.MinCommentPain, "Lowest pain score listed")
	DeepCmd.Flags().IntVar(&deepTop, "top", 10, "Comments listed in the text report")
	DeepCmd.Flags().StringVarP(&deepFormat, "format", "f", "text", "Report format: text or json")
}

func runDeep(cmd *cobra.Command, args []string) error {
	if deepFormat != "text" && deepFormat != "json" {
		return fmt.Errorf("unsupported format %q (want text or json)", deepFormat)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	r, err := deepThread(cmd.Context(), cfg, logger, args[0], deepMinPain)
	if err != nil {
		return err
	}
	if deepFormat == "json" {
		return report.WriteThreadJSON(cmd.OutOrStdout(), r)
	}
	return report.WriteThread(cmd.OutOrStdout(), r, deepTop)
}

// deepThread fetches link and ranks its comments with the configured rules.
func deepThread(ctx context.Context, cfg *config.Config, logger *slog.Logger, link string, minPain int) (report.ThreadReport, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return report.ThreadReport{}, err
	}
	fetcher, err := newFetcher(cfg.Reddit, logger)
	if err != nil {
		return report.ThreadReport{}, err
	}

	thread, err := fetcher.Thread(ctx, link)
	if err != nil {
		return report.ThreadReport{}, err
	}
	logger.Debug("thread fetched", "post", thread.Post.NativeID, "comments", len(thread.Comments))

	ranker := ranking.New(analyzer.NewScorer(rules...))
	return report.ThreadReport{
		Post:          thread.Post,
		TotalComments: len(thread.Comments),
		Comments:      ranker.RankComments(thread.Comments, minPain),
	}, nil
}
