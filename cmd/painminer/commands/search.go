package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// SearchCmd runs one search to completion and prints its report.
var SearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search subreddits for pain points and print a report",
	Long: `Run a search job in the foreground. The job is stored like any API
submission; the report is printed once it reaches a terminal status.

Examples:
  painminer search "manual data entry" -s smallbusiness -s Entrepreneur
  painminer search --preset smb_finance --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var (
	searchSubreddits []string
	searchPreset     string
	searchFormat     string
	searchTop        int
	searchEvidence   bool
)

func init() {
	SearchCmd.Flags().StringSliceVarP(&searchSubreddits, "subreddit", "s", nil, "Subreddit to search (repeatable or comma separated)")
	SearchCmd.Flags().StringVarP(&searchPreset, "preset", "p", "", "Run a configured preset instead of query and subreddits")
	SearchCmd.Flags().StringVarP(&searchFormat, "format", "f", "text", "Report format: text, json, csv or html")
	SearchCmd.Flags().IntVar(&searchTop, "top", 10, "Posts listed in the text report")
	SearchCmd.Flags().BoolVar(&searchEvidence, "evidence", false, "Quote the sentences behind each signal in the text report")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := validFormat(searchFormat); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var query string
	if len(args) == 1 {
		query = args[0]
	}
	subreddits := searchSubreddits
	if searchPreset != "" {
		p, ok := a.cfg.Preset(searchPreset)
		if !ok {
			return fmt.Errorf("unknown preset %q (see painminer presets)", searchPreset)
		}
		if strings.TrimSpace(query) == "" {
			query = p.Query
		}
		if len(subreddits) == 0 {
			subreddits = p.Subreddits
		}
	}

	job, err := a.pipeline.Submit(ctx, query, subreddits)
	if err != nil {
		return err
	}
	a.logger.Info("search started", "job_id", job.ID, "query", job.Query, "subreddits", job.Sources)
	a.pipeline.Wait()

	details, err := a.pipeline.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	opts, err := textOptions(a.cfg, searchTop, searchEvidence)
	if err != nil {
		return err
	}
	return render(os.Stdout, details, searchFormat, opts)
}
