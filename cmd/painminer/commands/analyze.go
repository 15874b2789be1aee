package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/FranksOps/painminer/internal/pipeline"
	"github.com/FranksOps/painminer/internal/report"
	"github.com/FranksOps/painminer/internal/storage"
	"github.com/FranksOps/painminer/internal/summarizer"
	"github.com/spf13/cobra"
)

// AnalyzeCmd re-runs opportunity analysis over a stored search.
var AnalyzeCmd = &cobra.Command{
	Use:   "analyze <id>",
	Short: "Re-run opportunity analysis over a stored search",
	Long: `Send the top posts of a stored search to the LLM again and print the
result. The stored search, its summary and its opportunities are left as
they are.

Examples:
  painminer analyze 12
  painminer analyze 12 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var analyzeFormat string

func init() {
	AnalyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "text", "Output format: text or json")
}

type analysisOutput struct {
	SearchID      int64                  `json:"searchId"`
	Query         string                 `json:"query"`
	Summary       string                 `json:"summary"`
	Outcome       string                 `json:"outcome"`
	Opportunities []*storage.Opportunity `json:"opportunities"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid search id %q", args[0])
	}
	if analyzeFormat != "text" && analyzeFormat != "json" {
		return fmt.Errorf("unsupported format %q (want text or json)", analyzeFormat)
	}

	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	sum, err := newSummarizer(cfg, logger)
	if err != nil {
		return err
	}

	out, err := analyzeJob(ctx, pipeline.New(store, nil, nil, nil, pipeline.Config{}, logger), sum, id)
	if err != nil {
		return err
	}
	if analyzeFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return report.WriteAnalysis(cmd.OutOrStdout(), out.SearchID, out.Summary, out.Opportunities)
}

// analyzeJob summarizes the stored posts of job id without writing anything
// back; the job's status and opportunities stay as the run left them.
func analyzeJob(ctx context.Context, p *pipeline.Pipeline, sum *summarizer.Summarizer, id int64) (analysisOutput, error) {
	d, err := p.Get(ctx, id)
	if err != nil {
		return analysisOutput{}, fmt.Errorf("search %d: %w", id, err)
	}
	res := sum.Summarize(ctx, d.Posts)
	for _, o := range res.Opportunities {
		o.JobID = id
	}
	if res.Opportunities == nil {
		res.Opportunities = []*storage.Opportunity{}
	}
	return analysisOutput{
		SearchID:      id,
		Query:         d.Query,
		Summary:       res.Summary,
		Outcome:       res.Outcome,
		Opportunities: res.Opportunities,
	}, nil
}
