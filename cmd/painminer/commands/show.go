package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/FranksOps/painminer/internal/pipeline"
	"github.com/spf13/cobra"
)

// ShowCmd renders a stored search.
var ShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the report of a stored search",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var (
	showFormat   string
	showTop      int
	showEvidence bool
)

func init() {
	ShowCmd.Flags().StringVarP(&showFormat, "format", "f", "text", "Report format: text, json, csv or html")
	ShowCmd.Flags().IntVar(&showTop, "top", 10, "Posts listed in the text report")
	ShowCmd.Flags().BoolVar(&showEvidence, "evidence", false, "Quote the sentences behind each signal in the text report")
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid search id %q", args[0])
	}
	if err := validFormat(showFormat); err != nil {
		return err
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

	// Reads only; no source or summarizer is needed.
	p := pipeline.New(store, nil, nil, nil, pipeline.Config{}, logger)
	details, err := p.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("search %d: %w", id, err)
	}
	opts, err := textOptions(cfg, showTop, showEvidence)
	if err != nil {
		return err
	}
	return render(os.Stdout, details, showFormat, opts)
}
