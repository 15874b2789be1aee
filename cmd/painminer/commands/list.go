package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/FranksOps/painminer/internal/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ListCmd lists stored searches newest first.
var ListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored searches",
	RunE:    runList,
}

var (
	listStatus string
	listLimit  int
)

func init() {
	ListCmd.Flags().StringVar(&listStatus, "status", "", "Only show searches with this status (pending, completed, failed)")
	ListCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum searches to show (0 for all)")
}

func runList(cmd *cobra.Command, args []string) error {
	filter := storage.JobFilter{Limit: listLimit}
	if listStatus != "" {
		st, err := storage.ParseStatus(listStatus)
		if err != nil {
			return err
		}
		filter.Status = &st
	}

	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := newLogger(cfg, os.Stderr); err != nil {
		return err
	}
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	jobs, err := store.ListJobs(ctx, filter)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No searches found.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tQUERY\tSUBREDDITS")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			j.ID, statusColor(j.Status), j.CreatedAt.Local().Format("2006-01-02 15:04"),
			j.Query, strings.Join(j.Sources, ","))
	}
	return tw.Flush()
}

func statusColor(s storage.Status) string {
	switch s {
	case storage.StatusCompleted:
		return color.GreenString(string(s))
	case storage.StatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}
