package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// PresetsCmd lists configured preset searches.
var PresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List configured preset searches",
	Long: `List the preset searches from the config file, or the built-in set when
none are configured. Run one with: painminer search --preset <name>`,
	Args: cobra.NoArgs,
	RunE: runPresets,
}

func runPresets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSCHEDULE\tQUERY\tSUBREDDITS")
	for _, p := range cfg.Presets {
		schedule := p.Schedule
		if schedule == "" {
			schedule = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, schedule, p.Query, strings.Join(p.Subreddits, ","))
	}
	return tw.Flush()
}
