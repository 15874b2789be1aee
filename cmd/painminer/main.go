package main

import (
	"fmt"
	"os"

	"github.com/FranksOps/painminer/cmd/painminer/commands"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "painminer",
	Short: "painminer - mine Reddit for customer pain and product opportunities",
	Long: `painminer searches subreddits for a query, scores every post for pain
signals, ranks them and asks an LLM to turn the most painful ones into
product opportunities.

Examples:
  painminer serve                                   # Start the HTTP API and preset scheduler
  painminer search "invoicing" -s smallbusiness     # Run one search and print a report
  painminer search --preset smb_finance             # Run a configured preset
  painminer list --status completed                 # List past searches
  painminer show 12 --format html > report.html     # Render a stored search
  painminer deep https://reddit.com/r/x/comments/id # Score one thread's comments
  painminer analyze 12                              # Re-run opportunity analysis`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default ./painminer.yaml or $HOME/.painminer/painminer.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("db", "", "Storage DSN override")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.SearchCmd)
	rootCmd.AddCommand(commands.ShowCmd)
	rootCmd.AddCommand(commands.ListCmd)
	rootCmd.AddCommand(commands.PresetsCmd)
	rootCmd.AddCommand(commands.DeepCmd)
	rootCmd.AddCommand(commands.AnalyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
