// Package commands implements the homewatch CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "homewatch",
	Short: "Watch real-estate searches and alert on new listings",
	Long: `Homewatch scrapes listing sites for each stored search, keeps one
record per listing URL and emails the search owner about listings it has
not seen before.

Examples:
  # Serve the trigger API and sweep active searches on a schedule
  homewatch serve

  # Run one search now
  homewatch run 6f1c9a4e-...

  # Load searches for a user from a file
  homewatch searches import searches.yaml --user ext-123

  # Export what a search has found
  homewatch listings export --search 6f1c9a4e-... --csv out/listings.csv`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
