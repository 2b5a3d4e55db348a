package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command. The root command itself fetches images.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagescrape",
		Short: "Download a random sample of image search results",
		Long: `imagescrape queries an image search engine, extracts the image URLs from
the result page, picks a random subset and saves the images into a
directory named after the query.

Every saved image is described by one JSON line in records.jsonl inside
the query's directory, and each run is stored in a local history database.

Examples:
  # Fetch up to 100 images of cute cats
  imagescrape --query "cute cats"

  # Fetch 20 images for two queries, two at a time
  imagescrape -q "cute cats" -q "sleepy dogs" -n 20 -b 2

  # Find images similar to an image URL
  imagescrape --reverse --query https://example.com/cat.jpg

  # Route traffic through Tor and print a Markdown summary
  imagescrape --tor --markdown -q "lighthouse"`,
		Version:       getVersion(),
		Args:          cobra.NoArgs,
		RunE:          runFetchCmd,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	addFetchFlags(cmd)

	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
