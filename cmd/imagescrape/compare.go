package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/imagescrape/internal/config"
	"github.com/nao1215/imagescrape/internal/database"
	"github.com/nao1215/imagescrape/internal/model"
)

// NewCompareCmd creates the compare command.
// This command compares the images of two runs of the same query.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <query>",
		Short: "Compare the images of two runs of a query",
		Long: `Compare shows how the images found for a query changed between runs.

The latest run of the query is compared with an earlier one and shows:
- New images whose URL was not saved by the earlier run
- Gone images that the latest run no longer saved
- Images whose URL stayed the same but whose content changed

Images are matched by source URL. Content changes are detected with the
SHA3 digest stored for every saved image.

Examples:
  # Compare the latest two runs of a query
  imagescrape compare "cute cats"

  # Compare the latest run with a specific run (a unique ID prefix is enough)
  imagescrape compare --with 3f2a9c1e "cute cats"

  # Compare with the first run since a date
  imagescrape compare --since 2025-01-01 "cute cats"

  # Output the comparison as JSON
  imagescrape compare --json "cute cats"`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	// Comparison target flags
	cmd.Flags().StringP("with", "w", "",
		"Compare with the run with this ID or ID prefix")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first run on or after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output the comparison in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output the comparison in Markdown format")

	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	withID, err := flags.GetString("with")
	if err != nil {
		return err
	}
	sinceDate, err := flags.GetString("since")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	// Arguments are validated before the database is opened.
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	if withID != "" && sinceDate != "" {
		return errors.New("--with and --since cannot be used together")
	}
	var since time.Time
	if sinceDate != "" {
		since, err = time.Parse(time.DateOnly, sinceDate)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
	}
	q, err := model.NewQuery(args[0], model.ModeTextSearch)
	if err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(dbDir, database.Filename)); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no history found in %s", dbDir)
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-only

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := runComparison(ctx, db, q.Text, withID, since)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case jsonOutput:
		return writeJSON(out, result)
	case markdownOutput:
		return outputComparisonMarkdown(out, result)
	default:
		outputComparisonText(out, result)
		return nil
	}
}

// runComparison loads the latest run of query and the run it is compared
// with, then compares them.
func runComparison(ctx context.Context, db *database.HistoryDB, query, withID string, since time.Time) (*ComparisonResult, error) {
	runs, err := db.ListRuns(ctx, query, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs found for %q", query)
	}

	// Runs are sorted newest first.
	currentID := runs[0].ID
	var previousID string

	switch {
	case withID != "":
		previous, err := db.GetRun(ctx, withID)
		if err != nil {
			return nil, err
		}
		if previous == nil {
			return nil, fmt.Errorf("no run found with ID %q", withID)
		}
		if previous.Query.Text != query {
			return nil, fmt.Errorf("run %s belongs to %q, not %q", shortID(previous.ID), previous.Query.Text, query)
		}
		if previous.ID == currentID {
			return nil, fmt.Errorf("run %s is the latest run of %q", shortID(previous.ID), query)
		}
		previousID = previous.ID

	case !since.IsZero():
		for i := len(runs) - 1; i >= 0; i-- {
			if !runs[i].StartedAt.Before(since) {
				previousID = runs[i].ID
				break
			}
		}
		if previousID == "" {
			return nil, fmt.Errorf("no runs found since %s", since.Format(time.DateOnly))
		}
		if previousID == currentID {
			return nil, fmt.Errorf("only one run found since %s; at least 2 runs are required for comparison", since.Format(time.DateOnly))
		}

	default:
		if len(runs) < 2 {
			return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
		}
		previousID = runs[1].ID
	}

	current, err := db.GetRun(ctx, currentID)
	if err != nil {
		return nil, err
	}
	previous, err := db.GetRun(ctx, previousID)
	if err != nil {
		return nil, err
	}
	if current == nil || previous == nil {
		return nil, errors.New("run disappeared from the history during comparison")
	}

	return compareRuns(previous, current), nil
}

// ComparisonResult holds the result of comparing two runs of a query.
type ComparisonResult struct {
	// Query is the compared query.
	Query string `json:"query"`

	// PreviousRun and CurrentRun describe the compared runs.
	PreviousRun RunMetadata `json:"previous_run"`
	CurrentRun  RunMetadata `json:"current_run"`

	// NewImages were saved by the current run only.
	NewImages []model.ImageRecord `json:"new_images,omitempty"`

	// GoneImages were saved by the previous run only.
	GoneImages []model.ImageRecord `json:"gone_images,omitempty"`

	// ChangedImages share a URL but not the SHA3 digest.
	ChangedImages []model.ImageRecord `json:"changed_images,omitempty"`

	// UnchangedCount is the number of URLs saved by both runs with the same content.
	UnchangedCount int `json:"unchanged_count"`
}

// RunMetadata contains the figures of one run shown in a comparison.
type RunMetadata struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	Candidates int            `json:"candidates"`
	Saved      int            `json:"saved"`
	Failed     int            `json:"failed"`
	Formats    map[string]int `json:"formats"`
}

func runMetadata(run *model.Run) RunMetadata {
	return RunMetadata{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		Candidates: len(run.Candidates),
		Saved:      run.SuccessCount(),
		Failed:     run.FailureCount(),
		Formats:    run.FormatCounts(),
	}
}

// compareRuns matches the images of both runs by source URL.
func compareRuns(previous, current *model.Run) *ComparisonResult {
	result := &ComparisonResult{
		Query:       current.Query.Text,
		PreviousRun: runMetadata(previous),
		CurrentRun:  runMetadata(current),
	}

	previousImages := imagesByURL(previous.Images)
	currentImages := imagesByURL(current.Images)

	for u, img := range currentImages {
		old, ok := previousImages[u]
		switch {
		case !ok:
			result.NewImages = append(result.NewImages, img)
		case contentChanged(old, img):
			result.ChangedImages = append(result.ChangedImages, img)
		default:
			result.UnchangedCount++
		}
	}
	for u, img := range previousImages {
		if _, ok := currentImages[u]; !ok {
			result.GoneImages = append(result.GoneImages, img)
		}
	}

	sortImages(result.NewImages)
	sortImages(result.GoneImages)
	sortImages(result.ChangedImages)

	return result
}

// imagesByURL indexes images by source URL; the last record of a URL wins.
func imagesByURL(images []model.ImageRecord) map[string]model.ImageRecord {
	m := make(map[string]model.ImageRecord, len(images))
	for _, img := range images {
		m[img.SourceURL] = img
	}
	return m
}

// contentChanged reports whether both records carry a digest and the digests differ.
func contentChanged(a, b model.ImageRecord) bool {
	if a.Metadata == nil || b.Metadata == nil || a.Metadata.SHA3 == "" || b.Metadata.SHA3 == "" {
		return false
	}
	return a.Metadata.SHA3 != b.Metadata.SHA3
}

func sortImages(images []model.ImageRecord) {
	slices.SortFunc(images, func(a, b model.ImageRecord) int {
		return strings.Compare(a.SourceURL, b.SourceURL)
	})
}

// formatKeys returns the formats of both runs, sorted.
func formatKeys(result *ComparisonResult) []string {
	keys := slices.Collect(maps.Keys(result.PreviousRun.Formats))
	for f := range result.CurrentRun.Formats {
		if !slices.Contains(keys, f) {
			keys = append(keys, f)
		}
	}
	slices.Sort(keys)
	return keys
}

// outputComparisonText outputs the comparison in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) {
	fmt.Fprintf(out, "Run Comparison: %s\n", result.Query)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPrevious run: %s  %s\n", shortID(result.PreviousRun.ID),
		result.PreviousRun.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Current run:  %s  %s\n", shortID(result.CurrentRun.ID),
		result.CurrentRun.StartedAt.Local().Format("2006-01-02 15:04:05"))

	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  %-10s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	for _, row := range comparisonRows(result) {
		fmt.Fprintf(out, "  %-10s  %-10s  %-10s  %-10s\n", row[0], row[1], row[2], row[3])
	}

	if len(result.NewImages) > 0 {
		fmt.Fprintf(out, "\nNew Images (%d):\n", len(result.NewImages))
		for _, img := range result.NewImages {
			fmt.Fprintf(out, "  [+] %s\n", img.SourceURL)
		}
	}
	if len(result.GoneImages) > 0 {
		fmt.Fprintf(out, "\nGone Images (%d):\n", len(result.GoneImages))
		for _, img := range result.GoneImages {
			fmt.Fprintf(out, "  [-] %s\n", img.SourceURL)
		}
	}
	if len(result.ChangedImages) > 0 {
		fmt.Fprintf(out, "\nChanged Content (%d):\n", len(result.ChangedImages))
		for _, img := range result.ChangedImages {
			fmt.Fprintf(out, "  [~] %s\n", img.SourceURL)
		}
	}

	fmt.Fprintf(out, "\nUnchanged: %d images\n", result.UnchangedCount)
}

// outputComparisonMarkdown outputs the comparison in Markdown format.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)

	md.H1("Run Comparison: " + result.Query)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows:   comparisonRows(result),
	})
	md.PlainText("")

	writeImageList := func(title, prefix, suffix string, images []model.ImageRecord) {
		if len(images) == 0 {
			return
		}
		md.H2(fmt.Sprintf("%s (%d)", title, len(images)))
		md.PlainText("")
		items := make([]string, len(images))
		for i, img := range images {
			items[i] = prefix + "`" + img.SourceURL + "`" + suffix
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	writeImageList("New Images", "", "", result.NewImages)
	writeImageList("Gone Images", "~~", "~~", result.GoneImages)
	writeImageList("Changed Content", "", "", result.ChangedImages)

	md.HorizontalRule()
	md.PlainTextf("*%d images unchanged*", result.UnchangedCount)

	return md.Build()
}

// comparisonRows returns the Metric/Previous/Current/Change rows shared by
// the text and Markdown output.
func comparisonRows(result *ComparisonResult) [][]string {
	prev, cur := result.PreviousRun, result.CurrentRun
	rows := [][]string{
		{"Date", prev.StartedAt.Local().Format("2006-01-02 15:04"), cur.StartedAt.Local().Format("2006-01-02 15:04"), "-"},
		countRow("Candidates", prev.Candidates, cur.Candidates),
		countRow("Saved", prev.Saved, cur.Saved),
		countRow("Failed", prev.Failed, cur.Failed),
	}
	for _, f := range formatKeys(result) {
		rows = append(rows, countRow(f, prev.Formats[f], cur.Formats[f]))
	}
	return rows
}

func countRow(label string, previous, current int) []string {
	return []string{label, strconv.Itoa(previous), strconv.Itoa(current), formatDelta(current - previous)}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
