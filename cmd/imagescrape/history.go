package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/imagescrape/internal/config"
	"github.com/nao1215/imagescrape/internal/database"
	"github.com/nao1215/imagescrape/internal/model"
	"github.com/nao1215/imagescrape/internal/pipeline"
	"github.com/nao1215/imagescrape/internal/report"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [query]",
		Short: "Show past runs stored in the history database",
		Long: `History lists the runs recorded by previous imagescrape invocations.

Without arguments the most recent runs of every query are listed. Give a
query to list only its runs.

Examples:
  # List the 20 most recent runs
  imagescrape history

  # List every run of one query
  imagescrape history "cute cats" --limit 0

  # Show the images saved by a run (a unique ID prefix is enough)
  imagescrape history --run 3f2a9c1e

  # Count saved images per format
  imagescrape history --formats

  # List all queries that were ever fetched
  imagescrape history --queries

  # Find every saved copy of an image by its SHA3-256 digest
  imagescrape history --sha3 9e1c...

  # Remove a run from the history (files on disk are kept)
  imagescrape history --delete 3f2a9c1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "l", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists all)")
	cmd.Flags().StringP("run", "r", "",
		"Show the details of the run with this ID or ID prefix")
	cmd.Flags().BoolP("formats", "f", false,
		"Count saved images per format")
	cmd.Flags().BoolP("queries", "Q", false,
		"List every query in the history")
	cmd.Flags().String("sha3", "",
		"List stored images whose content has this SHA3-256 digest")
	cmd.Flags().String("delete", "",
		"Delete the run with this ID from the history")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	if limit < 0 {
		return errors.New("limit must not be negative")
	}
	runID, err := flags.GetString("run")
	if err != nil {
		return err
	}
	formats, err := flags.GetBool("formats")
	if err != nil {
		return err
	}
	queries, err := flags.GetBool("queries")
	if err != nil {
		return err
	}
	digest, err := flags.GetString("sha3")
	if err != nil {
		return err
	}
	deleteID, err := flags.GetString("delete")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	var query string
	if len(args) > 0 {
		query = strings.TrimSpace(args[0])
	}

	out := cmd.OutOrStdout()

	if _, err := os.Stat(filepath.Join(dbDir, database.Filename)); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "No history found.")
		fmt.Fprintln(out, "\nUse 'imagescrape --query <text>' to fetch images.")
		return nil
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

	switch {
	case deleteID != "":
		return deleteRun(ctx, db, deleteID, out)
	case runID != "":
		return showRun(ctx, db, runID, jsonOutput, out)
	case digest != "":
		return findImages(ctx, db, strings.ToLower(strings.TrimSpace(digest)), jsonOutput, out)
	case queries:
		return listQueries(ctx, db, jsonOutput, out)
	case formats:
		return showFormats(ctx, db, query, jsonOutput, out)
	default:
		return listRuns(ctx, db, query, limit, jsonOutput, out)
	}
}

// listRuns prints the run summaries, newest first.
func listRuns(ctx context.Context, db *database.HistoryDB, query string, limit int, jsonOutput bool, out io.Writer) error {
	runs, err := db.ListRuns(ctx, query, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		if query != "" {
			fmt.Fprintf(out, "No runs found for %q\n", query)
		} else {
			fmt.Fprintln(out, "No runs found.")
		}
		return nil
	}

	fmt.Fprintf(out, "Runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-8s  %-19s  %-7s  %-6s  %s\n", "ID", "Date", "Saved", "Failed", "Query")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-8s  %-19s  %-7s  %-6d  %s%s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d/%d", r.Saved, r.Requested),
			r.Failed,
			r.Query,
			runMarker(r),
		)
	}
	fmt.Fprintln(out, "\nUse 'imagescrape history --run <id>' to see the images of a run.")
	return nil
}

// runMarker flags runs that did not finish cleanly.
func runMarker(r database.RunSummary) string {
	switch {
	case r.Cancelled:
		return " (cancelled)"
	case r.Error != "":
		return " (error)"
	default:
		return ""
	}
}

// showRun prints a stored run with the regular summary writers.
func showRun(ctx context.Context, db *database.HistoryDB, id string, jsonOutput bool, out io.Writer) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no run found with ID %q", id)
	}

	if jsonOutput {
		_, err = report.NewJSONWriter(out, report.WithPrettyPrint()).Write(run)
		return err
	}

	fmt.Fprintf(out, "Run %s\n", run.ID)
	if _, err := report.NewSimpleWriter(out, report.WithVerbose(true)).Write(run); err != nil {
		return err
	}

	path, recorded, err := sidecarStatus(run)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(out, "Records:    not found (%s)\n", path)
	case err != nil:
		fmt.Fprintf(out, "Records:    unreadable (%v)\n", err)
	default:
		fmt.Fprintf(out, "Records:    %d of %d images in %s\n", recorded, len(run.Images), path)
	}
	return nil
}

// sidecarStatus reads the records file of run's directory and counts how
// many of run's images it lists.
func sidecarStatus(run *model.Run) (string, int, error) {
	path := filepath.Join(run.Directory, pipeline.SidecarFilename)
	f, err := os.Open(path) //nolint:gosec // path comes from the history database
	if err != nil {
		return path, 0, err
	}
	defer f.Close() //nolint:errcheck // read-only

	records, err := report.ReadSidecar(f)
	if err != nil {
		return path, 0, err
	}

	listed := make(map[string]bool, len(records))
	for _, r := range records {
		listed[recordKey(r)] = true
	}
	recorded := 0
	for _, img := range run.Images {
		if listed[recordKey(img)] {
			recorded++
		}
	}
	return path, recorded, nil
}

// recordKey identifies one saved image across the database and records file.
func recordKey(r model.ImageRecord) string {
	return r.SourceURL + "\x00" + r.CaptureDate + "\x00" + r.CaptureTime
}

// findImages prints every stored image with the given content digest.
func findImages(ctx context.Context, db *database.HistoryDB, digest string, jsonOutput bool, out io.Writer) error {
	images, err := db.FindImagesBySHA3(ctx, digest)
	if err != nil {
		return fmt.Errorf("failed to find images: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, images)
	}

	if len(images) == 0 {
		fmt.Fprintf(out, "No images found with SHA3 %s\n", digest)
		return nil
	}

	fmt.Fprintf(out, "Images with SHA3 %s (%d):\n\n", digest, len(images))
	for _, img := range images {
		fmt.Fprintf(out, "  %s %s  %-20s  %s\n", img.CaptureDate, img.CaptureTime, img.Query, img.SourceURL)
		if img.Path != "" {
			fmt.Fprintf(out, "    %s\n", img.Path)
		}
	}
	return nil
}

// listQueries prints every query in the history.
func listQueries(ctx context.Context, db *database.HistoryDB, jsonOutput bool, out io.Writer) error {
	queries, err := db.ListQueries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queries: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, queries)
	}

	if len(queries) == 0 {
		fmt.Fprintln(out, "No queries found.")
		return nil
	}
	fmt.Fprintf(out, "Queries (%d):\n\n", len(queries))
	for _, q := range queries {
		fmt.Fprintf(out, "  • %s\n", q)
	}
	return nil
}

// showFormats prints the number of saved images per format.
func showFormats(ctx context.Context, db *database.HistoryDB, query string, jsonOutput bool, out io.Writer) error {
	counts, err := db.CountImagesByFormat(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to count images: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, counts)
	}

	if len(counts) == 0 {
		fmt.Fprintln(out, "No images found.")
		return nil
	}

	formats := make([]string, 0, len(counts))
	total := 0
	for f, n := range counts {
		formats = append(formats, f)
		total += n
	}
	slices.Sort(formats)

	fmt.Fprintf(out, "Images by format (%d total):\n\n", total)
	for _, f := range formats {
		fmt.Fprintf(out, "  %-6s  %d\n", f, counts[f])
	}
	return nil
}

// deleteRun removes a run from the history.
func deleteRun(ctx context.Context, db *database.HistoryDB, id string, out io.Writer) error {
	deleted, err := db.DeleteRun(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("no run found with ID %q", id)
	}
	fmt.Fprintf(out, "Deleted run %s\n", id)
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shortID returns the first eight characters of a run ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
