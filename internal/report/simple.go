package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/imagescrape/internal/model"
)

// SimpleWriter outputs human-readable text summaries.
type SimpleWriter struct {
	baseWriter

	// verbose lists every saved image and failure.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every saved image and failure.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs a single run.
func (w *SimpleWriter) Write(run *model.Run) (int, error) {
	var sb strings.Builder
	w.writeRun(&sb, run)
	return io.WriteString(w.output, sb.String())
}

// WriteBatch outputs every run followed by a grand total when there is
// more than one.
func (w *SimpleWriter) WriteBatch(runs []*model.Run) (int, error) {
	var sb strings.Builder
	images, failures := 0, 0
	for _, run := range runs {
		w.writeRun(&sb, run)
		images += run.SuccessCount()
		failures += run.FailureCount()
	}
	if len(runs) > 1 {
		fmt.Fprintf(&sb, "Total: %d queries, %d images saved, %d failed\n", len(runs), images, failures)
	}
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeRun(sb *strings.Builder, run *model.Run) {
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Query:      %s\n", run.Query.Text)
	fmt.Fprintf(sb, "Mode:       %s\n", run.Query.Mode)
	fmt.Fprintf(sb, "Directory:  %s\n", run.Directory)
	fmt.Fprintf(sb, "Candidates: %d\n", len(run.Candidates))
	fmt.Fprintf(sb, "Saved:      %d of %d requested\n", run.SuccessCount(), run.Requested)
	if run.FailureCount() > 0 {
		fmt.Fprintf(sb, "Failed:     %d\n", run.FailureCount())
	}
	if size := totalBytes(run); size > 0 {
		fmt.Fprintf(sb, "Size:       %s\n", formatBytes(size))
	}
	fmt.Fprintf(sb, "Duration:   %s\n", formatDuration(run.Duration()))
	fmt.Fprintf(sb, "Status:     %s\n", statusText(run))

	if !w.verbose {
		sb.WriteString("\n")
		return
	}

	if len(run.Images) > 0 {
		sb.WriteString("\nImages:\n")
		for _, img := range run.Images {
			fmt.Fprintf(sb, "  %s  <- %s\n", img.Filename, img.SourceURL)
		}
	}
	if len(run.Failures) > 0 {
		sb.WriteString("\nFailures:\n")
		for _, f := range run.Failures {
			fmt.Fprintf(sb, "  %s: %s\n", f.URL, f.Error)
		}
	}
	sb.WriteString("\n")
}
