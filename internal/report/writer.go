package report

import (
	"fmt"
	"io"
	"time"

	"github.com/nao1215/imagescrape/internal/model"
)

// Writer renders run summaries.
type Writer interface {
	// Write outputs the summary of a single run.
	// Returns the number of bytes written and any error encountered.
	Write(run *model.Run) (int, error)

	// WriteBatch outputs the summary of several runs as one document.
	WriteBatch(runs []*model.Run) (int, error)
}

// MultiWriter writes to multiple Writers, stopping at the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the run to all configured Writers.
func (m *MultiWriter) Write(run *model.Run) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteBatch outputs the runs to all configured Writers.
func (m *MultiWriter) WriteBatch(runs []*model.Run) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteBatch(runs)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter holds the output destination shared by all writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText describes how a run ended.
func statusText(run *model.Run) string {
	switch {
	case run.Cancelled:
		return "Cancelled (partial results)"
	case run.ErrorMessage != "":
		return "Error - " + run.ErrorMessage
	case run.FailureCount() > 0:
		return fmt.Sprintf("Complete with %d failure(s)", run.FailureCount())
	default:
		return "Complete"
	}
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// totalBytes sums the known sizes of a run's images.
func totalBytes(run *model.Run) int64 {
	var total int64
	for _, img := range run.Images {
		if img.Metadata != nil {
			total += img.Metadata.Size
		}
	}
	return total
}

// truncateString truncates a string to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
