package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/imagescrape/internal/model"
)

// MarkdownWriter outputs runs as Markdown documents.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs a single run.
func (w *MarkdownWriter) Write(run *model.Run) (int, error) {
	return w.WriteBatch([]*model.Run{run})
}

// WriteBatch outputs every run under one heading.
func (w *MarkdownWriter) WriteBatch(runs []*model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("imagescrape Report")
	md.PlainText("")

	if len(runs) > 1 {
		w.writeOverview(md, runs)
	}
	for _, run := range runs {
		w.writeRun(md, run)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeOverview writes one row per query.
func (w *MarkdownWriter) writeOverview(md *markdown.Markdown, runs []*model.Run) {
	md.H2("Overview")
	md.PlainText("")

	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			"`" + run.Query.Text + "`",
			strconv.Itoa(run.SuccessCount()),
			strconv.Itoa(run.Requested),
			strconv.Itoa(run.FailureCount()),
			statusText(run),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Query", "Saved", "Requested", "Failed", "Status"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeRun(md *markdown.Markdown, run *model.Run) {
	md.H2("Query: " + run.Query.Text)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Mode", run.Query.Mode.String()},
			{"Directory", "`" + run.Directory + "`"},
			{"Started", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", formatDuration(run.Duration())},
			{"Candidates", strconv.Itoa(len(run.Candidates))},
			{"Selected", strconv.Itoa(len(run.Selected))},
			{"Saved", strconv.Itoa(run.SuccessCount())},
			{"Total Size", formatBytes(totalBytes(run))},
			{"Status", statusText(run)},
		},
	})
	md.PlainText("")

	w.writeAlert(md, run)

	if run.SuccessCount() > 0 {
		w.writePieChart(md, run)
		w.writeImages(md, run)
	}
	if run.FailureCount() > 0 {
		w.writeFailures(md, run)
	}
}

// writeAlert writes an alert matching how the run ended.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, run *model.Run) {
	switch {
	case run.Cancelled:
		md.Warningf("The run was cancelled after saving %d image(s).", run.SuccessCount())
	case run.ErrorMessage != "":
		md.Cautionf("The run stopped with an error: %s", run.ErrorMessage)
	case run.FailureCount() > 0:
		md.Importantf("%d image(s) could not be downloaded.", run.FailureCount())
	case run.SuccessCount() < run.Requested:
		md.Note(fmt.Sprintf("Only %d of %d requested images were available.", run.SuccessCount(), run.Requested))
	default:
		md.Tip("All requested images were saved.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of image formats.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, run *model.Run) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Image Formats"),
		piechart.WithShowData(true),
	)

	counts := run.FormatCounts()
	formats := make([]string, 0, len(counts))
	for format := range counts {
		formats = append(formats, format)
	}
	slices.Sort(formats)
	for _, format := range formats {
		chart.LabelAndIntValue(format, uint64(counts[format])) //nolint:gosec // counts are positive
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeImages(md *markdown.Markdown, run *model.Run) {
	md.H3("Images")
	md.PlainText("")

	rows := make([][]string, len(run.Images))
	for i, img := range run.Images {
		size, dims := "-", "-"
		if img.Metadata != nil {
			size = formatBytes(img.Metadata.Size)
			if img.Metadata.Width > 0 {
				dims = fmt.Sprintf("%dx%d", img.Metadata.Width, img.Metadata.Height)
			}
		}
		rows[i] = []string{
			img.Filename,
			img.Format,
			size,
			dims,
			truncateString(img.SourceURL, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Filename", "Format", "Size", "Dimensions", "Source"},
		Rows:   rows,
	})
	md.PlainText("")

	// Camera details only exist for photos with EXIF.
	for _, img := range run.Images {
		if img.Metadata == nil || (img.Metadata.CameraMake == "" && img.Metadata.CameraModel == "" && !img.Metadata.HasGPS) {
			continue
		}
		md.Details(img.Filename, exifSummary(img.Metadata))
	}
}

func exifSummary(meta *model.ImageMetadata) string {
	summary := fmt.Sprintf("Camera: %s %s", meta.CameraMake, meta.CameraModel)
	if meta.TakenAt != "" {
		summary += ", taken " + meta.TakenAt
	}
	if meta.Software != "" {
		summary += ", software " + meta.Software
	}
	if meta.HasGPS {
		summary += ", contains GPS coordinates"
	}
	return summary
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, run *model.Run) {
	md.H3("Failures")
	md.PlainText("")

	rows := make([][]string, len(run.Failures))
	for i, f := range run.Failures {
		rows[i] = []string{truncateString(f.URL, 60), truncateString(f.Error, 80)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [imagescrape](https://github.com/nao1215/imagescrape)*")
}
