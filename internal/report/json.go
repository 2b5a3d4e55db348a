package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/imagescrape/internal/model"
)

// JSONWriter outputs runs as JSON.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed output.
	indent       bool
	indentPrefix string
	indentString string

	// version is stored in batch documents.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the tool version in batch documents.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// BatchDocument is the JSON shape written by WriteBatch.
type BatchDocument struct {
	// Version is the imagescrape version that produced the document.
	Version string `json:"version,omitempty"`

	// Runs holds one entry per query, in input order.
	Runs []*model.Run `json:"runs"`

	// TotalImages and TotalFailures sum over all runs.
	TotalImages   int `json:"total_images"`
	TotalFailures int `json:"total_failures"`
}

// Write outputs a single run.
func (w *JSONWriter) Write(run *model.Run) (int, error) {
	return w.writeJSON(run)
}

// WriteBatch outputs a BatchDocument.
func (w *JSONWriter) WriteBatch(runs []*model.Run) (int, error) {
	doc := BatchDocument{Version: w.version, Runs: runs}
	if doc.Runs == nil {
		doc.Runs = make([]*model.Run, 0)
	}
	for _, run := range runs {
		doc.TotalImages += run.SuccessCount()
		doc.TotalFailures += run.FailureCount()
	}
	return w.writeJSON(doc)
}

// writeJSON marshals v and writes it with a trailing newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
