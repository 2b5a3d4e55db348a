package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nao1215/imagescrape/internal/model"
)

// SidecarWriter writes image records as JSON lines, one object per line.
type SidecarWriter struct {
	enc *json.Encoder
}

// NewSidecarWriter creates a SidecarWriter on w.
func NewSidecarWriter(w io.Writer) *SidecarWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &SidecarWriter{enc: enc}
}

// WriteRecord writes one record followed by a newline.
func (s *SidecarWriter) WriteRecord(record model.ImageRecord) error {
	return s.enc.Encode(record)
}

// AppendSidecar appends records to the JSON-lines file at path, creating it
// when missing. Earlier runs' lines are kept.
func AppendSidecar(path string, records []model.ImageRecord) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // path is inside the output directory
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	w := NewSidecarWriter(f)
	for _, record := range records {
		if err := w.WriteRecord(record); err != nil {
			_ = f.Close() //nolint:errcheck // write error takes precedence
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return f.Close()
}

// ReadSidecar reads every record from a JSON-lines stream.
func ReadSidecar(r io.Reader) ([]model.ImageRecord, error) {
	dec := json.NewDecoder(r)
	records := make([]model.ImageRecord, 0)
	for dec.More() {
		var record model.ImageRecord
		if err := dec.Decode(&record); err != nil {
			return records, err
		}
		records = append(records, record)
	}
	return records, nil
}
