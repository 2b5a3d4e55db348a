package model

import (
	"time"

	"github.com/google/uuid"
)

// Run is the typed result of fetching images for one query.
// Pipeline steps fill it in order: candidates, selection, records.
type Run struct {
	// ID uniquely identifies the run in the history database.
	ID string `json:"id"`

	// Query is the search input.
	Query Query `json:"query"`

	// Requested is the number of images asked for.
	Requested int `json:"requested"`

	// Directory is the per-query output directory.
	Directory string `json:"directory"`

	// StartedAt and FinishedAt bracket the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// Candidates are the image URLs extracted from the search response,
	// in order of appearance, duplicates included.
	Candidates []string `json:"candidates"`

	// Selected is the random subset chosen for download.
	Selected []string `json:"selected"`

	// Images holds a record for every image written to disk.
	Images []ImageRecord `json:"images"`

	// Failures holds per-image errors when the run continues past them.
	Failures []Failure `json:"failures,omitempty"`

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps"`

	// Error is the error that stopped the run, if any.
	Error error `json:"-"`

	// ErrorMessage is Error as text, for serialization.
	ErrorMessage string `json:"error,omitempty"`

	// Cancelled is true when the context was cancelled mid-run.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Failure records one image that could not be fetched or written.
type Failure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// NewRun creates a Run with a fresh ID for query.
func NewRun(query Query, requested int, directory string) *Run {
	return &Run{
		ID:             uuid.NewString(),
		Query:          query,
		Requested:      requested,
		Directory:      directory,
		StartedAt:      time.Now().UTC(),
		Candidates:     make([]string, 0),
		Selected:       make([]string, 0),
		Images:         make([]ImageRecord, 0),
		PerformedSteps: make([]string, 0),
	}
}

// AddImage appends a downloaded image record.
func (r *Run) AddImage(record ImageRecord) {
	r.Images = append(r.Images, record)
}

// AddFailure appends a per-image failure.
func (r *Run) AddFailure(url string, err error) {
	r.Failures = append(r.Failures, Failure{URL: url, Error: err.Error()})
}

// SetError records the error that stopped the run.
func (r *Run) SetError(err error) {
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// SuccessCount returns the number of images written to disk.
func (r *Run) SuccessCount() int {
	return len(r.Images)
}

// FailureCount returns the number of images that failed.
func (r *Run) FailureCount() int {
	return len(r.Failures)
}

// Succeeded reports whether the run finished without a stopping error.
func (r *Run) Succeeded() bool {
	return r.Error == nil && r.ErrorMessage == "" && !r.Cancelled
}

// Finish stamps FinishedAt.
func (r *Run) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FormatCounts returns how many downloaded images have each format.
func (r *Run) FormatCounts() map[string]int {
	counts := make(map[string]int)
	for _, img := range r.Images {
		counts[img.Format]++
	}
	return counts
}
