package download

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress advances once per processed image.
type Progress interface {
	Add(n int) error
	Finish() error
}

// ProgressFunc creates the Progress for a batch of total images.
type ProgressFunc func(total int, description string) Progress

// NewProgressBar returns a ProgressFunc that draws a terminal progress bar on w.
func NewProgressBar(w io.Writer) ProgressFunc {
	return func(total int, description string) Progress {
		return progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(w)
			}),
		)
	}
}

// noProgress discards progress updates.
type noProgress struct{}

func (noProgress) Add(int) error { return nil }
func (noProgress) Finish() error { return nil }

func silentProgress(int, string) Progress {
	return noProgress{}
}
