package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/imagescrape/internal/model"
	"github.com/nao1215/imagescrape/internal/search"
)

// Permissions for created directories and image files.
const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// ErrEmptyFilename is returned for a URL without a usable basename.
var ErrEmptyFilename = errors.New("cannot derive a filename from URL")

// ImageFetcher fetches the raw bytes of an image URL.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// Inspector derives metadata from image bytes.
type Inspector interface {
	Inspect(data []byte) model.ImageMetadata
}

// Result is what one Download call produced.
type Result struct {
	// Records holds one entry per file written, in download order.
	Records []model.ImageRecord

	// Failures holds the URLs that were skipped, in download order.
	Failures []Failure
}

// Failure is one skipped URL and the reason it was skipped.
type Failure struct {
	URL string
	Err error
}

// Downloader writes selected images to disk, strictly one at a time.
//
// Images are fetched in order and a new GET is not issued until the previous
// file has been written, so at most one image download is in flight per
// query regardless of the session's connection cap.
//
// Failures fall into two classes. A server that answers but rejects the
// image (a non-2xx status or a body over the size limit) is recorded in
// Result.Failures and the loop moves on: search result hosts refuse hotlinks
// often enough that one refusal must not end the run. Transport and
// filesystem errors abort the loop and are returned, leaving in Result only
// what was written before the failure. WithContinueOnError downgrades those
// to recorded failures as well.
type Downloader struct {
	fetcher         ImageFetcher
	inspector       Inspector
	progress        ProgressFunc
	continueOnError bool
	logger          *slog.Logger
	now             func() time.Time
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithInspector attaches metadata from inspector to every record.
func WithInspector(inspector Inspector) Option {
	return func(d *Downloader) {
		d.inspector = inspector
	}
}

// WithProgress sets how progress is displayed. The default shows nothing.
func WithProgress(progress ProgressFunc) Option {
	return func(d *Downloader) {
		d.progress = progress
	}
}

// WithContinueOnError records transport and filesystem failures instead of
// aborting. Rejected images are always recorded and skipped.
func WithContinueOnError(continueOnError bool) Option {
	return func(d *Downloader) {
		d.continueOnError = continueOnError
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Downloader) {
		d.now = now
	}
}

// New creates a Downloader that fetches through fetcher.
func New(fetcher ImageFetcher, opts ...Option) *Downloader {
	d := &Downloader{
		fetcher:  fetcher,
		progress: silentProgress,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches every URL in urls and writes it into dir. The returned
// Result is valid even when err is non-nil and holds what was written so far.
func (d *Downloader) Download(ctx context.Context, query model.Query, dir string, urls []string) (Result, error) {
	result := Result{
		Records:  make([]model.ImageRecord, 0, len(urls)),
		Failures: make([]Failure, 0),
	}
	if len(urls) == 0 {
		return result, nil
	}

	progress := d.progress(len(urls), query.DirName())
	defer func() {
		_ = progress.Finish() //nolint:errcheck // display only
	}()

	dirReady := false
	written := make(map[string]string, len(urls))

	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		record := model.NewImageRecord(query, u, d.now())
		if prev, ok := written[record.Filename]; ok {
			d.logger.Warn("filename collision, overwriting earlier image",
				"filename", record.Filename,
				"previous_url", prev,
				"url", u,
			)
		}

		if err := d.fetchAndWrite(ctx, &record, dir, &dirReady); err != nil {
			if !d.continueOnError && !isRejected(err) {
				return result, fmt.Errorf("failed to download %s: %w", u, err)
			}
			d.logger.Warn("skipping image", "url", u, "error", err)
			result.Failures = append(result.Failures, Failure{URL: u, Err: err})
			_ = progress.Add(1) //nolint:errcheck // display only
			continue
		}
		_ = progress.Add(1) //nolint:errcheck // display only

		written[record.Filename] = u
		result.Records = append(result.Records, record)
		d.logger.Debug("image saved", "url", u, "path", record.Path)
	}

	return result, nil
}

// isRejected reports whether err means the server answered but the image
// was not usable.
func isRejected(err error) bool {
	return errors.Is(err, search.ErrUnexpectedStatus) || errors.Is(err, search.ErrBodyTooLarge)
}

// fetchAndWrite fetches record.SourceURL and writes it under dir, creating
// dir on first use.
func (d *Downloader) fetchAndWrite(ctx context.Context, record *model.ImageRecord, dir string, dirReady *bool) error {
	if record.Filename == "" || record.Filename == "." || record.Filename == "/" {
		return ErrEmptyFilename
	}

	data, err := d.fetcher.FetchImage(ctx, record.SourceURL)
	if err != nil {
		return err
	}

	if !*dirReady {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		*dirReady = true
	}

	path := filepath.Join(dir, record.Filename)
	if err := writeFile(path, data); err != nil {
		return err
	}
	record.Path = path

	if d.inspector != nil {
		meta := d.inspector.Inspect(data)
		record.Metadata = &meta
	}
	return nil
}

// writeFile truncates or creates path and writes data in one call.
func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm) //nolint:gosec // path is dir + URL basename
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
