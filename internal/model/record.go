package model

import (
	"path"
	"strings"
	"time"
)

// RecordKind is the kind stored in every ImageRecord.
const RecordKind = "image"

// ImageRecord is the metadata derived for one downloaded image.
// Everything except Path and Metadata is derived from the source URL and the
// capture time; the filename is the only identity, so two URLs sharing a
// basename map to the same file.
type ImageRecord struct {
	// CaptureDate is the UTC date of the download (YYYY-MM-DD).
	CaptureDate string `json:"date"`

	// CaptureTime is the UTC time of day of the download (HH:MM:SS.ffffff).
	CaptureTime string `json:"time"`

	// Kind is always RecordKind.
	Kind string `json:"type"`

	// Query is the query text that found this image.
	Query string `json:"query"`

	// Variant names the request strategy, see Mode.Variant.
	Variant string `json:"scraper"`

	// SourceURL is the URL the bytes were fetched from.
	SourceURL string `json:"image_url"`

	// Filename is the basename of SourceURL.
	Filename string `json:"image_filename"`

	// Format is the file extension of Filename without the dot.
	Format string `json:"image_format"`

	// Path is where the image was written. Empty until the file exists.
	Path string `json:"path,omitempty"`

	// Metadata holds what was learned from the image bytes.
	Metadata *ImageMetadata `json:"metadata,omitempty"`

	// capturedAt keeps the full timestamp for storage.
	capturedAt time.Time
}

// ImageMetadata describes the downloaded bytes of an image.
type ImageMetadata struct {
	// Size is the payload size in bytes.
	Size int64 `json:"size"`

	// SHA3 is the hex SHA3-256 digest of the payload.
	SHA3 string `json:"sha3"`

	// Width and Height are zero when the format could not be decoded (e.g. SVG).
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// CameraMake and CameraModel come from EXIF Make/Model.
	CameraMake  string `json:"camera_make,omitempty"`
	CameraModel string `json:"camera_model,omitempty"`

	// Software comes from EXIF Software/ProcessingSoftware.
	Software string `json:"software,omitempty"`

	// TakenAt is the raw EXIF DateTimeOriginal (or DateTime) value.
	TakenAt string `json:"taken_at,omitempty"`

	// HasGPS is true when any GPS coordinate tag is present.
	HasGPS bool `json:"has_gps,omitempty"`
}

// NewImageRecord derives the record for sourceURL found by query at now.
// now is converted to UTC.
func NewImageRecord(query Query, sourceURL string, now time.Time) ImageRecord {
	now = now.UTC()
	filename := FilenameFromURL(sourceURL)
	return ImageRecord{
		CaptureDate: now.Format(time.DateOnly),
		CaptureTime: now.Format("15:04:05.000000"),
		Kind:        RecordKind,
		Query:       query.Text,
		Variant:     query.Mode.Variant(),
		SourceURL:   sourceURL,
		Filename:    filename,
		Format:      FormatFromFilename(filename),
		capturedAt:  now,
	}
}

// CapturedAt returns the full UTC capture timestamp.
// Records rebuilt from storage fall back to CaptureDate and CaptureTime.
func (r ImageRecord) CapturedAt() time.Time {
	if !r.capturedAt.IsZero() {
		return r.capturedAt
	}
	t, err := time.Parse(time.DateOnly+" 15:04:05.000000", r.CaptureDate+" "+r.CaptureTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FilenameFromURL returns the last path element of rawURL.
// The URL is treated as a plain string, the same way a filesystem basename is
// taken, so "https://example.com/path/dog.jpg" yields "dog.jpg".
func FilenameFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	return path.Base(rawURL)
}

// FormatFromFilename returns the text after the last dot of filename.
// A filename without a dot is its own format, matching a split on ".".
func FormatFromFilename(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i+1:]
	}
	return filename
}
