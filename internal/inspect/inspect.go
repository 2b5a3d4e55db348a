package inspect

import (
	"bytes"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/disintegration/imaging"
	exif "github.com/dsoprea/go-exif/v3"
	"golang.org/x/crypto/sha3"

	"github.com/nao1215/imagescrape/internal/model"
)

// Inspector extracts model.ImageMetadata from image bytes.
type Inspector struct {
	logger *slog.Logger
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Inspector) {
		i.logger = logger
	}
}

// New creates an Inspector.
func New(opts ...Option) *Inspector {
	i := &Inspector{logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect returns what can be learned from data. Size and SHA3 are always
// set; dimensions and EXIF fields only when the payload carries them.
func (i *Inspector) Inspect(data []byte) model.ImageMetadata {
	sum := sha3.Sum256(data)
	meta := model.ImageMetadata{
		Size: int64(len(data)),
		SHA3: hex.EncodeToString(sum[:]),
	}

	// Orientation is applied so the size matches what a viewer shows.
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		i.logger.Debug("image not decodable", "error", err)
	} else {
		b := img.Bounds()
		meta.Width, meta.Height = b.Dx(), b.Dy()
	}

	i.readExif(data, &meta)
	return meta
}

// readExif copies the interesting EXIF tags into meta.
func (i *Inspector) readExif(data []byte, meta *model.ImageMetadata) {
	// go-exif panics on some malformed blocks.
	defer func() {
		if r := recover(); r != nil {
			i.logger.Debug("EXIF parsing panicked", "panic", r)
		}
	}()

	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		i.logger.Debug("EXIF block unreadable", "error", err)
		return
	}

	for _, entry := range entries {
		applyTag(meta, entry.TagName, strings.TrimSpace(entry.Formatted))
	}
}

// applyTag records one EXIF tag. DateTimeOriginal wins over DateTime, and
// the first non-empty value wins for everything else.
func applyTag(meta *model.ImageMetadata, tagName, value string) {
	if value == "" {
		return
	}

	switch tagName {
	case "Make":
		setOnce(&meta.CameraMake, value)
	case "Model":
		setOnce(&meta.CameraModel, value)
	case "Software", "ProcessingSoftware":
		setOnce(&meta.Software, value)
	case "DateTimeOriginal":
		meta.TakenAt = value
	case "DateTime":
		setOnce(&meta.TakenAt, value)
	case "GPSLatitude", "GPSLongitude":
		meta.HasGPS = true
	}
}

func setOnce(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
