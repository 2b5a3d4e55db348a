package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/imagescrape/internal/model"
)

// Filename is the name of the history database inside its directory.
const Filename = "imagescrape.db"

// HistoryDB provides SQLite-based storage for past runs.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the HistoryDB in dbDir.
// With CreateIfNotExists false a missing database is an error.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, Filename)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("history database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a new file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		mode TEXT NOT NULL,
		directory TEXT NOT NULL,
		requested INTEGER NOT NULL,
		candidates INTEGER NOT NULL,
		saved INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		run_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_query ON runs(query);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		query TEXT NOT NULL,
		scraper TEXT NOT NULL,
		capture_date TEXT NOT NULL,
		capture_time TEXT NOT NULL,
		image_url TEXT NOT NULL,
		filename TEXT NOT NULL,
		format TEXT NOT NULL,
		path TEXT,
		sha3 TEXT,
		size INTEGER,
		metadata_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_images_run ON images(run_id);
	CREATE INDEX IF NOT EXISTS idx_images_sha3 ON images(sha3);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores run and its images in one transaction. Saving the same run
// twice replaces the earlier rows.
func (h *HistoryDB) SaveRun(ctx context.Context, run *model.Run) (err error) {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // original error is returned
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM images WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to replace images: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT OR REPLACE INTO runs (id, query, mode, directory, requested, candidates, saved, failed,
		cancelled, error, started_at, finished_at, run_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Query.Text,
		run.Query.Mode.String(),
		run.Directory,
		run.Requested,
		len(run.Candidates),
		run.SuccessCount(),
		run.FailureCount(),
		run.Cancelled,
		nullString(run.ErrorMessage),
		formatTimestamp(run.StartedAt),
		nullString(formatTimestamp(run.FinishedAt)),
		string(runJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO images (run_id, query, scraper, capture_date, capture_time, image_url, filename,
		format, path, sha3, size, metadata_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare image insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // closed with the transaction

	for _, img := range run.Images {
		var (
			sha3     sql.NullString
			size     sql.NullInt64
			metaJSON sql.NullString
		)
		if img.Metadata != nil {
			sha3 = nullString(img.Metadata.SHA3)
			size = sql.NullInt64{Int64: img.Metadata.Size, Valid: true}
			data, mErr := json.Marshal(img.Metadata)
			if mErr != nil {
				err = fmt.Errorf("failed to serialize metadata: %w", mErr)
				return err
			}
			metaJSON = sql.NullString{String: string(data), Valid: true}
		}

		if _, err = stmt.ExecContext(ctx,
			run.ID,
			img.Query,
			img.Variant,
			img.CaptureDate,
			img.CaptureTime,
			img.SourceURL,
			img.Filename,
			img.Format,
			nullString(img.Path),
			sha3,
			size,
			metaJSON,
		); err != nil {
			return fmt.Errorf("failed to save image %s: %w", img.Filename, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// RunSummary is the row shown by history listings.
type RunSummary struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Mode       string    `json:"mode"`
	Directory  string    `json:"directory"`
	Requested  int       `json:"requested"`
	Candidates int       `json:"candidates"`
	Saved      int       `json:"saved"`
	Failed     int       `json:"failed"`
	Cancelled  bool      `json:"cancelled,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// ListRuns returns runs newest first. An empty query lists every query;
// a non-positive limit lists every run.
func (h *HistoryDB) ListRuns(ctx context.Context, query string, limit int) ([]RunSummary, error) {
	stmt := `
	SELECT id, query, mode, directory, requested, candidates, saved, failed, cancelled,
		error, started_at, finished_at
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)
	if query != "" {
		stmt += " AND query = ?"
		args = append(args, query)
	}
	stmt += " ORDER BY started_at DESC"
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	results := make([]RunSummary, 0)
	for rows.Next() {
		var (
			s          RunSummary
			errMsg     sql.NullString
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(
			&s.ID, &s.Query, &s.Mode, &s.Directory, &s.Requested, &s.Candidates,
			&s.Saved, &s.Failed, &s.Cancelled, &errMsg, &startedAt, &finishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Error = errMsg.String
		s.StartedAt = parseTimestamp(startedAt)
		if finishedAt.Valid {
			s.FinishedAt = parseTimestamp(finishedAt.String)
		}
		results = append(results, s)
	}

	return results, rows.Err()
}

// GetRun returns the stored run with the given ID, or nil when none exists.
// The ID may be a unique prefix of the full ID.
func (h *HistoryDB) GetRun(ctx context.Context, id string) (*model.Run, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT run_json FROM runs WHERE id LIKE ? || '%' ESCAPE '\' LIMIT 2`,
		escapeLike(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	var found []string
	for rows.Next() {
		var runJSON string
		if err := rows.Scan(&runJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		found = append(found, runJSON)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}

	var run model.Run
	if err := json.Unmarshal([]byte(found[0]), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run: %w", err)
	}
	return &run, nil
}

// ErrAmbiguousID is returned by GetRun when an ID prefix matches several runs.
var ErrAmbiguousID = errors.New("run ID prefix matches more than one run")

// ListImages returns the images of a run in download order.
func (h *HistoryDB) ListImages(ctx context.Context, runID string) ([]model.ImageRecord, error) {
	return h.queryImages(ctx, `WHERE run_id = ? ORDER BY id`, runID)
}

// FindImagesBySHA3 returns every stored image whose payload has the given
// digest, oldest first. It finds the same image saved under several queries.
func (h *HistoryDB) FindImagesBySHA3(ctx context.Context, sha3 string) ([]model.ImageRecord, error) {
	return h.queryImages(ctx, `WHERE sha3 = ? ORDER BY id`, sha3)
}

func (h *HistoryDB) queryImages(ctx context.Context, where string, args ...any) ([]model.ImageRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT query, scraper, capture_date, capture_time, image_url, filename, format, path, metadata_json
	FROM images `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	images := make([]model.ImageRecord, 0)
	for rows.Next() {
		var (
			rec      model.ImageRecord
			path     sql.NullString
			metaJSON sql.NullString
		)
		if err := rows.Scan(
			&rec.Query, &rec.Variant, &rec.CaptureDate, &rec.CaptureTime,
			&rec.SourceURL, &rec.Filename, &rec.Format, &path, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		rec.Kind = model.RecordKind
		rec.Path = path.String
		if metaJSON.Valid && metaJSON.String != "" {
			var meta model.ImageMetadata
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
				rec.Metadata = &meta
			}
		}
		images = append(images, rec)
	}

	return images, rows.Err()
}

// CountImagesByFormat returns how many stored images have each format.
// An empty query counts every query.
func (h *HistoryDB) CountImagesByFormat(ctx context.Context, query string) (map[string]int, error) {
	stmt := `SELECT format, COUNT(*) FROM images`
	args := make([]any, 0, 1)
	if query != "" {
		stmt += ` WHERE query = ?`
		args = append(args, query)
	}
	stmt += ` GROUP BY format`

	rows, err := h.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	counts := make(map[string]int)
	for rows.Next() {
		var (
			format string
			n      int
		)
		if err := rows.Scan(&format, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[format] = n
	}
	return counts, rows.Err()
}

// ListQueries returns every distinct query with at least one run, sorted.
func (h *HistoryDB) ListQueries(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT query FROM runs ORDER BY query`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	queries := make([]string, 0)
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("failed to scan query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// DeleteRun removes a run and its images. It reports whether a run existed.
func (h *HistoryDB) DeleteRun(ctx context.Context, id string) (bool, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE run_id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete images: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// escapeLike escapes the LIKE wildcards in s.
func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

// formatTimestamp stores t as sortable UTC text. The zero time is "".
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampLayout has fixed-width fractional seconds so text order is time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// timestampFormats contains the layouts parseTimestamp accepts, most
// specific first.
var timestampFormats = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses s with the first matching layout, or returns the
// zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
