// Package database stores the history of image runs in SQLite.
//
// HistoryDB keeps two tables in imagescrape.db:
//   - runs: one row per query run with its counts, status and full JSON
//   - images: one row per downloaded image with its record and metadata
//
// The driver is modernc.org/sqlite, which is CGO-free, so the binary keeps
// cross-compiling. The history database is independent of the per-directory
// records.jsonl files and can be disabled without losing them.
package database
