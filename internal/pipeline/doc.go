// Package pipeline runs the steps that turn one query into images on disk.
//
// A run goes through four steps in order: search (dispatch the request and
// extract candidate URLs), select (random sample of the requested size),
// download (fetch and write each image) and sidecar (append the image records
// to records.jsonl). Every step reads and fills the same model.Run.
//
// BatchProcessor runs one pipeline per query with bounded concurrency using
// errgroup. With the default concurrency of 1 queries run one after another.
package pipeline
