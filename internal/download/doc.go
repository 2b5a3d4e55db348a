// Package download fetches selected image URLs one at a time and writes each
// payload into the query's output directory.
//
// The output directory is created on first write and never cleaned up. A file
// is named by its source URL's basename and an existing file of that name is
// overwritten, so of two URLs sharing a basename the later one wins.
//
// By default the first failed fetch or write aborts the loop. With
// WithContinueOnError the failure is recorded and the loop moves on.
package download
