// Package model defines the core data structures used throughout imagescrape.
//
// This package contains the following main types:
//   - Query: The text or image URL that drives one search, tagged with its Mode
//   - ImageRecord: Metadata derived for every downloaded image
//   - Run: The typed result of fetching images for one query
//
// Models live in their own package so that the search, download, pipeline,
// database and report packages can share them without import cycles.
// All types serialize to JSON for the sidecar file, reports and the
// history database.
package model
