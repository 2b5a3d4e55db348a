// Package config provides configuration structures and utilities for imagescrape.
// It defines the defaults for search requests, downloads and output layout,
// loads the optional .imagescrape YAML file, and resolves XDG directories.
package config
