// Package main provides the entry point for the imagescrape CLI.
//
// imagescrape searches an image search engine for a query, picks a random
// subset of the image URLs found and saves them into a directory named
// after the query.
//
// Usage:
//
//	imagescrape --query "cute cats" --num 20
//	imagescrape --reverse --query https://example.com/cat.jpg
//
// See --help for all available options.
package main

func main() {
	Execute()
}
