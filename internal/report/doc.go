// Package report renders run results and persists image records.
//
// Writers summarize one or more model.Run values:
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: tables and a mermaid pie chart of image formats
//
// SidecarWriter appends image records as JSON lines; AppendSidecar is the
// file-level helper used for each output directory's records.jsonl.
package report
