// Package preview turns a fetched HTML document into a link-preview record.
//
// A Summarizer runs one request through a fixed, sequential pipeline:
// bounded fetch, character-encoding resolution, <head> isolation,
// tag-precedence aggregation, URL resolution with optional media-proxy
// rewriting, and optional oEmbed enrichment. The only shared state is the
// read-only Options value; everything else is created per call.
package preview
