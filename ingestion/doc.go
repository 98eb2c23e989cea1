// Package ingestion turns uploaded document text into queryable chunks.
// Each chunk is embedded, persisted, and indexed independently on a
// bounded worker pool; the document status settles once every chunk
// outcome is known.
package ingestion
