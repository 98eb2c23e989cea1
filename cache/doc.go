// Package cache provides a content-addressed embedding cache.
// Entries are keyed by a hash of model and text, so identical inputs
// reuse previously computed vectors across ingestion and querying.
package cache
