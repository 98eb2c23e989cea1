// Package retrieval implements hybrid passage retrieval: concurrent
// vector similarity and keyword fallback search, identity-based
// deduplication with vector precedence, neighbor expansion, and merging
// of contiguous chunk runs into passages.
package retrieval
