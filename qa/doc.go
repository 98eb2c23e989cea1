// Package qa orchestrates the question answering path: query
// reformulation, embedding, hybrid retrieval, and answer synthesis,
// with every terminal outcome recorded to the query log.
package qa
