// Package storage defines the persistence interfaces for documents,
// chunks, and the query log, plus the byte-level serialization helpers
// shared by backends. Concrete implementations live in subpackages.
package storage
