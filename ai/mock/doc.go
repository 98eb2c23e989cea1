// Package mock provides test doubles for the ai package interfaces.
// The defaults are deterministic so tests are reproducible without
// network access; behavior can be overridden via function fields.
package mock
