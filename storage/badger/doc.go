// Package badger implements the storage repositories on BadgerDB.
// All repositories share a single Backend; composite keys use BigEndian
// encoding so prefix scans iterate in logical order.
package badger
