// Package inmemorystore provides a thread-safe, in-memory implementation
// of the nodestore.Store interface. It holds the state of a single run and
// is discarded with it.
package inmemorystore
