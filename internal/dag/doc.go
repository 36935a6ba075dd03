// Package dag provides a small, concurrency-safe directed graph keyed by
// string IDs, with cycle detection and topological ordering. Node and edge
// iteration follows insertion order, so every traversal is deterministic.
//
// The graph knows nothing about jobs or instances; the graph package builds
// both the job-level and the instance-level graphs on top of it.
package dag
