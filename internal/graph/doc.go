// Package graph builds the RunGraph: the set of expanded job instances plus
// the dependency edges between them.
//
// # Why Graph Package Exists
//
// Dependencies are declared between jobs, but the scheduler works on
// instances. The graph package is where the two meet:
//
//  1. The job-level graph is built from `dependsOn` and validated: every
//     referenced job must exist (*UnknownJobError) and the graph must be
//     acyclic (*CycleError, listing the job identifiers on the cycle).
//  2. Each job-level edge U -> D is expanded to an edge from every instance
//     of U to every instance of D. A job with zero instances contributes no
//     edges, so it never blocks its dependents.
//  3. The instance-level graph is checked for cycles once more.
//
// Dependencies are coarse: there is no way to make a dependent wait on only
// some instances of a matrix job.
//
// The RunGraph is immutable once built. Mutable execution state lives in
// the scheduler and the node store, never here.
package graph
