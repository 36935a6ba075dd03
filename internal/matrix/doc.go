// Package matrix expands job templates into concrete, runnable instances.
//
// For each job the expander:
//   - evaluates the guards of its axis sets and drops the sets whose
//     guard is false;
//   - takes the ordered cross-product of each remaining set (first axis
//     varies slowest), removes excluded combinations and concatenates the
//     sets in declaration order;
//   - resolves the per-instance scope (parameters, variables, matrix) and
//     evaluates every static expression of the job in it;
//   - flattens template references into a single concrete step list.
//
// A job without a matrix yields exactly one instance with no bindings. A
// matrix whose sets are all guarded out, or whose axes are empty, yields
// zero instances, which is not an error.
//
// Expansion is a pure function of the definition and the parameters: the
// same input always produces the same ordered instances with the same
// identifiers.
package matrix
