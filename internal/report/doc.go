// Package report turns the terminal state of a run into a structured report,
// renders it and archives it.
//
// A run succeeds when every instance that is not marked continueOnError
// either succeeded or was skipped by its own condition. Jobs whose matrix
// expanded to nothing are listed as skipped and never fail a run. An aborted
// run always fails.
package report
