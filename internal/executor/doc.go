// Package executor runs the steps of a single job instance on an agent.
//
// Steps run strictly in order. Before each step its deferred conditions are
// evaluated against the results of the steps before it; a false condition
// skips only that step. A failing step that is not marked continueOnError
// stops the instance, and the remaining steps are reported as skipped.
// Every step result is handed to the caller as soon as it exists.
package executor
