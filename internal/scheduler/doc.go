// Package scheduler executes a run graph to completion.
//
// # Why Scheduler Exists
//
// The scheduler is the only component that changes instance state. It runs
// a single decision loop that owns every transition; instances execute in
// worker goroutines that report step results and their final outcome back
// over one channel and never touch scheduling state themselves.
//
// # How It Works
//
// Every instance starts Pending and moves to Blocked while it has
// dependencies that are not terminal. When the last one settles the loop
// decides, once, between Ready and Skipped:
//   - a dependency that Failed or TimedOut without continueOnError, or that
//     was itself skipped because of its upstream or an abort, skips the
//     dependent with reason "upstream"
//   - anything else, including dependencies skipped by their own
//     condition, satisfies it
//
// Ready instances wait in a FIFO queue until their pool hands out an agent.
// A busy pool is not an error: the instance stays queued and is retried
// when an agent is released or the retry interval elapses.
//
// # Abort
//
// Abort, or cancelling the context passed to Run, skips every instance that
// has not started (reason "aborted") and cancels the running ones, which end
// Failed. Run returns once every worker has reported back.
package scheduler
