// Package notify publishes run progress to external listeners: instance
// state transitions, step results as they stream in, and the final verdict.
//
// Notifiers are called from the scheduler's decision loop and must not
// block it.
package notify
