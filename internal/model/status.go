// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the instance state machine.
//
//	Pending ──► Blocked ──► Ready ──► Running ──► Succeeded | Failed | TimedOut
//	   │           │          │
//	   └───────────┴──────────┴──► Skipped
//
// Transitions are monotonic; no instance returns to Pending once it left it.

package model

import "fmt"

// Status is the lifecycle state of a job instance.
type Status int

const (
	StatusPending Status = iota
	StatusBlocked
	StatusReady
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusSkipped
	StatusTimedOut
)

var statusNames = [...]string{
	StatusPending:   "pending",
	StatusBlocked:   "blocked",
	StatusReady:     "ready",
	StatusRunning:   "running",
	StatusSucceeded: "succeeded",
	StatusFailed:    "failed",
	StatusSkipped:   "skipped",
	StatusTimedOut:  "timed_out",
}

// allowed lists the legal successor states of each state.
var allowed = map[Status][]Status{
	StatusPending: {StatusBlocked, StatusReady, StatusSkipped},
	StatusBlocked: {StatusReady, StatusSkipped},
	StatusReady:   {StatusRunning, StatusSkipped},
	StatusRunning: {StatusSucceeded, StatusFailed, StatusTimedOut},
}

// String returns the lowercase name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(text))
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusTimedOut:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, candidate := range allowed[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// SkipReason explains why an instance ended Skipped.
type SkipReason string

const (
	SkipNone SkipReason = ""
	// SkipCondition: the job condition evaluated false. Such an instance
	// satisfies its dependents.
	SkipCondition SkipReason = "condition"
	// SkipUpstream: a required dependency failed or was itself skipped.
	SkipUpstream SkipReason = "upstream"
	// SkipAborted: the run was aborted before the instance started.
	SkipAborted SkipReason = "aborted"
)
