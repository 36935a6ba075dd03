// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import "time"

// StepOutcome is the terminal result of a single step.
type StepOutcome string

const (
	OutcomeSuccess   StepOutcome = "success"
	OutcomeFailure   StepOutcome = "failure"
	OutcomeSkipped   StepOutcome = "skipped"
	OutcomeTimedOut  StepOutcome = "timed_out"
	OutcomeCancelled StepOutcome = "cancelled"
)

// StepResult is reported by the step runner for every step of an instance,
// as soon as the step is done.
type StepResult struct {
	Instance string `json:"-" yaml:"-"`
	Index    int    `json:"index" yaml:"index"`
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string `json:"name" yaml:"name"`

	Outcome  StepOutcome   `json:"outcome" yaml:"outcome"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	Started  time.Time     `json:"started_at,omitzero" yaml:"started_at,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
	// Output is the tail of the combined output; OutputRef locates the full log.
	Output    string `json:"output,omitempty" yaml:"output,omitempty"`
	OutputRef string `json:"output_ref,omitempty" yaml:"output_ref,omitempty"`
	// Reason explains a skip or an agent error.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	// Tolerated is set when the step failed but was marked continueOnError.
	Tolerated bool `json:"tolerated,omitempty" yaml:"tolerated,omitempty"`
}
