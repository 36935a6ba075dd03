// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the concrete, fully expanded units the execution core
// works with: job instances, their steps, the instance state machine and
// step results.
//
// Everything here is produced by the matrix expander and never contains an
// unevaluated expression, with one exception: step conditions that refer to
// runtime values (`steps.*`, `job.*`). Those are carried as Conditions
// together with the scope captured at expansion time, and the step runner
// evaluates them right before the step would start.
package model
