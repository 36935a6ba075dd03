// Package storage keeps the full output of steps. The step runner streams
// each step's output into a store and keeps only a short tail in the step
// result, together with the reference the store returned.
package storage
