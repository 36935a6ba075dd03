// Package cli parses command-line arguments into the application
// configuration and maps errors to process exit codes: 0 when the pipeline
// succeeded, 1 when it failed, 2 for usage and validation errors.
package cli
