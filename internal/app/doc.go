// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle: load a definition,
// expand it, schedule it on agent pools, then report and archive the
// result. It is decoupled from any specific entrypoint like a CLI.
package app
