/*
Package nodeid provides a structured, type-safe representation for job
instance identifiers.

The canonical format is the job identifier, optionally followed by the
instance's matrix bindings in axis declaration order:

	lint
	test[channel=stable,os=linux]

Identifiers are deterministic: the same job and the same matrix binding
always produce the same string, which is used as the key throughout the
graph, the scheduler and the run report.
*/
package nodeid
