/*
Package expr evaluates pipeline expressions: conditions, string templates,
policy predicates and parameter values.

Expressions are HCL native-syntax expressions evaluated against a Scope,
which exposes a fixed set of root objects:

	parameters.<name>       resolved pipeline (or template) parameters
	variables.<name>        global and job variables
	matrix.<axis>           the matrix binding of the current instance
	job.status              runtime only: "success" until a step fails
	job.failed_steps        runtime only: number of tolerated step failures
	steps.<id>.outcome      runtime only: outcome of an earlier step
	steps.<id>.exit_code    runtime only: exit code of an earlier step

An expression that refers to a runtime root cannot be evaluated during
expansion; IsRuntime reports this so callers can defer it. Every failure,
whether a syntax error, an undefined reference or a type mismatch, is
reported as an *EvaluationError.
*/
package expr
