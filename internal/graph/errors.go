package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle. Jobs starts and ends with the same
// job identifier, e.g. [X Y X].
type CycleError struct {
	Jobs []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle between jobs: %s", strings.Join(e.Jobs, " -> "))
}

// UnknownJobError reports a dependsOn entry naming a job that does not exist.
type UnknownJobError struct {
	Job        string
	Dependency string
}

// Error implements the error interface.
func (e *UnknownJobError) Error() string {
	return fmt.Sprintf("job %q depends on unknown job %q", e.Job, e.Dependency)
}

// UnknownPoolError reports an instance targeting a pool that is not configured.
type UnknownPoolError struct {
	Instance string
	Pool     string
}

// Error implements the error interface.
func (e *UnknownPoolError) Error() string {
	return fmt.Sprintf("instance %q targets unknown agent pool %q", e.Instance, e.Pool)
}
