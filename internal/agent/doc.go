// Package agent runs step commands on execution resources.
//
// An Agent runs one command at a time. Agents are grouped in named pools;
// a pool hands out at most as many agents as it has slots, and answers
// TryAcquire with ErrAgentUnavailable when all of them are busy. The
// scheduler treats that as a signal to requeue, never as a failure.
//
// Two implementations exist: ShellAgent runs commands with `sh -c` on the
// local host, DockerAgent runs them with `docker exec` inside a container
// that lives as long as the agent.
package agent
