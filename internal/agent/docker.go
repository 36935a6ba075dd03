package agent

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
)

// containerWorkDir is where the host work directory is mounted.
const containerWorkDir = "/workspace"

// killTimeout bounds the exec that stops an interrupted command.
const killTimeout = 5 * time.Second

// execScript records the shell pid in $0, then replaces itself with the
// command shell so the recorded pid is the one running the script.
const execScript = `echo $$ > "$0" && exec "$1" -c "$2"`

// killScript stops the process recorded in $0 along with its children.
const killScript = `p=$(cat "$0" 2>/dev/null) || exit 0; pkill -KILL -P "$p"; kill -KILL "$p"; rm -f "$0"`

// DockerOptions configure a DockerAgent.
type DockerOptions struct {
	Image string
	// WorkDir is a host directory bind-mounted at /workspace. Empty means
	// no mount.
	WorkDir string
	Shell   string
}

// DockerAgent runs commands with `docker exec` inside one long-lived
// container. The container is created on the first Run and removed by
// Close.
type DockerAgent struct {
	name   string
	opts   DockerOptions
	client *client.Client

	mu          sync.Mutex
	containerID string
}

// NewDockerClient connects to the daemon configured by the DOCKER_*
// environment.
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// NewDockerAgent creates an agent that shares cli with its pool.
func NewDockerAgent(name string, cli *client.Client, opts DockerOptions) *DockerAgent {
	if opts.Shell == "" {
		opts.Shell = DefaultShell
	}
	return &DockerAgent{name: name, opts: opts, client: cli}
}

// Name implements Agent.
func (a *DockerAgent) Name() string { return a.name }

// Run implements Agent.
func (a *DockerAgent) Run(ctx context.Context, cmd Command) (Result, error) {
	ctx, cancel := withTimeout(ctx, cmd)
	defer cancel()

	id, err := a.ensureContainer(ctx)
	if err != nil {
		return Result{ExitCode: -1}, err
	}

	pidFile := "/tmp/pipegrid-" + uuid.NewString() + ".pid"
	created, err := a.client.ContainerExecCreate(ctx, id, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Env:          envSlice(cmd.Env),
		WorkingDir:   a.workingDir(),
		Cmd:          execCommand(a.opts.Shell, pidFile, cmd.Script),
	})
	if err != nil {
		return Result{ExitCode: -1}, a.interrupted(ctx, fmt.Errorf("agent %s: failed to create exec: %w", a.name, err))
	}

	attached, err := a.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return Result{ExitCode: -1}, a.interrupted(ctx, fmt.Errorf("agent %s: failed to attach to exec: %w", a.name, err))
	}
	defer attached.Close()

	// Closing the hijacked connection unblocks StdCopy on cancellation but
	// leaves the exec running, so an interrupted command is killed too.
	done := make(chan struct{})
	defer func() {
		close(done)
		if ctx.Err() != nil {
			a.killExec(ctx, id, pidFile)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			attached.Close()
		case <-done:
		}
	}()

	out := output(cmd)
	if _, err := stdcopy.StdCopy(out, out, attached.Reader); err != nil {
		return Result{ExitCode: -1}, a.interrupted(ctx, fmt.Errorf("agent %s: failed to read exec output: %w", a.name, err))
	}
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("agent %s: command interrupted: %w", a.name, err)
	}

	inspect, err := a.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return Result{ExitCode: -1}, a.interrupted(ctx, fmt.Errorf("agent %s: failed to inspect exec: %w", a.name, err))
	}
	return Result{ExitCode: inspect.ExitCode}, nil
}

// Close removes the agent container, if one was started.
func (a *DockerAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.containerID == "" {
		return nil
	}
	err := a.client.ContainerRemove(context.Background(), a.containerID, container.RemoveOptions{Force: true})
	a.containerID = ""
	if err != nil {
		return fmt.Errorf("agent %s: failed to remove container: %w", a.name, err)
	}
	return nil
}

func (a *DockerAgent) ensureContainer(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.containerID != "" {
		return a.containerID, nil
	}
	logger := ctxlog.FromContext(ctx).With("agent", a.name, "image", a.opts.Image)

	if err := a.pullIfMissing(ctx); err != nil {
		return "", err
	}

	hostConfig := &container.HostConfig{}
	if a.opts.WorkDir != "" {
		hostConfig.Binds = []string{fmt.Sprintf("%s:%s", a.opts.WorkDir, containerWorkDir)}
	}
	resp, err := a.client.ContainerCreate(ctx, &container.Config{
		Image:     a.opts.Image,
		OpenStdin: true,
		Cmd:       []string{"tail", "-f", "/dev/null"},
		Labels:    map[string]string{"pipegrid.agent": a.name},
	}, hostConfig, nil, nil, "pipegrid-"+a.name+"-"+uuid.NewString()[:8])
	if err != nil {
		return "", fmt.Errorf("agent %s: failed to create container: %w", a.name, err)
	}
	if err := a.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = a.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("agent %s: failed to start container: %w", a.name, err)
	}
	logger.Debug("Agent container started.", "container", resp.ID)
	a.containerID = resp.ID
	return resp.ID, nil
}

func (a *DockerAgent) pullIfMissing(ctx context.Context) error {
	args := filters.NewArgs(filters.Arg("reference", a.opts.Image))
	images, err := a.client.ImageList(ctx, image.ListOptions{Filters: args})
	if err != nil {
		return fmt.Errorf("agent %s: failed to list images: %w", a.name, err)
	}
	if len(images) > 0 {
		return nil
	}
	ctxlog.FromContext(ctx).Info("⬇️ Pulling agent image.", "agent", a.name, "image", a.opts.Image)
	progress, err := a.client.ImagePull(ctx, a.opts.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("agent %s: failed to pull image %s: %w", a.name, a.opts.Image, err)
	}
	defer progress.Close()
	if _, err := io.Copy(io.Discard, progress); err != nil {
		return fmt.Errorf("agent %s: failed to pull image %s: %w", a.name, a.opts.Image, err)
	}
	return nil
}

// execCommand passes script as an argument so it needs no quoting.
func execCommand(shell, pidFile, script string) []string {
	return []string{shell, "-c", execScript, pidFile, shell, script}
}

// killExec stops the command whose shell pid is in pidFile. ctx is done
// and only carries the logger.
func (a *DockerAgent) killExec(ctx context.Context, containerID, pidFile string) {
	logger := ctxlog.FromContext(ctx).With("agent", a.name)
	killCtx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	created, err := a.client.ContainerExecCreate(killCtx, containerID, container.ExecOptions{
		Cmd: []string{a.opts.Shell, "-c", killScript, pidFile},
	})
	if err != nil {
		logger.Warn("Failed to stop interrupted command.", "error", err)
		return
	}
	if err := a.client.ContainerExecStart(killCtx, created.ID, container.ExecStartOptions{Detach: true}); err != nil {
		logger.Warn("Failed to stop interrupted command.", "error", err)
	}
}

func (a *DockerAgent) workingDir() string {
	if a.opts.WorkDir == "" {
		return ""
	}
	return containerWorkDir
}

// interrupted prefers the context error when ctx ended during a call.
func (a *DockerAgent) interrupted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("agent %s: command interrupted: %w", a.name, ctxErr)
	}
	return err
}
