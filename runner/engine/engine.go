package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"loom.sh/core/log"
	"loom.sh/core/notifier"
	"loom.sh/core/runner/config"
	"loom.sh/core/runner/db"
	"loom.sh/core/runner/models"
)

const (
	workspaceDir = "/loom/workspace"
)

type cleanupFunc func(context.Context) error

type Engine struct {
	docker client.APIClient
	l      *slog.Logger
	cfg    *config.Config
	db     *db.DB
	n      *notifier.Notifier

	cleanupMu sync.Mutex
	cleanup   map[string][]cleanupFunc
}

func New(ctx context.Context, cfg *config.Config, d *db.DB, n *notifier.Notifier) (*Engine, error) {
	dcli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	l := log.FromContext(ctx).With("component", "engine")

	return &Engine{
		docker:  dcli,
		l:       l,
		cfg:     cfg,
		db:      d,
		n:       n,
		cleanup: make(map[string][]cleanupFunc),
	}, nil
}

// WorkspacePath is the host-side directory bind mounted into every
// step container of a workflow. The runner reads it back after the
// step loop for report artifacts and the clean-tree check.
func (e *Engine) WorkspacePath(wid models.WorkflowId) string {
	return filepath.Join(e.cfg.Pipelines.WorkspaceDir, wid.String())
}

// SetupWorkflow creates the workspace directory and a network for the
// workflow, and pulls the step image. These are persisted across
// steps and destroyed at the end of the workflow.
func (e *Engine) SetupWorkflow(ctx context.Context, wid models.WorkflowId, img string) error {
	e.l.Info("setting up workflow", "workflow", wid)

	workspace := e.WorkspacePath(wid)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}
	e.registerCleanup(wid, func(ctx context.Context) error {
		return os.RemoveAll(workspace)
	})

	_, err := e.docker.NetworkCreate(ctx, networkName(wid), network.CreateOptions{
		Driver: "bridge",
	})
	if err != nil {
		return err
	}
	e.registerCleanup(wid, func(ctx context.Context) error {
		return e.docker.NetworkRemove(ctx, networkName(wid))
	})

	err = retry.Do(
		func() error {
			reader, err := e.docker.ImagePull(ctx, img, image.PullOptions{})
			if err != nil {
				return err
			}
			defer reader.Close()
			_, err = io.Copy(io.Discard, reader)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(e.cfg.Pipelines.PullAttempts),
	)
	if err != nil {
		e.l.Error("image pull failed", "image", img, "workflow", wid, "error", err.Error())
		return fmt.Errorf("pulling image: %w", err)
	}

	return nil
}

// RunStep runs a single step in its own container and blocks until it
// exits. A non-zero exit is returned as a StepError; a cancelled or
// expired context returns ErrTimedOut after the container is killed.
func (e *Engine) RunStep(
	ctx context.Context,
	wid models.WorkflowId,
	step models.Step,
	idx int,
	img string,
	workflowEnv map[string]string,
	wfLogger *models.WorkflowLogger,
) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	envs := ConstructEnvs(workflowEnv)
	for k, v := range step.Environment {
		envs.AddEnv(k, v)
	}
	envs.AddEnv("HOME", workspaceDir)
	e.l.Debug("envs for step", "step", step.Name, "envs", envs.Slice())

	resp, err := e.docker.ContainerCreate(ctx, &container.Config{
		Image:      img,
		Cmd:        []string{"sh", "-c", step.Command},
		WorkingDir: workspaceDir,
		Tty:        false,
		Hostname:   "loom",
		Env:        envs.Slice(),
	}, e.hostConfig(wid), nil, nil, "")
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}
	defer e.DestroyStep(context.WithoutCancel(ctx), resp.ID)

	err = e.docker.NetworkConnect(ctx, networkName(wid), resp.ID, nil)
	if err != nil {
		return fmt.Errorf("connecting network: %w", err)
	}

	err = e.docker.ContainerStart(ctx, resp.ID, container.StartOptions{})
	if err != nil {
		return err
	}
	e.l.Info("started container", "name", resp.ID, "step", step.Name)

	// start tailing logs in background
	tailDone := make(chan error, 1)
	go func() {
		tailDone <- e.tailStep(ctx, wfLogger, resp.ID, idx)
	}()

	// wait for container completion or timeout
	waitDone := make(chan struct{})
	var state *container.State
	var waitErr error

	go func() {
		defer close(waitDone)
		state, waitErr = e.WaitStep(ctx, resp.ID)
	}()

	select {
	case <-waitDone:

		// wait for tailing to complete
		<-tailDone

	case <-ctx.Done():
		e.l.Warn("step interrupted; killing container", "container", resp.ID, "step", step.Name)
		err = e.DestroyStep(context.Background(), resp.ID)
		if err != nil {
			e.l.Error("failed to destroy step", "container", resp.ID, "error", err)
		}

		// wait for both goroutines to finish
		<-waitDone
		<-tailDone

		// preemption by a newer run of the same group is a plain
		// cancellation, not a timeout
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return ErrTimedOut
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if waitErr != nil {
		return waitErr
	}

	if state.ExitCode != 0 {
		e.l.Error("step failed",
			"workflow", wid.String(),
			"step", step.Name,
			"exit_code", state.ExitCode,
			"oom_killed", state.OOMKilled,
		)
		return &StepError{
			Step:      step.Name,
			ExitCode:  int64(state.ExitCode),
			OOMKilled: state.OOMKilled,
		}
	}

	return nil
}

func (e *Engine) WaitStep(ctx context.Context, containerID string) (*container.State, error) {
	wait, errCh := e.docker.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case <-wait:
	}

	info, err := e.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, err
	}

	return info.State, nil
}

func (e *Engine) tailStep(ctx context.Context, wfLogger *models.WorkflowLogger, containerID string, stepIdx int) error {
	if wfLogger == nil {
		return nil
	}

	logs, err := e.docker.ContainerLogs(ctx, containerID, container.LogsOptions{
		Follow:     true,
		ShowStdout: true,
		ShowStderr: true,
		Details:    false,
		Timestamps: false,
	})
	if err != nil {
		return err
	}
	defer logs.Close()

	_, err = stdcopy.StdCopy(
		wfLogger.DataWriter(stepIdx, "stdout"),
		wfLogger.DataWriter(stepIdx, "stderr"),
		logs,
	)
	if err != nil && err != io.EOF && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to copy logs: %w", err)
	}

	return nil
}

func (e *Engine) DestroyStep(ctx context.Context, containerID string) error {
	err := e.docker.ContainerKill(ctx, containerID, "9") // SIGKILL
	if err != nil && !isErrContainerNotFoundOrNotRunning(err) {
		return err
	}

	if err := e.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{
		RemoveVolumes: true,
		RemoveLinks:   false,
		Force:         false,
	}); err != nil && !isErrContainerNotFoundOrNotRunning(err) {
		return err
	}

	return nil
}

func (e *Engine) DestroyWorkflow(ctx context.Context, wid models.WorkflowId) error {
	e.cleanupMu.Lock()
	key := wid.String()

	fns := e.cleanup[key]
	delete(e.cleanup, key)
	e.cleanupMu.Unlock()

	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			e.l.Error("failed to cleanup workflow resource", "workflow", wid, "error", err)
		}
	}
	return nil
}

func (e *Engine) registerCleanup(wid models.WorkflowId, fn cleanupFunc) {
	e.cleanupMu.Lock()
	defer e.cleanupMu.Unlock()

	key := wid.String()
	e.cleanup[key] = append(e.cleanup[key], fn)
}

func networkName(wid models.WorkflowId) string {
	return fmt.Sprintf("workflow-network-%s", wid)
}

func (e *Engine) hostConfig(wid models.WorkflowId) *container.HostConfig {
	return &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: e.WorkspacePath(wid),
				Target: workspaceDir,
			},
			{
				Type:     mount.TypeTmpfs,
				Target:   "/tmp",
				ReadOnly: false,
				TmpfsOptions: &mount.TmpfsOptions{
					Mode: 0o1777, // world-writeable sticky bit
					Options: [][]string{
						{"exec"},
					},
				},
			},
		},
		ReadonlyRootfs: false,
		CapDrop:        []string{"ALL"},
		CapAdd:         []string{"CAP_DAC_OVERRIDE"},
		SecurityOpt:    []string{"no-new-privileges"},
		ExtraHosts:     []string{"host.docker.internal:host-gateway"},
	}
}

// thanks woodpecker
func isErrContainerNotFoundOrNotRunning(err error) bool {
	// Error response from daemon: Cannot kill container: ...: No such container: ...
	// Error response from daemon: Cannot kill container: ...: Container ... is not running"
	// Error response from podman daemon: can only kill running containers. ... is in state exited
	// Error: No such container: ...
	return err != nil && (strings.Contains(err.Error(), "No such container") || strings.Contains(err.Error(), "is not running") || strings.Contains(err.Error(), "can only kill running containers"))
}
