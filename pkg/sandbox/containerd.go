package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"

	"github.com/cuemby/crater/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace crater runs tasks in.
	DefaultNamespace = "crater"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// DefaultImagePrefix toolchain images are tagged "<prefix><toolchain-id>".
	DefaultImagePrefix = "crater-toolchain:"
)

// ContainerdSandbox runs each task as a one-shot containerd task: pull the
// image tagged for the task's toolchain, run the command for the task's
// kind, wait for exit, map the result to an Outcome. Unlike the teacher's
// long-running service containers, there is no port publishing, restart
// policy, or health check -- a build/test/lint invocation runs once and
// exits.
type ContainerdSandbox struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdSandbox connects to the containerd socket at socketPath
// (DefaultSocketPath if empty).
func NewContainerdSandbox(socketPath string) (*ContainerdSandbox, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("sandbox: connect to containerd: %w", err)
	}

	return &ContainerdSandbox{client: client, namespace: DefaultNamespace}, nil
}

func (s *ContainerdSandbox) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Available implements AvailabilityChecker by asking containerd's own
// health endpoint whether it is serving, rather than inferring liveness
// from a failed Execute.
func (s *ContainerdSandbox) Available(ctx context.Context) error {
	serving, err := s.client.IsServing(ctx)
	if err != nil {
		return fmt.Errorf("sandbox: containerd not reachable: %w", err)
	}
	if !serving {
		return fmt.Errorf("sandbox: containerd is not serving")
	}
	return nil
}

func commandFor(task types.Task) []string {
	switch task.Kind {
	case types.TaskPrepare:
		return []string{"crater-exec", "prepare", task.Package.Name, task.Package.Version}
	case types.TaskBuildOnly:
		return []string{"crater-exec", "build", task.Package.Name, task.Package.Version}
	case types.TaskLint:
		return []string{"crater-exec", "lint", task.Package.Name, task.Package.Version}
	default:
		return []string{"crater-exec", "build-and-test", task.Package.Name, task.Package.Version}
	}
}

// Execute implements Sandbox.
func (s *ContainerdSandbox) Execute(ctx context.Context, task types.Task) (types.Outcome, error) {
	ctx = namespaces.WithNamespace(ctx, s.namespace)

	imageRef := DefaultImagePrefix + task.Toolchain.ID
	image, err := s.client.GetImage(ctx, imageRef)
	if err != nil {
		image, err = s.client.Pull(ctx, imageRef, containerd.WithPullUnpack)
		if err != nil {
			return types.OutcomeCompileError, fmt.Errorf("sandbox: pull %s: %w", imageRef, err)
		}
	}

	containerID := fmt.Sprintf("task-%s-%s-%d", task.Package.Key(), task.Toolchain.ID, time.Now().UnixNano())
	args := commandFor(task)

	ctr, err := s.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(oci.WithImageConfig(image), oci.WithProcessArgs(args...)),
	)
	if err != nil {
		return types.OutcomeCompileError, fmt.Errorf("sandbox: create container: %w", err)
	}
	defer func() { _ = ctr.Delete(ctx, containerd.WithSnapshotCleanup) }()

	ctrTask, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return types.OutcomeCompileError, fmt.Errorf("sandbox: create task: %w", err)
	}
	defer func() { _, _ = ctrTask.Delete(ctx) }()

	statusC, err := ctrTask.Wait(ctx)
	if err != nil {
		return types.OutcomeCompileError, fmt.Errorf("sandbox: wait: %w", err)
	}

	if err := ctrTask.Start(ctx); err != nil {
		return types.OutcomeCompileError, fmt.Errorf("sandbox: start: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = ctrTask.Kill(context.Background(), 9)
		return types.OutcomeTimedOut, ctx.Err()
	case status := <-statusC:
		return outcomeFor(task, status.ExitCode()), nil
	}
}

func outcomeFor(task types.Task, exitCode uint32) types.Outcome {
	if exitCode == 0 {
		if task.Kind == types.TaskPrepare {
			return types.OutcomeTestPassed
		}
		return types.OutcomeTestPassed
	}
	if task.Kind == types.TaskPrepare {
		return types.OutcomePrepareFailed
	}
	if exitCode == 101 {
		// convention: the test harness inside the toolchain image exits
		// 101 specifically for a failed test run, distinguishing it from
		// a build that never reached the test phase.
		return types.OutcomeTestFailed
	}
	return types.OutcomeBuildFailed
}
