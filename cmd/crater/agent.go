package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/crater/pkg/agentclient"
	"github.com/cuemby/crater/pkg/diskwatch"
	"github.com/cuemby/crater/pkg/fetcher"
	"github.com/cuemby/crater/pkg/graph"
	"github.com/cuemby/crater/pkg/log"
	"github.com/cuemby/crater/pkg/logcapture"
	"github.com/cuemby/crater/pkg/sandbox"
	"github.com/cuemby/crater/pkg/types"
	"github.com/cuemby/crater/pkg/worker"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the agent-side poll/build/report loop (C4)",
}

var agentRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the coordinator for an experiment and execute its task graph",
	RunE:  runAgentRun,
}

func init() {
	agentRunCmd.Flags().String("coordinator", "http://127.0.0.1:8080", "Coordinator base URL")
	agentRunCmd.Flags().String("token", "", "Agent bearer token issued by the coordinator")
	agentRunCmd.Flags().String("name", "", "Agent identity; defaults to the machine hostname")
	agentRunCmd.Flags().Int("workers", 4, "Number of concurrent task workers")
	agentRunCmd.Flags().Duration("poll-interval", 30*time.Second, "Delay between next-experiment polls when idle")
	agentRunCmd.Flags().String("work-dir", "", "Scratch directory; overrides the coordinator-supplied default")
	agentRunCmd.Flags().String("sandbox-socket", "", "containerd socket path")
	agentRunCmd.Flags().String("ca-cert", "", "Path to the coordinator's CA certificate, for trusting a self-signed listener")
	agentCmd.AddCommand(agentRunCmd)
}

func runAgentRun(cmd *cobra.Command, args []string) error {
	agentLog := log.WithComponent("agent")

	coordinatorAddr, _ := cmd.Flags().GetString("coordinator")
	token, _ := cmd.Flags().GetString("token")
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("determine agent name: %w", err)
		}
		name = hostname
	}
	numWorkers, _ := cmd.Flags().GetInt("workers")
	pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
	workDirFlag, _ := cmd.Flags().GetString("work-dir")
	sandboxSocket, _ := cmd.Flags().GetString("sandbox-socket")
	caCertPath, _ := cmd.Flags().GetString("ca-cert")

	var client *agentclient.Client
	if caCertPath != "" {
		var err error
		client, err = agentclient.NewWithCACert(coordinatorAddr, token, caCertPath)
		if err != nil {
			return fmt.Errorf("configure coordinator trust: %w", err)
		}
	} else {
		client = agentclient.New(coordinatorAddr, token)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		agentLog.Info().Msg("shutting down, finishing current task graph")
		cancel()
	}()

	workDir := workDirFlag
	if workDir == "" {
		remoteWorkDir, agentName, err := client.Config(ctx)
		if err != nil {
			return fmt.Errorf("fetch coordinator config: %w", err)
		}
		workDir = remoteWorkDir
		if agentName != "" {
			name = agentName
		}
	}
	agentLog = log.WithAgent(name)

	resultSink := agentclient.ResultSink{Client: client}

	gitFetcher := fetcher.NewGitFetcher(workDir + "/src")
	fetch := fetcher.NewMulti(map[types.PackageSource]fetcher.Fetcher{
		types.SourceGit:      gitFetcher,
		types.SourceRegistry: fetcher.NewRegistryFetcher(),
	})

	var inner sandbox.Sandbox
	containerdSandbox, err := sandbox.NewContainerdSandbox(sandboxSocket)
	if err != nil {
		return fmt.Errorf("connect sandbox: %w", err)
	}
	defer containerdSandbox.Close()
	inner = containerdSandbox

	fullSandbox := &sandbox.FetchingSandbox{Inner: inner, Fetcher: fetch}

	watcher := diskwatch.New(workDir, numWorkers, func() error {
		return os.RemoveAll(workDir + "/src")
	})
	go watcher.Run(ctx)
	defer watcher.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := fullSandbox.Available(ctx); err != nil {
			agentLog.Error().Err(err).Msg("sandbox runtime unavailable, not claiming an experiment")
			if !sleepOrDone(ctx, pollInterval) {
				return nil
			}
			continue
		}

		exp, err := client.NextExperiment(ctx)
		if err != nil {
			agentLog.Error().Err(err).Msg("poll next-experiment failed")
			if !sleepOrDone(ctx, pollInterval) {
				return nil
			}
			continue
		}
		if exp == nil {
			if !sleepOrDone(ctx, pollInterval) {
				return nil
			}
			continue
		}

		expLog := log.WithExperiment(exp.Name).With().Str("component", "agent").Str("agent", name).Logger()
		expLog.Info().Msg("running experiment")

		taskGraph := graph.NewFromMatrix(exp.Packages, []types.Toolchain{exp.Baseline, exp.Candidate}, exp.Mode)
		capture := logcapture.New()

		pool := &worker.Pool{
			N:          numWorkers,
			Experiment: exp.Name,
			Graph:      taskGraph,
			Results:    resultSink,
			Sandbox:    fullSandbox,
			Capture:    capture,
			DiskWatch:  watcher,
		}
		if err := pool.Run(ctx); err != nil {
			expLog.Error().Err(err).Msg("worker pool exited abnormally")
		}
		if notClean := pool.NotClean(); notClean > 0 {
			expLog.Warn().Int64("panicked_tasks", notClean).Msg("experiment finished with recovered panics")
		}

		if err := client.CompleteExperiment(ctx); err != nil {
			expLog.Error().Err(err).Msg("complete-experiment failed")
		} else {
			expLog.Info().Msg("experiment complete")
		}
	}
}

// sleepOrDone waits d or ctx's cancellation, whichever comes first,
// reporting whether the agent should continue polling.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
