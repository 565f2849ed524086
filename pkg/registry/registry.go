package registry

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/crater/pkg/metrics"
	"github.com/cuemby/crater/pkg/storage"
	"github.com/cuemby/crater/pkg/types"
)

// Config holds the parameters needed to stand up a registry node.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Registry is the durable, single-writer store of experiment state. Every
// write funnels through raft.Apply, which Raft itself serializes into a
// single log. The FSM's RWMutex is the one in-process lock over that state:
// the FSM holds it while applying a committed command, and reads such as
// Get and RunByAgent take it directly without going through Raft.
type Registry struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft  *raft.Raft
	fsm   *craterFSM
	store storage.Store
}

// New prepares a Registry backed by a bbolt store under cfg.DataDir. Call
// Bootstrap or Join before any registry operation.
func New(cfg Config) (*Registry, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	return &Registry{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      newFSM(store),
		store:    store,
	}, nil
}

func (r *Registry) raftConfig() (*raft.Config, *raft.NetworkTransport, raft.SnapshotStore, raft.LogStore, raft.StableStore, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(r.nodeID)

	addr, err := net.ResolveTCPAddr("tcp", r.bindAddr)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(r.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(r.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(r.dataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(r.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("create stable store: %w", err)
	}

	return config, transport, snapshotStore, logStore, stableStore, nil
}

// Bootstrap starts a brand-new single-node cluster with this registry as
// its only member and leader.
func (r *Registry) Bootstrap() error {
	config, transport, snapshotStore, logStore, stableStore, err := r.raftConfig()
	if err != nil {
		return err
	}

	rft, err := raft.NewRaft(config, r.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("create raft: %w", err)
	}
	r.raft = rft

	future := rft.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{
			{ID: config.LocalID, Address: transport.LocalAddr()},
		},
	})
	return future.Error()
}

// Join starts this registry as a follower. The leader must separately
// call AddVoter with this node's ID and bind address before it will
// receive any log entries; coordinating that handshake is cmd/crater's
// job, not the registry's.
func (r *Registry) Join() error {
	config, transport, snapshotStore, logStore, stableStore, err := r.raftConfig()
	if err != nil {
		return err
	}

	rft, err := raft.NewRaft(config, r.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("create raft: %w", err)
	}
	r.raft = rft

	return nil
}

// AddVoter adds a new registry node to the cluster. Only the leader can
// call this successfully.
func (r *Registry) AddVoter(nodeID, address string) error {
	if r.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !r.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", r.LeaderAddr())
	}
	future := r.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	return future.Error()
}

// IsLeader reports whether this node currently holds the Raft leadership.
func (r *Registry) IsLeader() bool {
	return r.raft != nil && r.raft.State() == raft.Leader
}

// LeaderAddr returns the current leader's bind address, empty if unknown.
func (r *Registry) LeaderAddr() string {
	if r.raft == nil {
		return ""
	}
	return string(r.raft.Leader())
}

func (r *Registry) apply(cmd Command) (interface{}, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RegistryCommitDuration)

	if r.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	future := r.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("apply command: %w", err)
	}
	return future.Response(), nil
}

// Create enters a new experiment into the registry in Queued state.
func (r *Registry) Create(exp types.Experiment) error {
	data, err := json.Marshal(exp)
	if err != nil {
		return err
	}
	resp, err := r.apply(Command{Op: opCreate, Data: data})
	if err != nil {
		return err
	}
	if respErr, ok := resp.(error); ok && respErr != nil {
		return respErr
	}
	return nil
}

// Next implements next(agent): if the agent already owns a Running
// experiment it is returned unchanged (new=false); otherwise the oldest
// Queued experiment transitions to Running(agent) and is returned
// (new=true). found is false if there were no candidates at all.
func (r *Registry) Next(agent string) (newAssignment bool, exp types.Experiment, found bool, err error) {
	data, marshalErr := json.Marshal(assignRequest{Agent: agent})
	if marshalErr != nil {
		return false, types.Experiment{}, false, marshalErr
	}
	resp, applyErr := r.apply(Command{Op: opAssign, Data: data})
	if applyErr != nil {
		return false, types.Experiment{}, false, applyErr
	}
	result, ok := resp.(applyAssignResult)
	if !ok {
		return false, types.Experiment{}, false, fmt.Errorf("unexpected assign response type %T", resp)
	}
	if result.Err != nil {
		return false, types.Experiment{}, false, result.Err
	}
	if result.Experiment.Name == "" {
		return false, types.Experiment{}, false, nil
	}
	return result.New, result.Experiment, true, nil
}

// RunByAgent implements run_by_agent(agent): the name of the Running
// experiment owned by agent, if any.
func (r *Registry) RunByAgent(agent string) (string, bool, error) {
	return r.fsm.runByAgent(agent)
}

// Complete implements the Running -> Completed transition guard: it
// requires the requesting agent to be the current owner.
func (r *Registry) Complete(agent string) error {
	data, err := json.Marshal(completeRequest{Agent: agent})
	if err != nil {
		return err
	}
	resp, err := r.apply(Command{Op: opComplete, Data: data})
	if err != nil {
		return err
	}
	if respErr, ok := resp.(error); ok && respErr != nil {
		return respErr
	}
	return nil
}

// SetReportStatus records C8's report-rendering outcome for a completed
// experiment, independent of the experiment's own lifecycle state.
func (r *Registry) SetReportStatus(name string, status types.ReportStatus) error {
	data, err := json.Marshal(reportRequest{Name: name, Status: status})
	if err != nil {
		return err
	}
	resp, err := r.apply(Command{Op: opReport, Data: data})
	if err != nil {
		return err
	}
	if respErr, ok := resp.(error); ok && respErr != nil {
		return respErr
	}
	return nil
}

// Get implements edit(name)'s read half: the current snapshot of an
// experiment. Edit is implemented as Get-then-Save rather than a live
// mutable handle, since every write must still go through raft.Apply.
func (r *Registry) Get(name string) (types.Experiment, bool, error) {
	return r.fsm.get(name)
}

// Save implements save(): commits an edited experiment back through the
// single write path.
func (r *Registry) Save(exp types.Experiment) error {
	data, err := json.Marshal(exp)
	if err != nil {
		return err
	}
	resp, err := r.apply(Command{Op: opCreate, Data: data})
	if err != nil {
		return err
	}
	if respErr, ok := resp.(error); ok && respErr != nil {
		return respErr
	}
	return nil
}

// Touch bumps LastSeenAt on agent's Running experiment, if it has one.
// pkg/agentapi calls it, best-effort, from record-result and from a
// next-experiment that finds the agent already Running; failures are not
// fatal to the caller since a missed touch only shortens the window
// before a stale-agent sweep would otherwise release the experiment.
func (r *Registry) Touch(agent string) error {
	data, err := json.Marshal(touchRequest{Agent: agent})
	if err != nil {
		return err
	}
	resp, err := r.apply(Command{Op: opTouch, Data: data})
	if err != nil {
		return err
	}
	if respErr, ok := resp.(error); ok && respErr != nil {
		return respErr
	}
	return nil
}

// Release transitions a Running experiment back to Queued, clearing its
// owning agent. Used by the coordinator's stale-agent sweep; a no-op if
// the experiment is no longer Running.
func (r *Registry) Release(name string) error {
	data, err := json.Marshal(releaseRequest{Name: name})
	if err != nil {
		return err
	}
	resp, err := r.apply(Command{Op: opRelease, Data: data})
	if err != nil {
		return err
	}
	if respErr, ok := resp.(error); ok && respErr != nil {
		return respErr
	}
	return nil
}

// ListRunning returns every currently-Running experiment. Used by the
// stale-agent sweep to find candidates for Release.
func (r *Registry) ListRunning() ([]types.Experiment, error) {
	return r.fsm.listRunning()
}

// List returns every experiment regardless of status, for `crater
// experiment list`.
func (r *Registry) List() ([]types.Experiment, error) {
	return r.fsm.listAll()
}

// Shutdown releases the Raft instance and the underlying store.
func (r *Registry) Shutdown() error {
	if r.raft != nil {
		if err := r.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}
