package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/cuemby/crater/pkg/storage"
	"github.com/cuemby/crater/pkg/types"
)

var experimentsBucket = []byte("experiments")

// Command is a single state-change operation in the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opCreate   = "create_experiment"
	opAssign   = "assign_experiment"
	opComplete = "complete_experiment"
	opReport   = "report_experiment"
	opTouch    = "touch_experiment"
	opRelease  = "release_experiment"
)

// craterFSM applies committed registry commands against a durable store.
// Every Apply call runs with the FSM's lock held, so the state mutation
// itself needs no further synchronization; the surrounding Raft.Apply call
// is what serializes concurrent callers into a single log.
type craterFSM struct {
	mu    sync.RWMutex
	store storage.Store
}

func newFSM(store storage.Store) *craterFSM {
	return &craterFSM{store: store}
}

func (f *craterFSM) Apply(l *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opCreate:
		var exp types.Experiment
		if err := json.Unmarshal(cmd.Data, &exp); err != nil {
			return err
		}
		return f.putExperiment(exp)

	case opAssign:
		var req assignRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return err
		}
		return f.applyAssign(req.Agent)

	case opComplete:
		var req completeRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return err
		}
		return f.applyComplete(req.Agent)

	case opReport:
		var req reportRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return err
		}
		return f.applyReport(req.Name, req.Status)

	case opTouch:
		var req touchRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return err
		}
		return f.applyTouch(req.Agent)

	case opRelease:
		var req releaseRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil {
			return err
		}
		return f.applyRelease(req.Name)

	default:
		return fmt.Errorf("unknown registry command: %s", cmd.Op)
	}
}

type assignRequest struct {
	Agent string `json:"agent"`
}

type completeRequest struct {
	Agent string `json:"agent"`
}

type reportRequest struct {
	Name   string            `json:"name"`
	Status types.ReportStatus `json:"status"`
}

type touchRequest struct {
	Agent string `json:"agent"`
}

type releaseRequest struct {
	Name string `json:"name"`
}

// applyAssignResult is returned by an assign command so the caller (via
// raft's future.Response()) can learn which experiment, if any, it got.
type applyAssignResult struct {
	New        bool
	Experiment types.Experiment
	Err        error
}

// applyAssign implements next(agent): if the agent already owns a Running
// experiment, it is returned with New=false; otherwise the oldest Queued
// experiment is transitioned to Running(agent).
func (f *craterFSM) applyAssign(agent string) applyAssignResult {
	var all []types.Experiment
	err := f.store.ForEach(experimentsBucket, func(_, value []byte) error {
		var exp types.Experiment
		if err := json.Unmarshal(value, &exp); err != nil {
			return err
		}
		all = append(all, exp)
		return nil
	})
	if err != nil {
		return applyAssignResult{Err: err}
	}

	for _, exp := range all {
		if exp.Status == types.StatusRunning && exp.Agent == agent {
			return applyAssignResult{New: false, Experiment: exp}
		}
	}

	var oldest *types.Experiment
	for i := range all {
		if all[i].Status != types.StatusQueued {
			continue
		}
		if oldest == nil || all[i].QueuedAt.Before(oldest.QueuedAt) {
			oldest = &all[i]
		}
	}
	if oldest == nil {
		return applyAssignResult{}
	}

	oldest.Status = types.StatusRunning
	oldest.Agent = agent
	if err := f.putExperiment(*oldest); err != nil {
		return applyAssignResult{Err: err}
	}
	return applyAssignResult{New: true, Experiment: *oldest}
}

// applyComplete implements the Running -> Completed transition guard: the
// requesting agent must match the current owner.
func (f *craterFSM) applyComplete(agent string) error {
	var all []types.Experiment
	err := f.store.ForEach(experimentsBucket, func(_, value []byte) error {
		var exp types.Experiment
		if err := json.Unmarshal(value, &exp); err != nil {
			return err
		}
		all = append(all, exp)
		return nil
	})
	if err != nil {
		return err
	}

	for _, exp := range all {
		if exp.Status == types.StatusRunning && exp.Agent == agent {
			exp.Status = types.StatusCompleted
			return f.putExperiment(exp)
		}
	}
	return fmt.Errorf("agent %s has no running experiment", agent)
}

// applyTouch bumps LastSeenAt on the agent's Running experiment. A no-op,
// not an error, if the agent has none: a touch racing a completed
// experiment is expected, not exceptional.
func (f *craterFSM) applyTouch(agent string) error {
	var all []types.Experiment
	err := f.store.ForEach(experimentsBucket, func(_, value []byte) error {
		var exp types.Experiment
		if err := json.Unmarshal(value, &exp); err != nil {
			return err
		}
		all = append(all, exp)
		return nil
	})
	if err != nil {
		return err
	}

	for _, exp := range all {
		if exp.Status == types.StatusRunning && exp.Agent == agent {
			exp.LastSeenAt = time.Now()
			return f.putExperiment(exp)
		}
	}
	return nil
}

// applyRelease implements the stale-agent sweep's Running -> Queued
// transition: the owning agent is cleared and the experiment becomes
// eligible for applyAssign again. A no-op if the experiment is not
// currently Running, since a concurrent complete-experiment may have
// already resolved it.
func (f *craterFSM) applyRelease(name string) error {
	raw, found, err := f.store.Get(experimentsBucket, []byte(name))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("experiment %s not found", name)
	}
	var exp types.Experiment
	if err := json.Unmarshal(raw, &exp); err != nil {
		return err
	}
	if exp.Status != types.StatusRunning {
		return nil
	}
	exp.Status = types.StatusQueued
	exp.Agent = ""
	exp.LastSeenAt = time.Time{}
	return f.putExperiment(exp)
}

func (f *craterFSM) applyReport(name string, status types.ReportStatus) error {
	raw, found, err := f.store.Get(experimentsBucket, []byte(name))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("experiment %s not found", name)
	}
	var exp types.Experiment
	if err := json.Unmarshal(raw, &exp); err != nil {
		return err
	}
	exp.Report = status
	return f.putExperiment(exp)
}

func (f *craterFSM) putExperiment(exp types.Experiment) error {
	data, err := json.Marshal(exp)
	if err != nil {
		return err
	}
	return f.store.Put(experimentsBucket, []byte(exp.Name), data)
}

func (f *craterFSM) get(name string) (types.Experiment, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	raw, found, err := f.store.Get(experimentsBucket, []byte(name))
	if err != nil || !found {
		return types.Experiment{}, found, err
	}
	var exp types.Experiment
	if err := json.Unmarshal(raw, &exp); err != nil {
		return types.Experiment{}, false, err
	}
	return exp, true, nil
}

func (f *craterFSM) runByAgent(agent string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var name string
	var found bool
	err := f.store.ForEach(experimentsBucket, func(_, value []byte) error {
		var exp types.Experiment
		if err := json.Unmarshal(value, &exp); err != nil {
			return err
		}
		if exp.Status == types.StatusRunning && exp.Agent == agent {
			name = exp.Name
			found = true
		}
		return nil
	})
	return name, found, err
}

// listRunning returns every currently-Running experiment, for the
// coordinator's stale-agent sweep to inspect.
func (f *craterFSM) listRunning() ([]types.Experiment, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var running []types.Experiment
	err := f.store.ForEach(experimentsBucket, func(_, value []byte) error {
		var exp types.Experiment
		if err := json.Unmarshal(value, &exp); err != nil {
			return err
		}
		if exp.Status == types.StatusRunning {
			running = append(running, exp)
		}
		return nil
	})
	return running, err
}

// listAll returns every experiment regardless of status, for the
// operator-facing `crater experiment list` command.
func (f *craterFSM) listAll() ([]types.Experiment, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var all []types.Experiment
	err := f.store.ForEach(experimentsBucket, func(_, value []byte) error {
		var exp types.Experiment
		if err := json.Unmarshal(value, &exp); err != nil {
			return err
		}
		all = append(all, exp)
		return nil
	})
	return all, err
}

// Snapshot captures every experiment for Raft log compaction.
func (f *craterFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var all []types.Experiment
	err := f.store.ForEach(experimentsBucket, func(_, value []byte) error {
		var exp types.Experiment
		if err := json.Unmarshal(value, &exp); err != nil {
			return err
		}
		all = append(all, exp)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}

	return &fsmSnapshot{Experiments: all}, nil
}

// Restore replaces local state with a decoded snapshot, used on startup
// and when a follower falls far enough behind to need one.
func (f *craterFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, exp := range snap.Experiments {
		if err := f.putExperiment(exp); err != nil {
			return fmt.Errorf("restore experiment %s: %w", exp.Name, err)
		}
	}
	return nil
}

type fsmSnapshot struct {
	Experiments []types.Experiment
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
