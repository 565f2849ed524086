/*
Package graph implements C3: the per-experiment task graph. Tasks are
referenced by an arena index (TaskID int), never by pointer, so the graph
can be serialized, cloned, and rebuilt from a DOT dump without fixing up
pointers.

The graph is guarded by a single mutex (the "graph" lock in the documented
lock order: registry -> graph -> parked-threads). Apart from AddTask while
the graph is being built, NextTask and MarkComplete are the only entry
points that mutate state; everything else is read-only.
*/
package graph

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/cuemby/crater/pkg/metrics"
	"github.com/cuemby/crater/pkg/types"
)

// TaskID indexes into a Graph's node arena.
type TaskID int

type taskNode struct {
	id             TaskID
	task           types.Task
	prereqs        []TaskID
	successors     []TaskID
	pendingPrereqs int
	state          types.TaskState
}

// Graph is one experiment's task graph.
type Graph struct {
	mu    sync.Mutex
	nodes []*taskNode
	ready *list.List // FIFO of TaskID, insertion order, id-ascending tiebreak
	root  TaskID
	// done counts completed-or-failed nodes, to detect Finished in O(1).
	done int
}

// DecisionKind discriminates the three outcomes NextTask can report.
type DecisionKind int

const (
	// DecisionTask means the caller was handed ownership of a ready task.
	DecisionTask DecisionKind = iota
	// DecisionBlocked means no task is ready but the graph is not done --
	// the caller should park until progress is made elsewhere.
	DecisionBlocked
	// DecisionFinished means every node is Done or Failed.
	DecisionFinished
)

// Decision is NextTask's result.
type Decision struct {
	Kind   DecisionKind
	TaskID TaskID
	Task   types.Task
}

// New returns an empty graph; callers build it up with AddTask before any
// NextTask call, typically via NewFromMatrix.
func New() *Graph {
	g := &Graph{ready: list.New()}
	// No node is reserved up front: NewFromMatrix appends the synthetic
	// Root last, once its prerequisites (every execution node) are known.
	return g
}

// AddTask appends a task with the given prerequisite IDs and returns its
// new ID. Prerequisites must already exist (lower IDs), preserving a
// topological arena order.
func (g *Graph) AddTask(task types.Task, prereqs ...TaskID) TaskID {
	id := TaskID(len(g.nodes))
	n := &taskNode{id: id, task: task, prereqs: prereqs, pendingPrereqs: len(prereqs)}
	g.nodes = append(g.nodes, n)
	for _, p := range prereqs {
		g.nodes[p].successors = append(g.nodes[p].successors, id)
	}
	if len(prereqs) == 0 {
		n.state = types.TaskReady
		g.ready.PushBack(id)
	}
	return id
}

// NewFromMatrix builds the standard graph shape: one Prepare task per
// package, one execution task per (package, toolchain) pair depending on
// that package's Prepare, and a single Root depending on every execution
// task. Mode selects the execution task's kind.
func NewFromMatrix(packages []types.Package, toolchains []types.Toolchain, mode types.Mode) *Graph {
	g := New()

	kind := modeToTaskKind(mode)

	prepareOf := make(map[string]TaskID, len(packages))
	for _, p := range packages {
		id := g.AddTask(types.Task{Kind: types.TaskPrepare, Package: p})
		prepareOf[p.Key()] = id
	}

	var execIDs []TaskID
	for _, p := range packages {
		prep := prepareOf[p.Key()]
		for _, tc := range toolchains {
			id := g.AddTask(types.Task{Kind: kind, Package: p, Toolchain: tc}, prep)
			execIDs = append(execIDs, id)
		}
	}

	root := g.AddTask(types.Task{Kind: types.TaskRoot}, execIDs...)
	g.root = root
	return g
}

func modeToTaskKind(mode types.Mode) types.TaskKind {
	switch mode {
	case types.ModeBuildOnly:
		return types.TaskBuildOnly
	case types.ModeLint:
		return types.TaskLint
	default:
		return types.TaskBuildAndTest
	}
}

// NextTask returns the next unit of work, or Blocked/Finished. The caller
// that receives DecisionTask owns that node's execution and must
// eventually call MarkComplete for it.
func (g *Graph) NextTask() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.done == len(g.nodes) {
		return Decision{Kind: DecisionFinished}
	}

	if g.ready.Len() == 0 {
		return Decision{Kind: DecisionBlocked}
	}

	front := g.ready.Front()
	id := g.ready.Remove(front).(TaskID)
	n := g.nodes[id]
	n.state = types.TaskRunning
	return Decision{Kind: DecisionTask, TaskID: id, Task: n.task}
}

// Cascaded describes one descendant that was synthetically terminated as
// PrepareFailed, without ever being dispatched through NextTask. Callers
// must record a result for it themselves (no sandbox invocation occurred).
type Cascaded struct {
	TaskID TaskID
	Task   types.Task
}

// MarkComplete records outcome for id and propagates readiness to its
// successors. Only a failed Prepare cascades: its descendants are
// synthetically terminated and returned as Cascaded so the caller can
// persist a PrepareFailed result for each. A failure on any other task
// kind propagates like a normal completion -- only that task is marked
// Failed, and its successors (at most Root) simply see one fewer pending
// prerequisite. Any task blocked in NextTask's caller should be retried
// after this call returns.
func (g *Graph) MarkComplete(id TaskID, failed bool) []Cascaded {
	g.mu.Lock()
	defer g.mu.Unlock()
	var cascaded []Cascaded
	g.markComplete(id, failed, &cascaded)
	metrics.GraphTasksRemaining.Set(float64(len(g.nodes) - g.done))
	metrics.GraphPendingCrates.Set(float64(g.pendingCratesCount()))
	return cascaded
}

func (g *Graph) markComplete(id TaskID, failed bool, cascaded *[]Cascaded) {
	n := g.nodes[id]
	if n.state == types.TaskDone || n.state == types.TaskFailed {
		return
	}
	if failed {
		n.state = types.TaskFailed
	} else {
		n.state = types.TaskDone
	}
	g.done++

	if failed && n.task.Kind == types.TaskPrepare {
		// Graph-skip (spec.md §4.3): every descendant for this package is
		// synthetically terminated with PrepareFailed, never dispatched.
		// Each descendant's own successors (only Root) still only see a
		// normal decrement -- the cascade never reaches past the
		// package's execution tasks, so Root always transitions through
		// the ordinary Ready/Running/Done path.
		for _, succID := range n.successors {
			g.cascadeSkip(succID, cascaded)
		}
		return
	}

	g.propagate(n)
}

// cascadeSkip synthetically terminates id (a descendant of a failed
// Prepare) without running it, records it for the caller to persist as
// PrepareFailed, and propagates readiness to its own successors exactly
// as a normal completion would.
func (g *Graph) cascadeSkip(id TaskID, cascaded *[]Cascaded) {
	n := g.nodes[id]
	if n.state == types.TaskDone || n.state == types.TaskFailed {
		return
	}
	n.state = types.TaskFailed
	g.done++
	*cascaded = append(*cascaded, Cascaded{TaskID: id, Task: n.task})
	g.propagate(n)
}

func (g *Graph) propagate(n *taskNode) {
	for _, succID := range n.successors {
		succ := g.nodes[succID]
		succ.pendingPrereqs--
		if succ.pendingPrereqs == 0 && succ.state == types.TaskWaiting {
			succ.state = types.TaskReady
			g.ready.PushBack(succID)
		}
	}
}

// PendingCratesCount returns the number of distinct packages that still
// have at least one non-terminal task (Root excluded, since it carries no
// package of its own). A fully drained graph -- NextTask reporting
// Finished -- always reports 0 here.
func (g *Graph) PendingCratesCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pendingCratesCount()
}

func (g *Graph) pendingCratesCount() int {
	pending := make(map[string]struct{})
	for _, n := range g.nodes {
		if n.task.Kind == types.TaskRoot {
			continue
		}
		if n.state != types.TaskDone && n.state != types.TaskFailed {
			pending[n.task.Package.Key()] = struct{}{}
		}
	}
	return len(pending)
}

// State returns the current state of id, for inspection/testing.
func (g *Graph) State(id TaskID) types.TaskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[id].state
}

// Len returns the number of nodes in the graph, including Root.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Task returns the Task value stored at id.
func (g *Graph) Task(id TaskID) types.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[id].task
}

func (g *Graph) String() string {
	return fmt.Sprintf("graph(nodes=%d, done=%d)", len(g.nodes), g.done)
}
