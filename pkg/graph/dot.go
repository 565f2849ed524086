package graph

import (
	"container/list"
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/cuemby/crater/pkg/types"
)

// dotNode is the gonum graph.Node representation of one taskNode, carrying
// enough of its domain fields to round-trip through DOT without loss.
type dotNode struct {
	gid   int64
	id    TaskID
	task  types.Task
	state types.TaskState
}

func (n *dotNode) ID() int64 { return n.gid }

// DOTID implements dot.Node for marshaling.
func (n *dotNode) DOTID() string { return fmt.Sprintf("task%d", n.id) }

// SetDOTID implements dot.DOTIDSetter for unmarshaling.
func (n *dotNode) SetDOTID(id string) {
	var taskID int
	_, _ = fmt.Sscanf(id, "task%d", &taskID)
	n.id = TaskID(taskID)
}

// Attributes implements encoding.Attributer for marshaling.
func (n *dotNode) Attributes() []encoding.Attribute {
	attrs := []encoding.Attribute{
		{Key: "kind", Value: string(n.task.Kind)},
		{Key: "state", Value: n.state.String()},
	}
	if n.task.Package.Name != "" {
		attrs = append(attrs, encoding.Attribute{Key: "package", Value: n.task.Package.Key()})
	}
	if n.task.Toolchain.ID != "" {
		attrs = append(attrs, encoding.Attribute{Key: "toolchain", Value: n.task.Toolchain.ID})
	}
	if n.state == types.TaskFailed && n.task.Kind == types.TaskPrepare {
		attrs = append(attrs,
			encoding.Attribute{Key: "style", Value: "dashed"},
			encoding.Attribute{Key: "color", Value: "red"},
		)
	}
	return attrs
}

// UnmarshalDOTAttr implements dot.UnmarshalerAttrer for unmarshaling.
func (n *dotNode) UnmarshalDOTAttr(attr encoding.Attribute) error {
	switch attr.Key {
	case "kind":
		n.task.Kind = types.TaskKind(attr.Value)
	case "state":
		n.state = parseTaskState(attr.Value)
	case "package":
		n.task.Package.Name = attr.Value
	case "toolchain":
		n.task.Toolchain.ID = attr.Value
	}
	return nil
}

func parseTaskState(s string) types.TaskState {
	switch s {
	case "waiting":
		return types.TaskWaiting
	case "ready":
		return types.TaskReady
	case "running":
		return types.TaskRunning
	case "done":
		return types.TaskDone
	case "failed":
		return types.TaskFailed
	default:
		return types.TaskWaiting
	}
}

// builder adapts simple.DirectedGraph so dot.Unmarshal populates *dotNode
// values instead of gonum's bare simple.Node.
type builder struct {
	*simple.DirectedGraph
	next int64
}

func newBuilder() *builder {
	return &builder{DirectedGraph: simple.NewDirectedGraph()}
}

func (b *builder) NewNode() graph.Node {
	n := &dotNode{gid: b.next}
	b.next++
	return n
}

// GenerateDOT renders the graph's current shape and per-node state as a
// Graphviz DOT document.
func (g *Graph) GenerateDOT() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	dg := simple.NewDirectedGraph()
	nodesByID := make(map[TaskID]*dotNode, len(g.nodes))
	for _, n := range g.nodes {
		dn := &dotNode{gid: int64(n.id), id: n.id, task: n.task, state: n.state}
		nodesByID[n.id] = dn
		dg.AddNode(dn)
	}
	for _, n := range g.nodes {
		for _, succID := range n.successors {
			dg.SetEdge(dg.NewEdge(nodesByID[n.id], nodesByID[succID]))
		}
	}

	data, err := dot.Marshal(dg, "taskgraph", "", "  ")
	if err != nil {
		return "", fmt.Errorf("graph: marshal dot: %w", err)
	}
	return string(data), nil
}

// ParseDOT reconstructs a Graph from a DOT document previously produced by
// GenerateDOT. The round trip preserves node kind and state, the toolchain
// ID, and every prerequisite/successor edge, making the two graphs
// isomorphic. The package attribute holds Package.Key() ("name@version")
// and is read back into Package.Name whole; Version, Source and Ref are
// not restored.
func ParseDOT(data []byte) (*Graph, error) {
	b := newBuilder()
	if err := dot.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("graph: unmarshal dot: %w", err)
	}

	g := &Graph{ready: list.New()}

	maxID := TaskID(-1)
	byID := make(map[TaskID]*dotNode)
	nodes := b.Nodes()
	for nodes.Next() {
		dn := nodes.Node().(*dotNode)
		byID[dn.id] = dn
		if dn.id > maxID {
			maxID = dn.id
		}
	}

	g.nodes = make([]*taskNode, maxID+1)
	for id, dn := range byID {
		g.nodes[id] = &taskNode{id: id, task: dn.task, state: dn.state}
	}

	edges := b.Edges()
	for edges.Next() {
		e := edges.Edge()
		from := e.From().(*dotNode).id
		to := e.To().(*dotNode).id
		g.nodes[from].successors = append(g.nodes[from].successors, to)
		g.nodes[to].prereqs = append(g.nodes[to].prereqs, from)
	}

	for _, n := range g.nodes {
		for _, p := range n.prereqs {
			if g.nodes[p].state != types.TaskDone {
				n.pendingPrereqs++
			}
		}
		if n.state == types.TaskReady {
			g.ready.PushBack(n.id)
		}
		if n.state == types.TaskDone || n.state == types.TaskFailed {
			g.done++
		}
	}

	return g, nil
}
