package graph

import (
	"fmt"

	"strata/internal/state"
)

// PointKind enumerates the kinds of program points a node can sit at.
type PointKind uint8

const (
	PointInvalid PointKind = iota
	// PointEntry is the start of an analyzed function.
	PointEntry
	// PointPost is the point just after an instruction took effect.
	PointPost
	// PointBranchTrue is the point after taking a branch's true edge.
	PointBranchTrue
	// PointBranchFalse is the point after taking a branch's false edge.
	PointBranchFalse
	// PointCallExit is the point after an analyzed or opaque call.
	PointCallExit
	// PointExit is the end of an analyzed function.
	PointExit
)

func (k PointKind) String() string {
	switch k {
	case PointEntry:
		return "entry"
	case PointPost:
		return "post"
	case PointBranchTrue:
		return "branch-true"
	case PointBranchFalse:
		return "branch-false"
	case PointCallExit:
		return "call-exit"
	case PointExit:
		return "exit"
	default:
		return fmt.Sprintf("PointKind(%d)", k)
	}
}

// ProgramPoint locates a node in the analyzed function.
type ProgramPoint struct {
	Kind  PointKind
	Node  uint32 // instruction the point refers to
	Frame uint32 // owning stack frame
}

// Node pairs a program point with the state holding there. Nodes are
// deduplicated: re-deriving the same (point, state) pair reuses the
// existing node, which is what terminates exploration of converged
// paths.
type Node struct {
	Point ProgramPoint
	State *state.ProgramState

	preds []*Node
	succs []*Node
}

// Preds returns the predecessor nodes in discovery order.
func (n *Node) Preds() []*Node { return n.preds }

// Succs returns the successor nodes in discovery order.
func (n *Node) Succs() []*Node { return n.succs }

type nodeKey struct {
	point ProgramPoint
	state state.StateID
}

// Graph is the exploration graph: a directed graph of (point, state)
// nodes produced by path exploration. Single-threaded.
type Graph struct {
	nodes map[nodeKey]*Node
	order []*Node
	root  *Node
}

// New constructs an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[nodeKey]*Node, 256)}
}

// Root returns the entry node, nil before AddRoot.
func (g *Graph) Root() *Node { return g.root }

// Len returns the number of distinct nodes.
func (g *Graph) Len() int { return len(g.order) }

// Nodes returns all nodes in discovery order.
func (g *Graph) Nodes() []*Node { return g.order }

// AddRoot installs the entry node.
func (g *Graph) AddRoot(point ProgramPoint, st *state.ProgramState) *Node {
	n, _ := g.intern(point, st)
	g.root = n
	return n
}

// AddNode returns the node for (point, st), creating it if needed, and
// links pred to it. The second result reports whether the node is new;
// false means exploration converged on an already-visited pair and the
// caller should stop extending this path.
func (g *Graph) AddNode(point ProgramPoint, st *state.ProgramState, pred *Node) (*Node, bool) {
	n, fresh := g.intern(point, st)
	if pred != nil {
		pred.succs = append(pred.succs, n)
		n.preds = append(n.preds, pred)
	}
	return n, fresh
}

func (g *Graph) intern(point ProgramPoint, st *state.ProgramState) (*Node, bool) {
	key := nodeKey{point: point, state: st.ID()}
	if n, ok := g.nodes[key]; ok {
		return n, false
	}
	n := &Node{Point: point, State: st}
	st.Retain()
	g.nodes[key] = n
	g.order = append(g.order, n)
	return n, true
}

// PathToRoot returns the shortest backward path [n, ..., root],
// following predecessor edges breadth-first. Ties resolve to the
// earliest-discovered predecessor, so the result is deterministic for a
// fixed graph.
func PathToRoot(n *Node) []*Node {
	if n == nil {
		return nil
	}
	parent := map[*Node]*Node{n: nil}
	queue := []*Node{n}
	var end *Node
	for len(queue) > 0 && end == nil {
		curr := queue[0]
		queue = queue[1:]
		if len(curr.preds) == 0 {
			end = curr
			break
		}
		for _, p := range curr.preds {
			if _, seen := parent[p]; seen {
				continue
			}
			parent[p] = curr
			queue = append(queue, p)
		}
	}
	if end == nil {
		return []*Node{n}
	}

	// Walk the parent chain back from the root end to n, collecting
	// nodes in error-node-first order.
	var path []*Node
	for at := end; at != nil; at = parent[at] {
		path = append(path, at)
	}
	// path is [root, ..., n]; reverse it.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
