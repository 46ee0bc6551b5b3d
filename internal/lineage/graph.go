package lineage

import (
	"fmt"
	"sync"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/types"
)

// Node is an immutable Dataset within a lineage Graph
type Node struct {
	ID            types.DatasetID
	Elem          types.ElemType
	Parents       []types.DatasetID
	Transform     types.Transformation
	NumPartitions int
}

// String returns a textual representation of this Node
func (n *Node) String() string {
	return fmt.Sprintf("#%d %s", n.ID, n.Transform)
}

// Graph is an arena of Nodes, indexed by id. Parents are always constructed before their
// children, so the Graph is acyclic by construction.
type Graph struct {
	lock      sync.RWMutex
	nodes     map[types.DatasetID]*Node
	released  map[types.DatasetID]bool
	persisted map[types.DatasetID]bool
	nextID    types.DatasetID
}

// NewGraph creates an empty Graph
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[types.DatasetID]*Node),
		released:  make(map[types.DatasetID]bool),
		persisted: make(map[types.DatasetID]bool),
	}
}

// Build validates and adds a new Node derived from the given parents
func (g *Graph) Build(t types.Transformation, parents ...types.DatasetID) (*Node, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	parentNodes := make([]*Node, len(parents))
	for i, pid := range parents {
		p, err := g.getLocked(pid)
		if err != nil {
			return nil, err
		}
		parentNodes[i] = p
	}
	elem, numPartitions, err := resolve(t, parentNodes)
	if err != nil {
		return nil, err
	}
	g.nextID++
	n := &Node{
		ID:            g.nextID,
		Elem:          elem,
		Parents:       append([]types.DatasetID(nil), parents...),
		Transform:     t,
		NumPartitions: numPartitions,
	}
	g.nodes[n.ID] = n
	return n, nil
}

func (g *Graph) getLocked(id types.DatasetID) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, errors.UnknownDatasetError{ID: int64(id)}
	}
	if g.released[id] {
		return nil, errors.ReleasedDatasetError{ID: int64(id)}
	}
	return n, nil
}

// Get retrieves a live (unreleased) Node
func (g *Graph) Get(id types.DatasetID) (*Node, error) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.getLocked(id)
}

// Node retrieves a Node regardless of whether it has been released.
// Released Nodes are retained so that their descendants remain computable.
func (g *Graph) Node(id types.DatasetID) (*Node, bool) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Release marks a Node as released. Released Nodes cannot be built upon or acted on.
func (g *Graph) Release(id types.DatasetID) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if _, err := g.getLocked(id); err != nil {
		return err
	}
	g.released[id] = true
	delete(g.persisted, id)
	return nil
}

// IsReleased returns true iff the Node has been released
func (g *Graph) IsReleased(id types.DatasetID) bool {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.released[id]
}

// SetPersisted marks whether a Node's partitions should be cached when computed
func (g *Graph) SetPersisted(id types.DatasetID, persist bool) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if _, err := g.getLocked(id); err != nil {
		return err
	}
	if persist {
		g.persisted[id] = true
	} else {
		delete(g.persisted, id)
	}
	return nil
}

// IsPersisted returns true iff a Node's partitions should be cached when computed
func (g *Graph) IsPersisted(id types.DatasetID) bool {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.persisted[id]
}

// Ancestors returns a lazy iterator over the strict ancestors of a Node. Parents of a Node
// are only explored if follow returns true for it (a nil follow explores everything).
func (g *Graph) Ancestors(id types.DatasetID, follow func(*Node) bool) *AncestorIterator {
	it := &AncestorIterator{g: g, follow: follow, visited: map[types.DatasetID]bool{id: true}}
	if n, ok := g.Node(id); ok && (follow == nil || follow(n)) {
		it.push(n.Parents)
	}
	return it
}

// Snapshot returns the Node and every ancestor needed to compute it, along with the ids of
// those which are persisted
func (g *Graph) Snapshot(id types.DatasetID) ([]*Node, []types.DatasetID, error) {
	root, ok := g.Node(id)
	if !ok {
		return nil, nil, errors.UnknownDatasetError{ID: int64(id)}
	}
	nodes := []*Node{root}
	for it := g.Ancestors(id, nil); it.HasNext(); {
		nodes = append(nodes, it.Next())
	}
	g.lock.RLock()
	defer g.lock.RUnlock()
	var persisted []types.DatasetID
	for _, n := range nodes {
		if g.persisted[n.ID] {
			persisted = append(persisted, n.ID)
		}
	}
	return nodes, persisted, nil
}

// Chain describes the Nodes from id back to its source, following first parents
func (g *Graph) Chain(id types.DatasetID) []string {
	var chain []string
	for {
		n, ok := g.Node(id)
		if !ok {
			return chain
		}
		chain = append(chain, n.String())
		if len(n.Parents) == 0 {
			return chain
		}
		id = n.Parents[0]
	}
}
