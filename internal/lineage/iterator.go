package lineage

import (
	"github.com/go-sif/rdd/types"
)

// AncestorIterator lazily walks the ancestors of a Node, depth first.
// Each Node is produced at most once per iterator.
type AncestorIterator struct {
	g       *Graph
	follow  func(*Node) bool
	stack   []types.DatasetID
	visited map[types.DatasetID]bool
}

func (it *AncestorIterator) push(ids []types.DatasetID) {
	// reverse order, so that first parents are visited first
	for i := len(ids) - 1; i >= 0; i-- {
		if !it.visited[ids[i]] {
			it.visited[ids[i]] = true
			it.stack = append(it.stack, ids[i])
		}
	}
}

// HasNext returns true iff there are more ancestors to visit
func (it *AncestorIterator) HasNext() bool {
	return len(it.stack) > 0
}

// Next returns the next ancestor
func (it *AncestorIterator) Next() *Node {
	if len(it.stack) == 0 {
		return nil
	}
	id := it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	n, ok := it.g.Node(id)
	if !ok {
		return it.Next()
	}
	if it.follow == nil || it.follow(n) {
		it.push(n.Parents)
	}
	return n
}
