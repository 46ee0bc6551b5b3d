package lineage

import "github.com/go-sif/rdd/types"

// ForPartition copies a lineage snapshot for the Task computing partition index of target.
// Source Nodes keep only the per-partition state that partition reads, following narrow
// dependencies. Nothing is read past a shuffle, so sources behind one keep no state at all.
func ForPartition(nodes []*Node, target types.DatasetID, index int) []*Node {
	byID := make(map[types.DatasetID]*Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	reads := make(map[types.DatasetID]map[int]bool)
	var visit func(id types.DatasetID, index int)
	visit = func(id types.DatasetID, index int) {
		n, ok := byID[id]
		if !ok || index < 0 || index >= n.NumPartitions {
			return
		}
		switch {
		case n.Transform.Kind == types.SourceKind:
			if reads[id] == nil {
				reads[id] = make(map[int]bool)
			}
			reads[id][index] = true
		case n.Transform.Kind.IsWide():
		case n.Transform.Kind == types.UnionKind:
			for _, pid := range n.Parents {
				p, ok := byID[pid]
				if !ok {
					return
				}
				if index < p.NumPartitions {
					visit(pid, index)
					return
				}
				index -= p.NumPartitions
			}
		default:
			for _, pid := range n.Parents {
				visit(pid, index)
			}
		}
	}
	visit(target, index)

	shipped := make([]*Node, len(nodes))
	for i, n := range nodes {
		src := n.Transform.Source
		if n.Transform.Kind != types.SourceKind || src == nil || src.Slices == nil {
			shipped[i] = n
			continue
		}
		c := *n
		c.Transform.Source = src.ForPartitions(reads[n.ID])
		shipped[i] = &c
	}
	return shipped
}
