package worker

import (
	"context"
	"fmt"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/executor"
	"github.com/go-sif/rdd/internal/lineage"
	"github.com/go-sif/rdd/internal/pstore"
	"github.com/go-sif/rdd/internal/shuffle"
	"github.com/go-sif/rdd/internal/util"
	"github.com/go-sif/rdd/types"
)

// evaluation computes partitions by recursively evaluating the lineage snapshot of a single Task
type evaluation struct {
	rt        *Runtime
	task      *executor.Task
	nodes     map[types.DatasetID]*lineage.Node
	persisted map[types.DatasetID]bool
}

func newEvaluation(rt *Runtime, task *executor.Task) (*evaluation, error) {
	ev := &evaluation{
		rt:        rt,
		task:      task,
		nodes:     make(map[types.DatasetID]*lineage.Node, len(task.Lineage)),
		persisted: make(map[types.DatasetID]bool, len(task.Persisted)),
	}
	for _, n := range task.Lineage {
		ev.nodes[n.ID] = n
	}
	for _, id := range task.Persisted {
		ev.persisted[id] = true
	}
	if _, ok := ev.nodes[task.Target]; !ok {
		return nil, fmt.Errorf("Task (%s) does not carry the lineage of Dataset %d", task, task.Target)
	}
	return ev, nil
}

func (ev *evaluation) compute(ctx context.Context, id types.DatasetID, index int) ([]types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, ok := ev.nodes[id]
	if !ok {
		return nil, errors.UnknownDatasetError{ID: int64(id)}
	}
	if index < 0 || index >= n.NumPartitions {
		return nil, fmt.Errorf("Partition %d of Dataset %d does not exist (%d partitions)", index, id, n.NumPartitions)
	}
	return ev.rt.store.Materialize(ctx, pstore.Key{Dataset: id, Partition: index}, ev.persisted[id], func(ctx context.Context) ([]types.Record, error) {
		return ev.evaluate(ctx, n, index)
	})
}

func (ev *evaluation) evaluate(ctx context.Context, n *lineage.Node, index int) ([]types.Record, error) {
	t := n.Transform
	op := t.String()
	switch t.Kind {
	case types.SourceKind:
		src, err := types.LookupSource(t.Source.Kind)
		if err != nil {
			return nil, err
		}
		records, err := src.Read(ctx, t.Source, index)
		if err != nil {
			return nil, fmt.Errorf("Unable to read partition %d of %s: %w", index, t.Source, err)
		}
		if err := n.Elem.CheckAll(op, records); err != nil {
			return nil, err
		}
		return records, nil

	case types.MapKind:
		in, spec, err := ev.narrowInput(ctx, n, index, types.MapFuncKind)
		if err != nil {
			return nil, err
		}
		fn := util.SafeMapFunc(spec.Name, spec.Map)
		out := make([]types.Record, len(in))
		for i, r := range in {
			if out[i], err = fn(t.Fn.Params, r); err != nil {
				return nil, err
			}
			if err := n.Elem.Check(op, out[i]); err != nil {
				return nil, err
			}
		}
		return out, nil

	case types.FilterKind:
		in, spec, err := ev.narrowInput(ctx, n, index, types.FilterFuncKind)
		if err != nil {
			return nil, err
		}
		fn := util.SafeFilterFunc(spec.Name, spec.Filter)
		out := make([]types.Record, 0, len(in))
		for _, r := range in {
			keep, err := fn(t.Fn.Params, r)
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, r)
			}
		}
		return out, nil

	case types.MapPartitionsKind, types.MapPartitionsWithIndexKind:
		kind := types.PartitionFuncKind
		if t.Kind == types.MapPartitionsWithIndexKind {
			kind = types.IndexedPartitionFuncKind
		}
		in, spec, err := ev.narrowInput(ctx, n, index, kind)
		if err != nil {
			return nil, err
		}
		var fn types.IndexedPartitionFunc
		if spec.Kind == types.PartitionFuncKind {
			fn = func(p types.Params, _ int, in []types.Record) ([]types.Record, error) {
				return spec.Partition(p, in)
			}
		} else {
			fn = spec.IndexedPartition
		}
		// partition functions may reorder their input in place, and it could be a cached partition
		out, err := util.SafePartitionFunc(spec.Name, fn)(t.Fn.Params, index, append([]types.Record(nil), in...))
		if err != nil {
			return nil, err
		}
		if err := n.Elem.CheckAll(op, out); err != nil {
			return nil, err
		}
		return out, nil

	case types.UnionKind:
		offset := index
		for _, pid := range n.Parents {
			p, ok := ev.nodes[pid]
			if !ok {
				return nil, errors.UnknownDatasetError{ID: int64(pid)}
			}
			if offset < p.NumPartitions {
				return ev.compute(ctx, pid, offset)
			}
			offset -= p.NumPartitions
		}
		return nil, fmt.Errorf("Partition %d of union Dataset %d does not map onto a parent", index, n.ID)

	case types.SampleKind:
		in, err := ev.compute(ctx, n.Parents[0], index)
		if err != nil {
			return nil, err
		}
		return sample(in, t.WithReplacement, t.Fraction, t.Seed, index), nil

	case types.DistinctKind:
		in, err := ev.shuffled(ctx, n, 0, index)
		if err != nil {
			return nil, err
		}
		return dedupe(in), nil

	case types.IntersectionKind:
		left, err := ev.shuffled(ctx, n, 0, index)
		if err != nil {
			return nil, err
		}
		right, err := ev.shuffled(ctx, n, 1, index)
		if err != nil {
			return nil, err
		}
		present := keySet(right)
		out := make([]types.Record, 0)
		for _, r := range dedupe(left) {
			if present[shuffle.KeyOf(r)] {
				out = append(out, r)
			}
		}
		return out, nil

	case types.SubtractKind:
		left, err := ev.shuffled(ctx, n, 0, index)
		if err != nil {
			return nil, err
		}
		right, err := ev.shuffled(ctx, n, 1, index)
		if err != nil {
			return nil, err
		}
		absent := keySet(right)
		out := make([]types.Record, 0, len(left))
		for _, r := range left {
			if !absent[shuffle.KeyOf(r)] {
				out = append(out, r)
			}
		}
		return out, nil

	case types.RepartitionKind:
		return ev.shuffled(ctx, n, 0, index)

	default:
		return nil, fmt.Errorf("Unable to evaluate %s", n)
	}
}

// narrowInput computes the parent partition of a narrow, function-based Node and resolves its function
func (ev *evaluation) narrowInput(ctx context.Context, n *lineage.Node, index int, kind types.FuncKind) ([]types.Record, *types.FuncSpec, error) {
	spec, err := types.LookupFuncOfKind(n.Transform.Fn, kind)
	if err != nil {
		return nil, nil, err
	}
	in, err := ev.compute(ctx, n.Parents[0], index)
	if err != nil {
		return nil, nil, err
	}
	return in, spec, nil
}

// shuffled reads the target partition of the shuffle feeding the given parent of a wide Node
func (ev *evaluation) shuffled(ctx context.Context, n *lineage.Node, parent int, index int) ([]types.Record, error) {
	id := types.ShuffleID{Dataset: n.ID, Parent: parent}
	locations, ok := ev.task.Locations(id)
	if !ok {
		return nil, fmt.Errorf("Task (%s) has no input for %s", ev.task, id)
	}
	return ev.rt.reader.Read(ctx, id, index, locations, ev.task.Peers)
}

func keySet(records []types.Record) map[string]bool {
	set := make(map[string]bool, len(records))
	for _, r := range records {
		set[shuffle.KeyOf(r)] = true
	}
	return set
}

// dedupe drops repeated records, keeping the first occurrence of each
func dedupe(records []types.Record) []types.Record {
	seen := make(map[string]bool, len(records))
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		k := shuffle.KeyOf(r)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
