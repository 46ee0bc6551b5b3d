package rdd

import (
	"context"
	"fmt"
	"math"

	"github.com/go-sif/rdd/datasource/file"
	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/executor"
	"github.com/go-sif/rdd/internal/lineage"
	"github.com/go-sif/rdd/internal/util"
	"github.com/go-sif/rdd/types"
	"golang.org/x/sync/errgroup"
)

// takeScaleFactor bounds how quickly Take widens its scan of partitions
const takeScaleFactor = 4

// Collect returns every element of this Dataset, in partition order
func (d *Dataset) Collect(ctx context.Context) ([]types.Record, error) {
	results, err := d.session.runJob(ctx, d, &executor.ActionSpec{Kind: executor.CollectAction}, nil)
	if err != nil {
		return nil, err
	}
	var size int64
	for _, r := range results {
		size += r.Count
	}
	records := make([]types.Record, 0, size)
	for _, r := range results {
		records = append(records, r.Records...)
	}
	return records, nil
}

// Count returns the number of elements in this Dataset
func (d *Dataset) Count(ctx context.Context) (int64, error) {
	results, err := d.session.runJob(ctx, d, &executor.ActionSpec{Kind: executor.CountAction}, nil)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, r := range results {
		count += r.Count
	}
	return count, nil
}

// Take returns the first n elements of this Dataset, in partition order. Partitions are
// scanned incrementally: one partition first, then progressively more based on how many
// elements the previous partitions yielded.
func (d *Dataset) Take(ctx context.Context, n int) ([]types.Record, error) {
	records := make([]types.Record, 0)
	if n <= 0 {
		return records, d.session.checkOpen()
	}
	total := d.node.NumPartitions
	scanned := 0
	for len(records) < n && scanned < total {
		toTry := 1
		if scanned > 0 {
			if len(records) == 0 {
				toTry = scanned * takeScaleFactor
			} else {
				// interpolate the number of partitions needed, overestimating by 50%
				toTry = int(math.Ceil(1.5*float64(n)*float64(scanned)/float64(len(records)))) - scanned
				if toTry < 1 {
					toTry = 1
				}
				if toTry > scanned*takeScaleFactor {
					toTry = scanned * takeScaleFactor
				}
			}
		}
		end := scanned + toTry
		if end > total {
			end = total
		}
		partitions := make([]int, 0, end-scanned)
		for p := scanned; p < end; p++ {
			partitions = append(partitions, p)
		}
		results, err := d.session.runJob(ctx, d, &executor.ActionSpec{Kind: executor.TakeAction, Limit: n - len(records)}, partitions)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			for _, rec := range r.Records {
				if len(records) == n {
					break
				}
				records = append(records, rec)
			}
		}
		scanned = end
	}
	return records, nil
}

// First returns the first element of this Dataset
func (d *Dataset) First(ctx context.Context) (types.Record, error) {
	records, err := d.Take(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.EmptyDatasetError{Op: "first"}
	}
	return records[0], nil
}

// combiner resolves a panic-safe CombineFunc for use on the coordinator
func combiner(fn types.FuncRef) (func(a types.Record, b types.Record) (types.Record, error), error) {
	spec, err := types.LookupFuncOfKind(fn, types.CombineFuncKind)
	if err != nil {
		return nil, err
	}
	combine := util.SafeCombineFunc(spec.Name, spec.Combine)
	return func(a types.Record, b types.Record) (types.Record, error) {
		return combine(fn.Params, a, b)
	}, nil
}

// Fold combines the elements of this Dataset with combine, starting from zero. zero is used
// once per partition and once more to combine the partitions' results, so it should be an
// identity of combine.
func (d *Dataset) Fold(ctx context.Context, zero types.Record, combine types.FuncRef) (types.Record, error) {
	if err := lineage.ValidateCombine("fold", combine, d.node.Elem); err != nil {
		return nil, err
	}
	if err := d.node.Elem.Check("fold zero value", zero); err != nil {
		return nil, err
	}
	comb, err := combiner(combine)
	if err != nil {
		return nil, err
	}
	results, err := d.session.runJob(ctx, d, &executor.ActionSpec{Kind: executor.FoldAction, Zero: zero, HasZero: true, Fold: combine}, nil)
	if err != nil {
		return nil, err
	}
	acc := zero
	for _, r := range results {
		if acc, err = comb(acc, r.Value); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// Reduce combines the elements of this Dataset with combine, which must be commutative and
// associative. Reducing an empty Dataset is an errors.EmptyDatasetError.
func (d *Dataset) Reduce(ctx context.Context, combine types.FuncRef) (types.Record, error) {
	if err := lineage.ValidateCombine("reduce", combine, d.node.Elem); err != nil {
		return nil, err
	}
	comb, err := combiner(combine)
	if err != nil {
		return nil, err
	}
	results, err := d.session.runJob(ctx, d, &executor.ActionSpec{Kind: executor.FoldAction, Fold: combine}, nil)
	if err != nil {
		return nil, err
	}
	var acc types.Record
	found := false
	for _, r := range results {
		switch {
		case !r.HasValue:
		case !found:
			acc, found = r.Value, true
		default:
			if acc, err = comb(acc, r.Value); err != nil {
				return nil, err
			}
		}
	}
	if !found {
		return nil, errors.EmptyDatasetError{Op: "reduce"}
	}
	return acc, nil
}

// partials folds every partition with seqOp, starting from zero
func (d *Dataset) partials(ctx context.Context, op string, zero types.Record, seqOp types.FuncRef, combOp types.FuncRef) ([]types.Record, error) {
	if err := lineage.ValidateAggregate(op, zero, seqOp, combOp, d.node.Elem); err != nil {
		return nil, err
	}
	results, err := d.session.runJob(ctx, d, &executor.ActionSpec{Kind: executor.FoldAction, Zero: zero, HasZero: true, Fold: seqOp}, nil)
	if err != nil {
		return nil, err
	}
	values := make([]types.Record, len(results))
	for i, r := range results {
		values[i] = r.Value
	}
	return values, nil
}

// Aggregate folds the elements of each partition into an accumulator with seqOp, starting from
// zero, then combines the accumulators with combOp, starting from zero again
func (d *Dataset) Aggregate(ctx context.Context, zero types.Record, seqOp types.FuncRef, combOp types.FuncRef) (types.Record, error) {
	values, err := d.partials(ctx, "aggregate", zero, seqOp, combOp)
	if err != nil {
		return nil, err
	}
	comb, err := combiner(combOp)
	if err != nil {
		return nil, err
	}
	acc := zero
	for _, v := range values {
		if acc, err = comb(acc, v); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// TreeAggregate is like Aggregate, but combines the partitions' accumulators in a tree of the
// given depth, each level combining groups of accumulators concurrently
func (d *Dataset) TreeAggregate(ctx context.Context, zero types.Record, seqOp types.FuncRef, combOp types.FuncRef, depth int) (types.Record, error) {
	if depth < 1 {
		return nil, errors.PlanningError{Op: "treeAggregate", Reason: fmt.Sprintf("depth must be at least 1, got %d", depth)}
	}
	values, err := d.partials(ctx, "treeAggregate", zero, seqOp, combOp)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return zero, nil
	}
	comb, err := combiner(combOp)
	if err != nil {
		return nil, err
	}
	scale := int(math.Ceil(math.Pow(float64(len(values)), 1/float64(depth))))
	if scale < 2 {
		scale = 2
	}
	for len(values) > 1 {
		next := make([]types.Record, (len(values)+scale-1)/scale)
		var g errgroup.Group
		for i := range next {
			i := i
			group := values[i*scale : min(len(values), (i+1)*scale)]
			g.Go(func() error {
				acc := group[0]
				for _, v := range group[1:] {
					var err error
					if acc, err = comb(acc, v); err != nil {
						return err
					}
				}
				next[i] = acc
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		values = next
	}
	return values[0], nil
}

func min(a int, b int) int {
	if a < b {
		return a
	}
	return b
}

// SaveTo writes every partition of this Dataset to a Sink. Sinks which are also Committers are
// committed once every partition has been written.
func (d *Dataset) SaveTo(ctx context.Context, desc *types.SinkDescriptor) error {
	sink, err := types.LookupSink(desc.Kind)
	if err != nil {
		return err
	}
	if _, err := d.session.runJob(ctx, d, &executor.ActionSpec{Kind: executor.SaveAction, Sink: desc}, nil); err != nil {
		return err
	}
	if committer, ok := sink.(types.Committer); ok {
		if err := committer.Commit(ctx, desc, d.node.NumPartitions); err != nil {
			return fmt.Errorf("Unable to commit output to %s: %w", desc.Location, err)
		}
	}
	return nil
}

// SaveAsTextFile writes every partition of this Dataset to a text file under path, one element
// per line. Paths starting with s3:// are written to S3.
func (d *Dataset) SaveAsTextFile(ctx context.Context, path string) error {
	return d.SaveTo(ctx, &types.SinkDescriptor{Kind: file.SinkKind, Location: path})
}
