package util

import (
	"fmt"

	"github.com/go-sif/rdd/types"
)

// SafeMapFunc wraps a MapFunc such that panics are recovered and nice error messages are constructed
func SafeMapFunc(name string, mapFn types.MapFunc) (safeMapFn types.MapFunc) {
	return func(p types.Params, in types.Record) (out types.Record, err error) {
		defer func() {
			if r := recover(); r != nil {
				if anErr, ok := r.(error); ok {
					err = fmt.Errorf("Map Panic in %s: %w\nRecord: %s\n%s", name, anErr, FormatRecord(in), GetTrace())
				} else {
					err = fmt.Errorf("Map Panic in %s: %v\nRecord: %s\n%s", name, r, FormatRecord(in), GetTrace())
				}
			} else if err != nil {
				err = fmt.Errorf("Map Error in %s: %w\nRecord: %s", name, err, FormatRecord(in))
			}
		}()
		out, err = mapFn(p, in)
		return
	}
}

// SafeFilterFunc wraps a FilterFunc such that panics are recovered and nice error messages are constructed
func SafeFilterFunc(name string, filterFn types.FilterFunc) (safeFilterFn types.FilterFunc) {
	return func(p types.Params, in types.Record) (keep bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				if anErr, ok := r.(error); ok {
					err = fmt.Errorf("Filter Panic in %s: %w\nRecord: %s\n%s", name, anErr, FormatRecord(in), GetTrace())
				} else {
					err = fmt.Errorf("Filter Panic in %s: %v\nRecord: %s\n%s", name, r, FormatRecord(in), GetTrace())
				}
			} else if err != nil {
				err = fmt.Errorf("Filter Error in %s: %w\nRecord: %s", name, err, FormatRecord(in))
			}
		}()
		keep, err = filterFn(p, in)
		return
	}
}

// SafePartitionFunc wraps an IndexedPartitionFunc such that panics are recovered and nice error messages are constructed
func SafePartitionFunc(name string, partFn types.IndexedPartitionFunc) (safePartFn types.IndexedPartitionFunc) {
	return func(p types.Params, index int, in []types.Record) (out []types.Record, err error) {
		defer func() {
			if r := recover(); r != nil {
				if anErr, ok := r.(error); ok {
					err = fmt.Errorf("MapPartitions Panic in %s: %w\nPartition: %d\n%s", name, anErr, index, GetTrace())
				} else {
					err = fmt.Errorf("MapPartitions Panic in %s: %v\nPartition: %d\n%s", name, r, index, GetTrace())
				}
			} else if err != nil {
				err = fmt.Errorf("MapPartitions Error in %s: %w\nPartition: %d", name, err, index)
			}
		}()
		out, err = partFn(p, index, in)
		return
	}
}

// SafeCombineFunc wraps a CombineFunc such that panics are recovered and nice error messages are constructed
func SafeCombineFunc(name string, combineFn types.CombineFunc) (safeCombineFn types.CombineFunc) {
	return func(p types.Params, a types.Record, b types.Record) (out types.Record, err error) {
		defer func() {
			if r := recover(); r != nil {
				if anErr, ok := r.(error); ok {
					err = fmt.Errorf("Combine Panic in %s: %w\nLRecord: %s\nRRecord: %s\n%s", name, anErr, FormatRecord(a), FormatRecord(b), GetTrace())
				} else {
					err = fmt.Errorf("Combine Panic in %s: %v\nLRecord: %s\nRRecord: %s\n%s", name, r, FormatRecord(a), FormatRecord(b), GetTrace())
				}
			} else if err != nil {
				err = fmt.Errorf("Combine Error in %s: %w\nLRecord: %s\nRRecord: %s", name, err, FormatRecord(a), FormatRecord(b))
			}
		}()
		out, err = combineFn(p, a, b)
		return
	}
}

// SafeSeqFunc wraps a SeqFunc such that panics are recovered and nice error messages are constructed
func SafeSeqFunc(name string, seqFn types.SeqFunc) (safeSeqFn types.SeqFunc) {
	return func(p types.Params, acc types.Record, in types.Record) (out types.Record, err error) {
		defer func() {
			if r := recover(); r != nil {
				if anErr, ok := r.(error); ok {
					err = fmt.Errorf("Seq Panic in %s: %w\nAccumulator: %s\nRecord: %s\n%s", name, anErr, FormatRecord(acc), FormatRecord(in), GetTrace())
				} else {
					err = fmt.Errorf("Seq Panic in %s: %v\nAccumulator: %s\nRecord: %s\n%s", name, r, FormatRecord(acc), FormatRecord(in), GetTrace())
				}
			} else if err != nil {
				err = fmt.Errorf("Seq Error in %s: %w\nAccumulator: %s\nRecord: %s", name, err, FormatRecord(acc), FormatRecord(in))
			}
		}()
		out, err = seqFn(p, acc, in)
		return
	}
}

// Folder resolves the function used to fold elements into an accumulator: a SeqFunc, or a
// CombineFunc used as one. The result is panic-safe.
func Folder(spec *types.FuncSpec) (types.SeqFunc, error) {
	switch spec.Kind {
	case types.SeqFuncKind:
		return SafeSeqFunc(spec.Name, spec.Seq), nil
	case types.CombineFuncKind:
		return types.SeqFunc(SafeCombineFunc(spec.Name, spec.Combine)), nil
	default:
		return nil, fmt.Errorf("Function %s is a %s function and cannot fold elements", spec.Name, spec.Kind)
	}
}
