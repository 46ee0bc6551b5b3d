package lineage

import (
	"fmt"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/types"
)

// resolve validates a Transformation against its parents, computing the element type and
// partition count of the resulting Node
func resolve(t types.Transformation, parents []*Node) (types.ElemType, int, error) {
	op := string(t.Kind)
	switch arity := t.Kind.Arity(); {
	case arity < 0 && len(parents) == 0:
		return "", 0, errors.PlanningError{Op: op, Reason: "at least one parent is required"}
	case arity >= 0 && len(parents) != arity:
		return "", 0, errors.PlanningError{Op: op, Reason: fmt.Sprintf("%d parent(s) required, got %d", arity, len(parents))}
	}

	switch t.Kind {
	case types.SourceKind:
		desc := t.Source
		if desc == nil {
			return "", 0, errors.PlanningError{Op: op, Reason: "source descriptor is missing"}
		}
		if _, err := types.LookupSource(desc.Kind); err != nil {
			return "", 0, err
		}
		if !desc.Elem.Valid() {
			return "", 0, errors.PlanningError{Op: op, Reason: fmt.Sprintf("invalid element type %q", desc.Elem)}
		}
		if desc.NumPartitions < 0 {
			return "", 0, errors.PlanningError{Op: op, Reason: "negative partition count"}
		}
		return desc.Elem, desc.NumPartitions, nil

	case types.MapKind, types.MapPartitionsKind, types.MapPartitionsWithIndexKind:
		kind := map[types.TransformKind]types.FuncKind{
			types.MapKind:                    types.MapFuncKind,
			types.MapPartitionsKind:          types.PartitionFuncKind,
			types.MapPartitionsWithIndexKind: types.IndexedPartitionFuncKind,
		}[t.Kind]
		spec, err := types.LookupFuncOfKind(t.Fn, kind)
		if err != nil {
			return "", 0, err
		}
		if !spec.In.Accepts(parents[0].Elem) {
			return "", 0, errors.TypeMismatchError{Op: fmt.Sprintf("%s(%s)", op, spec.Name), Expected: string(spec.In), Actual: string(parents[0].Elem)}
		}
		return spec.Out, parents[0].NumPartitions, nil

	case types.FilterKind:
		spec, err := types.LookupFuncOfKind(t.Fn, types.FilterFuncKind)
		if err != nil {
			return "", 0, err
		}
		if !spec.In.Accepts(parents[0].Elem) {
			return "", 0, errors.TypeMismatchError{Op: fmt.Sprintf("%s(%s)", op, spec.Name), Expected: string(spec.In), Actual: string(parents[0].Elem)}
		}
		return parents[0].Elem, parents[0].NumPartitions, nil

	case types.SampleKind:
		if t.Fraction < 0 || (!t.WithReplacement && t.Fraction > 1) {
			return "", 0, errors.PlanningError{Op: op, Reason: fmt.Sprintf("invalid fraction %g", t.Fraction)}
		}
		return parents[0].Elem, parents[0].NumPartitions, nil

	case types.UnionKind:
		total := 0
		for _, p := range parents {
			if p.Elem != parents[0].Elem {
				return "", 0, errors.TypeMismatchError{Op: op, Expected: string(parents[0].Elem), Actual: string(p.Elem)}
			}
			total += p.NumPartitions
		}
		return parents[0].Elem, total, nil

	case types.DistinctKind:
		return parents[0].Elem, orDefault(t.NumPartitions, parents[0].NumPartitions), nil

	case types.IntersectionKind:
		if parents[1].Elem != parents[0].Elem {
			return "", 0, errors.TypeMismatchError{Op: op, Expected: string(parents[0].Elem), Actual: string(parents[1].Elem)}
		}
		n := parents[0].NumPartitions
		if parents[1].NumPartitions > n {
			n = parents[1].NumPartitions
		}
		return parents[0].Elem, orDefault(t.NumPartitions, n), nil

	case types.SubtractKind:
		if parents[1].Elem != parents[0].Elem {
			return "", 0, errors.TypeMismatchError{Op: op, Expected: string(parents[0].Elem), Actual: string(parents[1].Elem)}
		}
		return parents[0].Elem, orDefault(t.NumPartitions, parents[0].NumPartitions), nil

	case types.RepartitionKind:
		if t.NumPartitions <= 0 {
			return "", 0, errors.PlanningError{Op: op, Reason: fmt.Sprintf("number of partitions must be positive, got %d", t.NumPartitions)}
		}
		return parents[0].Elem, t.NumPartitions, nil

	default:
		return "", 0, errors.PlanningError{Op: op, Reason: "unknown transformation"}
	}
}

// wide dependencies always produce at least one partition, so that shuffles have a target
func orDefault(n int, fallback int) int {
	if n > 0 {
		return n
	}
	if fallback > 0 {
		return fallback
	}
	return 1
}

// ValidateCombine checks that a function can combine (reduce or fold) elements of the given type
func ValidateCombine(op string, fn types.FuncRef, elem types.ElemType) error {
	spec, err := types.LookupFuncOfKind(fn, types.CombineFuncKind)
	if err != nil {
		return err
	}
	if spec.In != elem && spec.In != types.AnyType {
		return errors.TypeMismatchError{Op: fmt.Sprintf("%s(%s)", op, spec.Name), Expected: string(spec.In), Actual: string(elem)}
	}
	return nil
}

// ValidateAggregate checks that seqOp folds elements of the given type into accumulators of the
// zero value's type, and that combOp combines those accumulators
func ValidateAggregate(op string, zero types.Record, seqOp types.FuncRef, combOp types.FuncRef, elem types.ElemType) error {
	seq, err := types.LookupFuncOfKind(seqOp, types.SeqFuncKind)
	if err != nil {
		return err
	}
	if !seq.In.Accepts(elem) {
		return errors.TypeMismatchError{Op: fmt.Sprintf("%s(%s)", op, seq.Name), Expected: string(seq.In), Actual: string(elem)}
	}
	if err := seq.Out.Check(op+" zero value", zero); err != nil {
		return err
	}
	comb, err := types.LookupFuncOfKind(combOp, types.CombineFuncKind)
	if err != nil {
		return err
	}
	if !comb.In.Accepts(seq.Out) {
		return errors.TypeMismatchError{Op: fmt.Sprintf("%s(%s)", op, comb.Name), Expected: string(comb.In), Actual: string(seq.Out)}
	}
	return nil
}
