package types

import (
	"fmt"
)

// TransformKind identifies a Transformation
type TransformKind string

const (
	// SourceKind Datasets read their partitions from a Source connector
	SourceKind TransformKind = "source"
	// MapKind applies a MapFunc to each element
	MapKind TransformKind = "map"
	// FilterKind keeps the elements for which a FilterFunc returns true
	FilterKind TransformKind = "filter"
	// MapPartitionsKind applies a PartitionFunc to each partition
	MapPartitionsKind TransformKind = "mapPartitions"
	// MapPartitionsWithIndexKind applies an IndexedPartitionFunc to each partition
	MapPartitionsWithIndexKind TransformKind = "mapPartitionsWithIndex"
	// UnionKind concatenates the partitions of its parents
	UnionKind TransformKind = "union"
	// SampleKind keeps a deterministic random subset of each partition
	SampleKind TransformKind = "sample"
	// DistinctKind removes duplicate elements
	DistinctKind TransformKind = "distinct"
	// IntersectionKind keeps the distinct elements present in both parents
	IntersectionKind TransformKind = "intersection"
	// SubtractKind keeps the elements of the first parent absent from the second
	SubtractKind TransformKind = "subtract"
	// RepartitionKind redistributes elements evenly across a new number of partitions
	RepartitionKind TransformKind = "repartition"
)

// IsWide returns true iff this kind of Transformation requires a shuffle
func (k TransformKind) IsWide() bool {
	switch k {
	case DistinctKind, IntersectionKind, SubtractKind, RepartitionKind:
		return true
	default:
		return false
	}
}

// Arity returns the number of parents a Transformation of this kind takes, or -1 for "one or more"
func (k TransformKind) Arity() int {
	switch k {
	case SourceKind:
		return 0
	case UnionKind:
		return -1
	case IntersectionKind, SubtractKind:
		return 2
	default:
		return 1
	}
}

// Transformation is a plain-data description of how a Dataset is derived from its parents
type Transformation struct {
	Kind            TransformKind
	Fn              FuncRef           // map, filter, mapPartitions, mapPartitionsWithIndex
	NumPartitions   int               // output partitions of a wide Transformation, 0 to inherit
	WithReplacement bool              // sample
	Fraction        float64           // sample
	Seed            int64             // sample
	Source          *SourceDescriptor // source
}

// String returns a textual representation of this Transformation
func (t Transformation) String() string {
	switch t.Kind {
	case SourceKind:
		if t.Source == nil {
			return "source"
		}
		return fmt.Sprintf("source(%s)", t.Source)
	case MapKind, FilterKind, MapPartitionsKind, MapPartitionsWithIndexKind:
		return fmt.Sprintf("%s(%s)", t.Kind, t.Fn)
	case SampleKind:
		return fmt.Sprintf("sample(withReplacement=%t, fraction=%g, seed=%d)", t.WithReplacement, t.Fraction, t.Seed)
	case RepartitionKind, DistinctKind, IntersectionKind, SubtractKind:
		if t.NumPartitions > 0 {
			return fmt.Sprintf("%s(%d)", t.Kind, t.NumPartitions)
		}
		return string(t.Kind)
	default:
		return string(t.Kind)
	}
}
