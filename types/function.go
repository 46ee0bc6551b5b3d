package types

import (
	"fmt"
	"sync"

	"github.com/go-sif/rdd/errors"
)

// FuncKind is the shape of a registered function
type FuncKind string

const (
	// MapFuncKind functions transform one element into another
	MapFuncKind FuncKind = "map"
	// FilterFuncKind functions decide whether an element is kept
	FilterFuncKind FuncKind = "filter"
	// PartitionFuncKind functions transform a whole partition
	PartitionFuncKind FuncKind = "partition"
	// IndexedPartitionFuncKind functions transform a whole partition, given its index
	IndexedPartitionFuncKind FuncKind = "indexedPartition"
	// CombineFuncKind functions merge two values of the same type
	CombineFuncKind FuncKind = "combine"
	// SeqFuncKind functions fold an element into an accumulator of another type
	SeqFuncKind FuncKind = "seq"
)

// MapFunc transforms one element into another
type MapFunc func(p Params, in Record) (Record, error)

// FilterFunc returns true iff an element should be kept
type FilterFunc func(p Params, in Record) (bool, error)

// PartitionFunc transforms all the elements of a partition
type PartitionFunc func(p Params, in []Record) ([]Record, error)

// IndexedPartitionFunc transforms all the elements of the partition with the given index
type IndexedPartitionFunc func(p Params, index int, in []Record) ([]Record, error)

// CombineFunc merges two values of the same type
type CombineFunc func(p Params, a Record, b Record) (Record, error)

// SeqFunc folds an element into an accumulator
type SeqFunc func(p Params, acc Record, in Record) (Record, error)

// FuncSpec describes a registered function. Exactly one of the function fields is set, according to Kind.
// In is the element type consumed, Out the type produced (the accumulator type for SeqFuncs).
type FuncSpec struct {
	Name             string
	Kind             FuncKind
	In               ElemType
	Out              ElemType
	Map              MapFunc
	Filter           FilterFunc
	Partition        PartitionFunc
	IndexedPartition IndexedPartitionFunc
	Combine          CombineFunc
	Seq              SeqFunc
}

var (
	funcsLock sync.RWMutex
	funcs     = make(map[string]*FuncSpec)
)

func register(spec *FuncSpec) {
	if len(spec.Name) == 0 {
		panic("types: function name must not be empty")
	}
	if !spec.In.Valid() || !spec.Out.Valid() {
		panic(fmt.Sprintf("types: function %s declares an invalid element type", spec.Name))
	}
	funcsLock.Lock()
	defer funcsLock.Unlock()
	if _, exists := funcs[spec.Name]; exists {
		panic(fmt.Sprintf("types: function %s registered twice", spec.Name))
	}
	funcs[spec.Name] = spec
}

// RegisterMap registers a MapFunc under a name. Functions must be registered identically
// in the coordinator and every worker, typically from an init function.
func RegisterMap(name string, in ElemType, out ElemType, fn MapFunc) {
	register(&FuncSpec{Name: name, Kind: MapFuncKind, In: in, Out: out, Map: fn})
}

// RegisterFilter registers a FilterFunc under a name
func RegisterFilter(name string, in ElemType, fn FilterFunc) {
	register(&FuncSpec{Name: name, Kind: FilterFuncKind, In: in, Out: in, Filter: fn})
}

// RegisterPartition registers a PartitionFunc under a name
func RegisterPartition(name string, in ElemType, out ElemType, fn PartitionFunc) {
	register(&FuncSpec{Name: name, Kind: PartitionFuncKind, In: in, Out: out, Partition: fn})
}

// RegisterIndexedPartition registers an IndexedPartitionFunc under a name
func RegisterIndexedPartition(name string, in ElemType, out ElemType, fn IndexedPartitionFunc) {
	register(&FuncSpec{Name: name, Kind: IndexedPartitionFuncKind, In: in, Out: out, IndexedPartition: fn})
}

// RegisterCombine registers a CombineFunc over values of type t
func RegisterCombine(name string, t ElemType, fn CombineFunc) {
	register(&FuncSpec{Name: name, Kind: CombineFuncKind, In: t, Out: t, Combine: fn})
}

// RegisterSeq registers a SeqFunc folding elements of type in into accumulators of type acc
func RegisterSeq(name string, acc ElemType, in ElemType, fn SeqFunc) {
	register(&FuncSpec{Name: name, Kind: SeqFuncKind, In: in, Out: acc, Seq: fn})
}

// LookupFunc retrieves a registered function
func LookupFunc(name string) (*FuncSpec, error) {
	funcsLock.RLock()
	defer funcsLock.RUnlock()
	spec, ok := funcs[name]
	if !ok {
		return nil, errors.UnknownFunctionError{Name: name}
	}
	return spec, nil
}

// LookupFuncOfKind retrieves a registered function, verifying its kind
func LookupFuncOfKind(ref FuncRef, kind FuncKind) (*FuncSpec, error) {
	spec, err := LookupFunc(ref.Name)
	if err != nil {
		return nil, err
	}
	if spec.Kind != kind {
		return nil, errors.PlanningError{
			Op:     string(kind),
			Reason: fmt.Sprintf("function %s is a %s function", ref.Name, spec.Kind),
		}
	}
	return spec, nil
}
