package functions

import (
	"fmt"
	"math"

	"github.com/go-sif/rdd/types"
)

func init() {
	types.RegisterMap("int.add", types.IntType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		n, err := p.Int("n")
		if err != nil {
			return nil, err
		}
		return in.(int64) + n, nil
	})
	types.RegisterMap("int.multiply", types.IntType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		n, err := p.Int("n")
		if err != nil {
			return nil, err
		}
		return in.(int64) * n, nil
	})
	types.RegisterMap("int.mod", types.IntType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		n, err := p.Int("n")
		if err != nil {
			return nil, err
		} else if n == 0 {
			return nil, fmt.Errorf("Modulus must not be zero")
		}
		return in.(int64) % n, nil
	})
	types.RegisterMap("int.toFloat", types.IntType, types.FloatType, func(p types.Params, in types.Record) (types.Record, error) {
		return float64(in.(int64)), nil
	})
	types.RegisterMap("float.multiply", types.FloatType, types.FloatType, func(p types.Params, in types.Record) (types.Record, error) {
		f, err := p.Float("f")
		if err != nil {
			return nil, err
		}
		return in.(float64) * f, nil
	})
	types.RegisterMap("float.round", types.FloatType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		return int64(math.Round(in.(float64))), nil
	})

	types.RegisterCombine("int.sum", types.IntType, func(p types.Params, a types.Record, b types.Record) (types.Record, error) {
		return a.(int64) + b.(int64), nil
	})
	types.RegisterCombine("int.min", types.IntType, func(p types.Params, a types.Record, b types.Record) (types.Record, error) {
		if b.(int64) < a.(int64) {
			return b, nil
		}
		return a, nil
	})
	types.RegisterCombine("int.max", types.IntType, func(p types.Params, a types.Record, b types.Record) (types.Record, error) {
		if b.(int64) > a.(int64) {
			return b, nil
		}
		return a, nil
	})
	types.RegisterCombine("float.sum", types.FloatType, func(p types.Params, a types.Record, b types.Record) (types.Record, error) {
		return a.(float64) + b.(float64), nil
	})
	types.RegisterCombine("float.min", types.FloatType, func(p types.Params, a types.Record, b types.Record) (types.Record, error) {
		return math.Min(a.(float64), b.(float64)), nil
	})
	types.RegisterCombine("float.max", types.FloatType, func(p types.Params, a types.Record, b types.Record) (types.Record, error) {
		return math.Max(a.(float64), b.(float64)), nil
	})

	// seqOps for aggregate
	types.RegisterSeq("count", types.IntType, types.AnyType, func(p types.Params, acc types.Record, in types.Record) (types.Record, error) {
		return acc.(int64) + 1, nil
	})
	types.RegisterSeq("float.sumInts", types.FloatType, types.IntType, func(p types.Params, acc types.Record, in types.Record) (types.Record, error) {
		return acc.(float64) + float64(in.(int64)), nil
	})
}

// AddInt adds n to each int element
func AddInt(n int64) types.FuncRef {
	return types.Fn("int.add", types.Params{"n": n})
}

// MultiplyInt multiplies each int element by n
func MultiplyInt(n int64) types.FuncRef {
	return types.Fn("int.multiply", types.Params{"n": n})
}

// ModInt computes the remainder of each int element divided by n
func ModInt(n int64) types.FuncRef {
	return types.Fn("int.mod", types.Params{"n": n})
}

// IntToFloat converts int elements to floats
func IntToFloat() types.FuncRef {
	return types.Fn("int.toFloat")
}

// MultiplyFloat multiplies each float element by f
func MultiplyFloat(f float64) types.FuncRef {
	return types.Fn("float.multiply", types.Params{"f": f})
}

// RoundFloat rounds float elements to the nearest int
func RoundFloat() types.FuncRef {
	return types.Fn("float.round")
}

// SumInt combines ints by addition
func SumInt() types.FuncRef {
	return types.Fn("int.sum")
}

// MinInt combines ints by keeping the smallest
func MinInt() types.FuncRef {
	return types.Fn("int.min")
}

// MaxInt combines ints by keeping the largest
func MaxInt() types.FuncRef {
	return types.Fn("int.max")
}

// SumFloat combines floats by addition
func SumFloat() types.FuncRef {
	return types.Fn("float.sum")
}

// MinFloat combines floats by keeping the smallest
func MinFloat() types.FuncRef {
	return types.Fn("float.min")
}

// MaxFloat combines floats by keeping the largest
func MaxFloat() types.FuncRef {
	return types.Fn("float.max")
}

// Count is a seqOp which counts elements of any type into an int accumulator
func Count() types.FuncRef {
	return types.Fn("count")
}

// SumIntsAsFloat is a seqOp which adds int elements to a float accumulator
func SumIntsAsFloat() types.FuncRef {
	return types.Fn("float.sumInts")
}
