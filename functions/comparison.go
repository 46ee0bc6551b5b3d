package functions

import (
	"bytes"
	"fmt"

	"github.com/go-sif/rdd/types"
)

func init() {
	types.RegisterFilter("int.gt", types.IntType, func(p types.Params, in types.Record) (bool, error) {
		n, err := p.Int("n")
		if err != nil {
			return false, err
		}
		return in.(int64) > n, nil
	})
	types.RegisterFilter("int.lt", types.IntType, func(p types.Params, in types.Record) (bool, error) {
		n, err := p.Int("n")
		if err != nil {
			return false, err
		}
		return in.(int64) < n, nil
	})
	types.RegisterFilter("int.even", types.IntType, func(p types.Params, in types.Record) (bool, error) {
		return in.(int64)%2 == 0, nil
	})
	types.RegisterFilter("float.gt", types.FloatType, func(p types.Params, in types.Record) (bool, error) {
		f, err := p.Float("f")
		if err != nil {
			return false, err
		}
		return in.(float64) > f, nil
	})
	types.RegisterFilter("float.lt", types.FloatType, func(p types.Params, in types.Record) (bool, error) {
		f, err := p.Float("f")
		if err != nil {
			return false, err
		}
		return in.(float64) < f, nil
	})
	types.RegisterFilter("bool.isTrue", types.BoolType, func(p types.Params, in types.Record) (bool, error) {
		return in.(bool), nil
	})
	types.RegisterFilter("any.notEqual", types.AnyType, func(p types.Params, in types.Record) (bool, error) {
		return Compare(in, p["value"]) != 0, nil
	})
}

// GreaterThan keeps int elements larger than n
func GreaterThan(n int64) types.FuncRef {
	return types.Fn("int.gt", types.Params{"n": n})
}

// LessThan keeps int elements smaller than n
func LessThan(n int64) types.FuncRef {
	return types.Fn("int.lt", types.Params{"n": n})
}

// Even keeps even int elements
func Even() types.FuncRef {
	return types.Fn("int.even")
}

// GreaterThanFloat keeps float elements larger than f
func GreaterThanFloat(f float64) types.FuncRef {
	return types.Fn("float.gt", types.Params{"f": f})
}

// LessThanFloat keeps float elements smaller than f
func LessThanFloat(f float64) types.FuncRef {
	return types.Fn("float.lt", types.Params{"f": f})
}

// IsTrue keeps true elements
func IsTrue() types.FuncRef {
	return types.Fn("bool.isTrue")
}

// NotEqual keeps elements which differ from value
func NotEqual(value types.Record) types.FuncRef {
	return types.Fn("any.notEqual", types.Params{"value": value})
}

// rank orders element types when comparing records of different types
func rank(r types.Record) int {
	switch r.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64:
		return 2
	case float64:
		return 3
	case string:
		return 4
	case []byte:
		return 5
	default:
		return 6
	}
}

// Compare orders two records. Records of different types are ordered by type:
// bools, then ints, then floats, then strings, then bytes.
func Compare(a types.Record, b types.Record) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case int64:
		bv := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case []byte:
		return bytes.Compare(av, b.([]byte))
	case nil:
		return 0
	default:
		sa, sb := fmt.Sprint(a), fmt.Sprint(b)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return 0
		}
	}
}
