package functions

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-sif/rdd/types"
)

func init() {
	types.RegisterMap("string.upper", types.StringType, types.StringType, func(p types.Params, in types.Record) (types.Record, error) {
		return strings.ToUpper(in.(string)), nil
	})
	types.RegisterMap("string.lower", types.StringType, types.StringType, func(p types.Params, in types.Record) (types.Record, error) {
		return strings.ToLower(in.(string)), nil
	})
	types.RegisterMap("string.trim", types.StringType, types.StringType, func(p types.Params, in types.Record) (types.Record, error) {
		return strings.TrimSpace(in.(string)), nil
	})
	types.RegisterMap("string.length", types.StringType, types.IntType, func(p types.Params, in types.Record) (types.Record, error) {
		return int64(len([]rune(in.(string)))), nil
	})
	types.RegisterMap("any.toString", types.AnyType, types.StringType, func(p types.Params, in types.Record) (types.Record, error) {
		if b, ok := in.([]byte); ok {
			return string(b), nil
		}
		return fmt.Sprint(in), nil
	})
	types.RegisterFilter("string.contains", types.StringType, func(p types.Params, in types.Record) (bool, error) {
		substr, err := p.String("substr")
		if err != nil {
			return false, err
		}
		return strings.Contains(in.(string), substr), nil
	})
	types.RegisterFilter("string.nonEmpty", types.StringType, func(p types.Params, in types.Record) (bool, error) {
		return len(strings.TrimSpace(in.(string))) > 0, nil
	})
	types.RegisterPartition("string.words", types.StringType, types.StringType, func(p types.Params, in []types.Record) ([]types.Record, error) {
		var out []types.Record
		for _, line := range in {
			for _, w := range strings.FieldsFunc(line.(string), func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
			}) {
				out = append(out, w)
			}
		}
		return out, nil
	})
	types.RegisterCombine("string.concat", types.StringType, func(p types.Params, a types.Record, b types.Record) (types.Record, error) {
		sep, _ := p.String("sep")
		switch {
		case len(a.(string)) == 0:
			return b, nil
		case len(b.(string)) == 0:
			return a, nil
		}
		return a.(string) + sep + b.(string), nil
	})
}

// Upper converts string elements to upper case
func Upper() types.FuncRef {
	return types.Fn("string.upper")
}

// Lower converts string elements to lower case
func Lower() types.FuncRef {
	return types.Fn("string.lower")
}

// Trim removes leading and trailing whitespace from string elements
func Trim() types.FuncRef {
	return types.Fn("string.trim")
}

// Length maps string elements to their length in runes
func Length() types.FuncRef {
	return types.Fn("string.length")
}

// ToString formats elements of any type as strings
func ToString() types.FuncRef {
	return types.Fn("any.toString")
}

// Contains keeps string elements which contain substr
func Contains(substr string) types.FuncRef {
	return types.Fn("string.contains", types.Params{"substr": substr})
}

// NonEmpty keeps string elements which are not blank
func NonEmpty() types.FuncRef {
	return types.Fn("string.nonEmpty")
}

// Words splits each string element into words, for use with MapPartitions
func Words() types.FuncRef {
	return types.Fn("string.words")
}

// Concat combines strings by concatenation, separated by sep. Empty strings are skipped.
func Concat(sep string) types.FuncRef {
	return types.Fn("string.concat", types.Params{"sep": sep})
}
