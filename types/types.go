package types

import (
	"fmt"
)

// DatasetID identifies a node within a lineage graph
type DatasetID int64

// ShuffleID identifies the data exchanged across a single wide dependency:
// the wide Dataset and the position of the parent being shuffled into it
type ShuffleID struct {
	Dataset DatasetID
	Parent  int
}

// String returns a textual representation of this ShuffleID
func (s ShuffleID) String() string {
	return fmt.Sprintf("shuffle-%d-%d", s.Dataset, s.Parent)
}

// Record is a single element of a Dataset. Records are plain values of the
// Go type corresponding to the Dataset's ElemType (int64, float64, string, []byte or bool).
type Record = interface{}

// Params are the plain-data parameters captured by a function reference.
// Values must be gob-encodable basic types.
type Params map[string]interface{}

// Int retrieves an integer parameter
func (p Params) Int(key string) (int64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("Parameter %s is missing", key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("Parameter %s is %T, not an integer", key, v)
	}
}

// Float retrieves a floating point parameter
func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("Parameter %s is missing", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("Parameter %s is %T, not a number", key, v)
	}
}

// String retrieves a string parameter
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("Parameter %s is missing", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("Parameter %s is %T, not a string", key, v)
	}
	return s, nil
}

// FuncRef is a serializable reference to a registered function, plus the
// plain-data parameters it was captured with
type FuncRef struct {
	Name   string
	Params Params
}

// Fn constructs a FuncRef. At most one Params may be supplied.
func Fn(name string, params ...Params) FuncRef {
	ref := FuncRef{Name: name}
	if len(params) > 0 {
		ref.Params = params[0]
	}
	return ref
}

// String returns a textual representation of this FuncRef
func (f FuncRef) String() string {
	if len(f.Params) == 0 {
		return f.Name
	}
	return fmt.Sprintf("%s%v", f.Name, map[string]interface{}(f.Params))
}
