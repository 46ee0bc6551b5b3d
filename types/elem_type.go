package types

import (
	"fmt"

	"github.com/go-sif/rdd/errors"
)

// ElemType is the declared type of the elements of a Dataset
type ElemType string

const (
	// IntType elements are int64 values
	IntType ElemType = "int"
	// FloatType elements are float64 values
	FloatType ElemType = "float"
	// StringType elements are string values
	StringType ElemType = "string"
	// BytesType elements are []byte values
	BytesType ElemType = "bytes"
	// BoolType elements are bool values
	BoolType ElemType = "bool"
	// AnyType elements may be any of the other element types
	AnyType ElemType = "any"
)

// Valid returns true iff this is a known ElemType
func (t ElemType) Valid() bool {
	switch t {
	case IntType, FloatType, StringType, BytesType, BoolType, AnyType:
		return true
	default:
		return false
	}
}

// Accepts returns true iff values of type other may be passed where this type is expected
func (t ElemType) Accepts(other ElemType) bool {
	return t == AnyType || t == other
}

// Of returns the ElemType of a Record, or an error if the Record is not a supported value
func Of(r Record) (ElemType, error) {
	switch r.(type) {
	case int64:
		return IntType, nil
	case float64:
		return FloatType, nil
	case string:
		return StringType, nil
	case []byte:
		return BytesType, nil
	case bool:
		return BoolType, nil
	default:
		return "", fmt.Errorf("Unsupported record type %T", r)
	}
}

// Check verifies that a Record is a value of this ElemType
func (t ElemType) Check(op string, r Record) error {
	actual, err := Of(r)
	if err != nil {
		return errors.TypeMismatchError{Op: op, Expected: string(t), Actual: fmt.Sprintf("%T", r)}
	}
	if !t.Accepts(actual) {
		return errors.TypeMismatchError{Op: op, Expected: string(t), Actual: string(actual)}
	}
	return nil
}

// CheckAll verifies that every Record is a value of this ElemType
func (t ElemType) CheckAll(op string, records []Record) error {
	for _, r := range records {
		if err := t.Check(op, r); err != nil {
			return err
		}
	}
	return nil
}
