package jsonl

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/go-sif/rdd/datasource/file"
	"github.com/go-sif/rdd/types"
	"github.com/tidwall/gjson"
)

// Kind is the registered kind of the JSON Lines Source
const Kind = "jsonl"

// DataSource reads JSON Lines files, one partition per file
type DataSource struct{}

func init() {
	types.RegisterSource(Kind, &DataSource{})
}

// Conf configures the extraction of values from JSON Lines files
type Conf struct {
	Field       string // gjson path of the value to extract from each line
	SkipMissing bool   // skip lines which do not contain Field, instead of failing
	MaxLineSize int    // maximum size in bytes of a single line
}

// JSONLines describes a source Dataset containing one value of type elem per line of a set of files
func JSONLines(glob string, elem types.ElemType, conf *Conf) (*types.SourceDescriptor, error) {
	if len(conf.Field) == 0 {
		return nil, fmt.Errorf("A field to extract is required")
	}
	return file.Describe(Kind, glob, elem, types.Params{
		"field":       conf.Field,
		"skipMissing": conf.SkipMissing,
		"maxLineSize": int64(conf.MaxLineSize),
	})
}

// Read parses the lines of a single file
func (ds *DataSource) Read(ctx context.Context, desc *types.SourceDescriptor, index int) ([]types.Record, error) {
	path, err := file.PathOf(desc, index)
	if err != nil {
		return nil, err
	}
	field, err := desc.Options.String("field")
	if err != nil {
		return nil, err
	}
	skipMissing, _ := desc.Options["skipMissing"].(bool)
	maxLineSize, _ := desc.Options.Int("maxLineSize")
	records := make([]types.Record, 0)
	lineNum := 0
	err = file.Lines(ctx, path, int(maxLineSize), func(line string) error {
		lineNum++
		if len(strings.TrimSpace(line)) == 0 {
			return nil
		}
		if !gjson.Valid(line) {
			return fmt.Errorf("%s:%d is not valid JSON", path, lineNum)
		}
		value := gjson.Get(line, field)
		if !value.Exists() {
			if skipMissing {
				return nil
			}
			return fmt.Errorf("%s:%d has no field %s", path, lineNum, field)
		}
		r, err := ParseValue(value, desc.Elem)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNum, err)
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ParseValue converts a JSON value to a Record of the given type
func ParseValue(val gjson.Result, elem types.ElemType) (types.Record, error) {
	switch elem {
	case types.IntType:
		if val.Type != gjson.Number {
			return nil, fmt.Errorf("Value was not a number. Was: %s", val.Raw)
		}
		return val.Int(), nil
	case types.FloatType:
		if val.Type != gjson.Number {
			return nil, fmt.Errorf("Value was not a number. Was: %s", val.Raw)
		}
		return val.Float(), nil
	case types.StringType:
		if val.Type != gjson.String {
			return nil, fmt.Errorf("Value was not a string. Was: %s", val.Raw)
		}
		return val.String(), nil
	case types.BoolType:
		if val.Type != gjson.True && val.Type != gjson.False {
			return nil, fmt.Errorf("Value was not a boolean. Was: %s", val.Raw)
		}
		return val.Bool(), nil
	case types.BytesType:
		return []byte(val.Raw), nil
	case types.AnyType:
		switch val.Type {
		case gjson.Number:
			if f := val.Float(); f == math.Trunc(f) && math.Abs(f) < 1<<53 {
				return val.Int(), nil
			}
			return val.Float(), nil
		case gjson.String:
			return val.String(), nil
		case gjson.True, gjson.False:
			return val.Bool(), nil
		default:
			return val.Raw, nil
		}
	default:
		return nil, fmt.Errorf("JSONL parsing does not support element type %q", elem)
	}
}
