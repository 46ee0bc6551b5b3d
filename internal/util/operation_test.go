package util

import (
	"fmt"
	"testing"

	"github.com/go-sif/rdd/types"
	"github.com/stretchr/testify/require"
)

func TestSafeMapFuncRecoversPanics(t *testing.T) {
	fn := SafeMapFunc("boom", func(p types.Params, in types.Record) (types.Record, error) {
		panic("kaboom")
	})
	_, err := fn(nil, int64(7))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Map Panic in boom: kaboom")
	require.Contains(t, err.Error(), "Record: 7")
}

func TestSafeMapFuncWrapsErrors(t *testing.T) {
	cause := fmt.Errorf("bad record")
	fn := SafeMapFunc("fails", func(p types.Params, in types.Record) (types.Record, error) {
		return nil, cause
	})
	_, err := fn(nil, "abc")
	require.ErrorIs(t, err, cause)
}

func TestFolderAcceptsCombineFuncs(t *testing.T) {
	spec := &types.FuncSpec{
		Name: "sum",
		Kind: types.CombineFuncKind,
		Combine: func(p types.Params, a types.Record, b types.Record) (types.Record, error) {
			return a.(int64) + b.(int64), nil
		},
	}
	fold, err := Folder(spec)
	require.NoError(t, err)
	out, err := fold(nil, int64(1), int64(2))
	require.NoError(t, err)
	require.Equal(t, int64(3), out)

	_, err = Folder(&types.FuncSpec{Name: "m", Kind: types.MapFuncKind})
	require.Error(t, err)
}

func TestFormatMultiError(t *testing.T) {
	msg := FormatMultiError([]error{fmt.Errorf("a"), fmt.Errorf("b")})
	require.Contains(t, msg, "2 error(s)")
	require.Contains(t, msg, "a\nb\n")
}
