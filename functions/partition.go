package functions

import (
	"fmt"
	"sort"

	"github.com/go-sif/rdd/types"
)

func init() {
	types.RegisterPartition("sort", types.AnyType, types.AnyType, func(p types.Params, in []types.Record) ([]types.Record, error) {
		descending, _ := p["descending"].(bool)
		out := append([]types.Record(nil), in...)
		sort.SliceStable(out, func(i, j int) bool {
			if descending {
				return Compare(out[i], out[j]) > 0
			}
			return Compare(out[i], out[j]) < 0
		})
		return out, nil
	})
	types.RegisterIndexedPartition("tagPartition", types.AnyType, types.StringType, func(p types.Params, index int, in []types.Record) ([]types.Record, error) {
		out := make([]types.Record, len(in))
		for i, r := range in {
			out[i] = types.Record(formatTagged(index, r))
		}
		return out, nil
	})
}

// Sort sorts the elements within each partition
func Sort(descending bool) types.FuncRef {
	return types.Fn("sort", types.Params{"descending": descending})
}

// TagPartition prefixes each element with the index of its partition, as "index:element"
func TagPartition() types.FuncRef {
	return types.Fn("tagPartition")
}

func formatTagged(index int, r types.Record) string {
	if b, ok := r.([]byte); ok {
		return fmt.Sprintf("%d:%s", index, b)
	}
	return fmt.Sprintf("%d:%v", index, r)
}
