package worker

import (
	"math"
	"math/rand"

	"github.com/go-sif/rdd/types"
)

// sample keeps a random subset of a partition. The subset depends only on the records,
// the seed and the partition index, so recomputing a sampled partition yields the same records.
// Without replacement each record is kept with probability fraction; with replacement each
// record is repeated a Poisson(fraction) number of times.
func sample(records []types.Record, withReplacement bool, fraction float64, seed int64, index int) []types.Record {
	rng := rand.New(rand.NewSource(seed*31 + int64(index)))
	out := make([]types.Record, 0, int(float64(len(records))*fraction)+1)
	for _, r := range records {
		if !withReplacement {
			if rng.Float64() < fraction {
				out = append(out, r)
			}
			continue
		}
		for k := poisson(rng, fraction); k > 0; k-- {
			out = append(out, r)
		}
	}
	return out
}

func poisson(rng *rand.Rand, mean float64) int {
	if mean <= 0 {
		return 0
	}
	limit := math.Exp(-mean)
	k := 0
	for p := rng.Float64(); p > limit; p *= rng.Float64() {
		k++
	}
	return k
}
