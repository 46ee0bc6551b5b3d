package testing

import (
	"context"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-sif/rdd"
	"github.com/go-sif/rdd/cluster"
	"github.com/go-sif/rdd/functions"
	"github.com/go-sif/rdd/types"
	"github.com/stretchr/testify/require"
)

func TestLocalRunJob(t *testing.T) {
	dir, err := ioutil.TempDir("", "rdd-test-runner")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	input := filepath.Join(dir, "input.txt")
	require.NoError(t, ioutil.WriteFile(input, []byte("a rose is a rose\nis a rose\n"), 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var words []string
	err = LocalRunJob(ctx, func(ctx context.Context, s *rdd.Session) error {
		d, err := s.TextFile(input)
		if err != nil {
			return err
		}
		if d, err = d.MapPartitions(functions.Words()); err != nil {
			return err
		}
		if d, err = d.Distinct(2); err != nil {
			return err
		}
		res, err := d.Collect(ctx)
		if err != nil {
			return err
		}
		for _, r := range res {
			words = append(words, r.(string))
		}
		return nil
	}, &cluster.NodeOptions{SessionOptions: []rdd.Option{rdd.WithLogLevel("WARN")}}, 2)
	require.NoError(t, err)
	sort.Strings(words)
	require.Equal(t, "a is rose", strings.Join(words, " "))
}

func TestLocalRunJobWithoutWorkers(t *testing.T) {
	err := LocalRunJob(context.Background(), func(ctx context.Context, s *rdd.Session) error {
		return nil
	}, &cluster.NodeOptions{}, 0)
	require.Error(t, err)
}

func TestCollectedTypes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := LocalRunJob(ctx, func(ctx context.Context, s *rdd.Session) error {
		d, err := s.Parallelize(types.FloatType, []types.Record{1.5, 2.25, -3.0}, 2)
		require.NoError(t, err)
		res, err := d.Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, []types.Record{1.5, 2.25, -3.0}, res)
		return nil
	}, &cluster.NodeOptions{SessionOptions: []rdd.Option{rdd.WithLogLevel("WARN")}}, 1)
	require.NoError(t, err)
}

func TestLocalRunJobWithLargePartitions(t *testing.T) {
	// random values do not compress, so every slice is larger than a default gRPC message
	r := rand.New(rand.NewSource(42))
	data := make([]types.Record, 1200000)
	for i := range data {
		data[i] = r.Int63()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	err := LocalRunJob(ctx, func(ctx context.Context, s *rdd.Session) error {
		d, err := s.Parallelize(types.IntType, data, 2)
		require.NoError(t, err)
		count, err := d.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(len(data)), count)
		res, err := d.Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, data, res)
		return nil
	}, &cluster.NodeOptions{SessionOptions: []rdd.Option{rdd.WithLogLevel("WARN")}}, 2)
	require.NoError(t, err)
}
