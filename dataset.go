package rdd

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sif/rdd/errors"
	"github.com/go-sif/rdd/internal/lineage"
	"github.com/go-sif/rdd/types"
	log "github.com/sirupsen/logrus"
)

// A Dataset is an immutable, partitioned collection of records. Transformations return new
// Datasets and only record lineage; actions (see actions.go) run jobs.
type Dataset struct {
	session *Session
	node    *lineage.Node
}

// ID returns the id of this Dataset within its Session
func (d *Dataset) ID() types.DatasetID {
	return d.node.ID
}

// ElemType returns the type of the elements of this Dataset
func (d *Dataset) ElemType() types.ElemType {
	return d.node.Elem
}

// GetNumPartitions returns the number of partitions of this Dataset
func (d *Dataset) GetNumPartitions() int {
	return d.node.NumPartitions
}

// Session returns the Session this Dataset belongs to
func (d *Dataset) Session() *Session {
	return d.session
}

// String returns a textual representation of this Dataset
func (d *Dataset) String() string {
	return d.node.String()
}

// ToDebugString describes the lineage of this Dataset, one Dataset per line. Indentation
// increases at every shuffle.
func (d *Dataset) ToDebugString() string {
	return d.session.graph.Debug(d.node.ID)
}

// Map applies a MapFunc to every element
func (d *Dataset) Map(fn types.FuncRef) (*Dataset, error) {
	return d.session.build(types.Transformation{Kind: types.MapKind, Fn: fn}, d)
}

// Filter keeps the elements for which a FilterFunc returns true
func (d *Dataset) Filter(fn types.FuncRef) (*Dataset, error) {
	return d.session.build(types.Transformation{Kind: types.FilterKind, Fn: fn}, d)
}

// MapPartitions applies a PartitionFunc to every partition
func (d *Dataset) MapPartitions(fn types.FuncRef) (*Dataset, error) {
	return d.session.build(types.Transformation{Kind: types.MapPartitionsKind, Fn: fn}, d)
}

// MapPartitionsWithIndex applies an IndexedPartitionFunc to every partition, along with its index
func (d *Dataset) MapPartitionsWithIndex(fn types.FuncRef) (*Dataset, error) {
	return d.session.build(types.Transformation{Kind: types.MapPartitionsWithIndexKind, Fn: fn}, d)
}

// Union concatenates the partitions of this Dataset and others, keeping duplicates
func (d *Dataset) Union(others ...*Dataset) (*Dataset, error) {
	return d.session.build(types.Transformation{Kind: types.UnionKind}, append([]*Dataset{d}, others...)...)
}

// Distinct removes duplicate elements. numPartitions <= 0 keeps the current number of partitions.
func (d *Dataset) Distinct(numPartitions ...int) (*Dataset, error) {
	return d.session.build(types.Transformation{Kind: types.DistinctKind, NumPartitions: first(numPartitions)}, d)
}

// Intersection keeps the distinct elements present in both this Dataset and other
func (d *Dataset) Intersection(other *Dataset, numPartitions ...int) (*Dataset, error) {
	return d.session.build(types.Transformation{Kind: types.IntersectionKind, NumPartitions: first(numPartitions)}, d, other)
}

// Subtract keeps the elements of this Dataset which are absent from other, including duplicates
func (d *Dataset) Subtract(other *Dataset, numPartitions ...int) (*Dataset, error) {
	return d.session.build(types.Transformation{Kind: types.SubtractKind, NumPartitions: first(numPartitions)}, d, other)
}

// Repartition redistributes elements evenly across exactly numPartitions partitions
func (d *Dataset) Repartition(numPartitions int) (*Dataset, error) {
	return d.session.build(types.Transformation{Kind: types.RepartitionKind, NumPartitions: numPartitions}, d)
}

// Sample keeps a random subset of elements. Without replacement, each element is kept with
// probability fraction. With replacement, each element is kept a Poisson-distributed number of
// times with mean fraction. Sampling is deterministic for a given seed, which defaults to the
// current time.
func (d *Dataset) Sample(withReplacement bool, fraction float64, seed ...int64) (*Dataset, error) {
	s := time.Now().UnixNano()
	if len(seed) > 0 {
		s = seed[0]
	}
	return d.session.build(types.Transformation{
		Kind:            types.SampleKind,
		WithReplacement: withReplacement,
		Fraction:        fraction,
		Seed:            s,
	}, d)
}

// Persist caches the partitions of this Dataset on workers once they are computed. Cached
// partitions which are evicted or lost are recomputed from lineage.
func (d *Dataset) Persist() (*Dataset, error) {
	if err := d.session.checkOpen(); err != nil {
		return nil, err
	}
	if err := d.session.graph.SetPersisted(d.node.ID, true); err != nil {
		return nil, err
	}
	return d, nil
}

// Cache is an alias for Persist
func (d *Dataset) Cache() (*Dataset, error) {
	return d.Persist()
}

// Unpersist stops caching this Dataset, and drops its cached partitions from every worker
func (d *Dataset) Unpersist(ctx context.Context) error {
	if err := d.session.checkOpen(); err != nil {
		return err
	}
	if err := d.session.graph.SetPersisted(d.node.ID, false); err != nil {
		return err
	}
	for _, w := range d.session.pool.Workers() {
		if err := w.Unpersist(ctx, d.node.ID); err != nil {
			// cached partitions of unreachable workers are gone anyway
			if !errors.IsTransient(err) {
				return fmt.Errorf("Unable to unpersist Dataset %d: %w", d.node.ID, err)
			}
			log.WithField("worker", w.ID()).Debugf("Skipped unpersisting Dataset %d: %v", d.node.ID, err)
		}
	}
	return nil
}

// Release marks this Dataset as unusable: new Datasets cannot be derived from it, and actions
// against it fail. Datasets already derived from it are unaffected.
func (d *Dataset) Release() error {
	return d.session.graph.Release(d.node.ID)
}

func first(ns []int) int {
	if len(ns) == 0 {
		return 0
	}
	return ns[0]
}
