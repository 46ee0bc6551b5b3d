// Package rdd contains the client surface of a distributed engine for resilient distributed
// datasets: immutable, lazily evaluated, partitioned collections of records.
//
// A Session owns a pool of workers and a lineage graph. Datasets are created from a Session
// (Parallelize, TextFile, JSONLines) and derived from one another with transformations, which
// only record lineage. Actions (Collect, Count, Reduce, SaveAsTextFile, ...) compile the lineage
// of a Dataset into stages, run one task per partition on the workers and return a result.
// Partitions which are lost along with a worker are recomputed from their lineage.
//
// Functions applied to records are never closures. They are referenced by name (see
// types.RegisterMap and friends, and the functions package), so that they can be shipped to
// remote workers.
package rdd
