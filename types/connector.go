package types

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-sif/rdd/errors"
)

// SourceDescriptor describes where the partitions of a source Dataset come from.
// Descriptors are shipped to workers, so everything a Source needs to read a
// partition must be contained in the descriptor.
type SourceDescriptor struct {
	Kind          string   // registered Source kind
	Location      string   // path, glob or other locator, for display
	NumPartitions int      // number of partitions produced
	Elem          ElemType // element type of produced records
	Options       Params   // connector-specific options
	Payload       []byte   // connector-specific resolved state (e.g. file lists)
	Slices        [][]byte // optional per-partition state, only shipped with the tasks reading each partition
}

// ForPartitions copies this SourceDescriptor, keeping only the Slices of the given partitions
func (d *SourceDescriptor) ForPartitions(partitions map[int]bool) *SourceDescriptor {
	c := *d
	if d.Slices == nil {
		return &c
	}
	c.Slices = make([][]byte, len(d.Slices))
	for p := range partitions {
		if p >= 0 && p < len(d.Slices) {
			c.Slices[p] = d.Slices[p]
		}
	}
	return &c
}

// String returns a textual representation of this SourceDescriptor
func (d *SourceDescriptor) String() string {
	if len(d.Location) == 0 {
		return d.Kind
	}
	return fmt.Sprintf("%s:%s", d.Kind, d.Location)
}

// SinkDescriptor describes where the partitions of a Dataset are written to
type SinkDescriptor struct {
	Kind     string // registered Sink kind
	Location string // destination
	Options  Params // connector-specific options
}

// A Source reads the partitions of source Datasets
type Source interface {
	Read(ctx context.Context, desc *SourceDescriptor, index int) ([]Record, error) // Read produces the records of a single partition
}

// A Sink writes the partitions of a Dataset. Writing the same partition twice must replace the first write.
type Sink interface {
	Write(ctx context.Context, desc *SinkDescriptor, index int, records []Record) error // Write persists the records of a single partition
}

// A Committer is a Sink which finalizes its output once every partition has been written
type Committer interface {
	Commit(ctx context.Context, desc *SinkDescriptor, numPartitions int) error
}

var (
	connectorsLock sync.RWMutex
	sources        = make(map[string]Source)
	sinks          = make(map[string]Sink)
)

// RegisterSource makes a Source available under a kind. Duplicate registration panics.
func RegisterSource(kind string, s Source) {
	connectorsLock.Lock()
	defer connectorsLock.Unlock()
	if _, exists := sources[kind]; exists {
		panic(fmt.Sprintf("types: source %s registered twice", kind))
	}
	sources[kind] = s
}

// RegisterSink makes a Sink available under a kind. Duplicate registration panics.
func RegisterSink(kind string, s Sink) {
	connectorsLock.Lock()
	defer connectorsLock.Unlock()
	if _, exists := sinks[kind]; exists {
		panic(fmt.Sprintf("types: sink %s registered twice", kind))
	}
	sinks[kind] = s
}

// LookupSource retrieves a registered Source
func LookupSource(kind string) (Source, error) {
	connectorsLock.RLock()
	defer connectorsLock.RUnlock()
	s, ok := sources[kind]
	if !ok {
		return nil, errors.UnknownConnectorError{Kind: kind}
	}
	return s, nil
}

// LookupSink retrieves a registered Sink
func LookupSink(kind string) (Sink, error) {
	connectorsLock.RLock()
	defer connectorsLock.RUnlock()
	s, ok := sinks[kind]
	if !ok {
		return nil, errors.UnknownConnectorError{Kind: kind}
	}
	return s, nil
}
