package file

import (
	"bufio"
	"context"
	"fmt"

	"github.com/go-sif/rdd/internal/fs"
	"github.com/go-sif/rdd/types"
)

// SinkKind is the registered kind of the text file Sink
const SinkKind = "text"

// SuccessFile is written to the output location once every partition has been written
const SuccessFile = "_SUCCESS"

// Sink writes each partition as a text file named part-NNNNN, one record per line
type Sink struct{}

// PartName returns the name of the file a partition is written to
func PartName(index int) string {
	return fmt.Sprintf("part-%05d", index)
}

// Write replaces the file for a single partition
func (s *Sink) Write(ctx context.Context, desc *types.SinkDescriptor, index int, records []types.Record) error {
	filesystem, err := fs.InferFilesystem(desc.Location)
	if err != nil {
		return err
	}
	f, err := filesystem.OpenWriter(filesystem.Join(desc.Location, PartName(index)))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			f.Close()
			return err
		}
		var err error
		switch v := r.(type) {
		case string:
			_, err = w.WriteString(v)
		case []byte:
			_, err = w.Write(v)
		default:
			_, err = fmt.Fprint(w, v)
		}
		if err == nil {
			err = w.WriteByte('\n')
		}
		if err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Commit marks the output as complete
func (s *Sink) Commit(ctx context.Context, desc *types.SinkDescriptor, numPartitions int) error {
	filesystem, err := fs.InferFilesystem(desc.Location)
	if err != nil {
		return err
	}
	f, err := filesystem.OpenWriter(filesystem.Join(desc.Location, SuccessFile))
	if err != nil {
		return err
	}
	return f.Close()
}
