package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/go-sif/rdd/internal/fs"
	"github.com/go-sif/rdd/types"
	log "github.com/sirupsen/logrus"
)

// Kind is the registered kind of the text file Source
const Kind = "textfile"

// DataSource reads the lines of text files, one partition per file
type DataSource struct{}

func init() {
	types.RegisterSource(Kind, &DataSource{})
	types.RegisterSink(SinkKind, &Sink{})
}

// Resolve lists the files matching a glob (or contained in a directory), in lexical order
func Resolve(glob string) ([]string, error) {
	filesystem, err := fs.InferFilesystem(glob)
	if err != nil {
		return nil, err
	}
	files, err := filesystem.ListFiles(glob)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("glob %s produced 0 files", glob)
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Name
	}
	return paths, nil
}

// Describe creates a SourceDescriptor for a set of files, to be read by the Source of the given kind
func Describe(kind string, glob string, elem types.ElemType, options types.Params) (*types.SourceDescriptor, error) {
	paths, err := Resolve(glob)
	if err != nil {
		return nil, err
	}
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(paths); err != nil {
		return nil, err
	}
	return &types.SourceDescriptor{
		Kind:          kind,
		Location:      glob,
		NumPartitions: len(paths),
		Elem:          elem,
		Options:       options,
		Payload:       payload.Bytes(),
	}, nil
}

// TextFile describes a source Dataset containing the lines of a set of files
func TextFile(glob string) (*types.SourceDescriptor, error) {
	return Describe(Kind, glob, types.StringType, nil)
}

// PathOf returns the file backing a partition of a Dataset described by Describe
func PathOf(desc *types.SourceDescriptor, index int) (string, error) {
	var paths []string
	if err := gob.NewDecoder(bytes.NewReader(desc.Payload)).Decode(&paths); err != nil {
		return "", fmt.Errorf("Unable to decode file list of %s: %w", desc, err)
	}
	if index < 0 || index >= len(paths) {
		return "", fmt.Errorf("Partition %d of %s does not exist (%d files)", index, desc, len(paths))
	}
	return paths[index], nil
}

// Lines calls fn with every line of a file
func Lines(ctx context.Context, path string, maxLineSize int, fn func(line string) error) error {
	filesystem, err := fs.InferFilesystem(path)
	if err != nil {
		return err
	}
	f, err := filesystem.OpenReader(path, 0)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warnf("Couldn't close file %s: %v", path, err)
		}
	}()
	scanner := bufio.NewScanner(f)
	if maxLineSize <= 0 {
		maxLineSize = bufio.MaxScanTokenSize
	}
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func maxLineSize(options types.Params) int {
	n, err := options.Int("maxLineSize")
	if err != nil {
		return 0
	}
	return int(n)
}

// Read produces the lines of a single file
func (ds *DataSource) Read(ctx context.Context, desc *types.SourceDescriptor, index int) ([]types.Record, error) {
	path, err := PathOf(desc, index)
	if err != nil {
		return nil, err
	}
	records := make([]types.Record, 0)
	err = Lines(ctx, path, maxLineSize(desc.Options), func(line string) error {
		records = append(records, line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
