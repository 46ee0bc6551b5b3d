package fs

import (
	"io"
	"strings"
)

// FileSystemType is an identifier for supported FileSystems
type FileSystemType int

// Identifiers for supported FileSystemTypes
const (
	Local FileSystemType = iota
	S3
)

// FileSystem abstracts where source files are read from and sink files are written to,
// so that remote storage like S3 can be used in place of local disk
type FileSystem interface {
	ListFiles(pathGlob string) ([]FileInfo, error)
	Stat(filePath string) (FileInfo, error)
	OpenReader(filePath string, startAt int64) (io.ReadCloser, error)
	OpenWriter(filePath string) (io.WriteCloser, error)
	Delete(filePath string) error
	Join(elem ...string) string
	Init() error
}

// FileInfo provides information about a file
type FileInfo struct {
	Name string // file path
	Size int64  // file size in bytes
}

// InitFilesystem initializes a filesystem of the given type
func InitFilesystem(fsType FileSystemType) (FileSystem, error) {
	var fs FileSystem
	switch fsType {
	case S3:
		fs = &S3FileSystem{}
	default:
		fs = &LocalFileSystem{}
	}
	if err := fs.Init(); err != nil {
		return nil, err
	}
	return fs, nil
}

// InferFilesystem determines the appropriate filesystem for a location
func InferFilesystem(location string) (FileSystem, error) {
	if strings.HasPrefix(location, "s3://") {
		return InitFilesystem(S3)
	}
	return InitFilesystem(Local)
}
