package fs

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/mattetti/filebuffer"
)

// S3FileSystem reads and writes objects in S3, addressed as s3://bucket/key
type S3FileSystem struct {
	client    *s3.S3
	chunkSize int64
}

type s3Path struct {
	bucket string
	key    string
}

func parseS3URI(uri string) (s3Path, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return s3Path{}, err
	}
	if parsed.Scheme != "s3" {
		return s3Path{}, fmt.Errorf("%s is not an s3:// location", uri)
	}
	return s3Path{bucket: parsed.Host, key: strings.TrimPrefix(parsed.Path, "/")}, nil
}

func (p s3Path) String() string {
	return fmt.Sprintf("s3://%s/%s", p.bucket, p.key)
}

// globPrefix returns the part of a glob preceding its first wildcard
func globPrefix(glob string) string {
	if i := strings.IndexAny(glob, "*?[\\"); i >= 0 {
		return glob[:i]
	}
	return glob
}

// ListFiles lists every object matching a glob. A glob without wildcards lists every object
// under that prefix. Objects are returned in lexical order.
func (s *S3FileSystem) ListFiles(pathGlob string) ([]FileInfo, error) {
	parsed, err := parseS3URI(pathGlob)
	if err != nil {
		return nil, err
	}
	prefix := globPrefix(parsed.key)
	wildcard := prefix != parsed.key
	files := make([]FileInfo, 0)
	params := &s3.ListObjectsInput{
		Bucket: aws.String(parsed.bucket),
		Prefix: aws.String(prefix),
	}
	var matchErr error
	err = s.client.ListObjectsPages(params,
		func(page *s3.ListObjectsOutput, _ bool) bool {
			for _, object := range page.Contents {
				key := aws.StringValue(object.Key)
				if wildcard {
					ok, err := path.Match(parsed.key, key)
					if err != nil {
						matchErr = err
						return false
					}
					if !ok {
						continue
					}
				}
				files = append(files, FileInfo{
					Name: s3Path{bucket: parsed.bucket, key: key}.String(),
					Size: aws.Int64Value(object.Size),
				})
			}
			return true
		})
	if err == nil {
		err = matchErr
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, err
}

// OpenReader opens an object for reading, starting at the given offset. The object is
// fetched in ranged chunks.
func (s *S3FileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}
	info, err := s.Stat(filePath)
	if err != nil {
		return nil, err
	}
	reader := &s3Reader{
		client:    s.client,
		bucket:    parsed.bucket,
		key:       parsed.key,
		offset:    startAt,
		chunkSize: s.chunkSize,
		totalSize: info.Size,
	}
	return reader, reader.loadNextChunk()
}

// OpenWriter opens an object for writing. The object is uploaded when the writer is closed.
func (s *S3FileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}
	return &s3Writer{
		client: s.client,
		bucket: parsed.bucket,
		key:    parsed.key,
		buf:    filebuffer.New(nil),
	}, nil
}

// Stat returns information about an object
func (s *S3FileSystem) Stat(filePath string) (FileInfo, error) {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return FileInfo{}, err
	}
	params := &s3.ListObjectsInput{
		Bucket: aws.String(parsed.bucket),
		Prefix: aws.String(parsed.key),
	}
	result, err := s.client.ListObjects(params)
	if err != nil {
		return FileInfo{}, err
	}
	for _, object := range result.Contents {
		if aws.StringValue(object.Key) == parsed.key {
			return FileInfo{
				Name: filePath,
				Size: aws.Int64Value(object.Size),
			}, nil
		}
	}
	return FileInfo{}, fmt.Errorf("No object %s", filePath)
}

// Delete removes an object
func (s *S3FileSystem) Delete(filePath string) error {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(parsed.bucket),
		Key:    aws.String(parsed.key),
	})
	return err
}

// Join joins path elements
func (s *S3FileSystem) Join(elem ...string) string {
	if len(elem) == 0 {
		return ""
	}
	parsed, err := parseS3URI(elem[0])
	if err != nil {
		return path.Join(elem...)
	}
	parsed.key = path.Join(append([]string{parsed.key}, elem[1:]...)...)
	return parsed.String()
}

// Init creates an S3 client from the shared AWS configuration
func (s *S3FileSystem) Init() error {
	os.Setenv("AWS_SDK_LOAD_CONFIG", "true")
	sess, err := session.NewSession()
	if err != nil {
		return err
	}
	s.client = s3.New(sess)
	s.chunkSize = 32 * 1024 * 1024
	return nil
}
