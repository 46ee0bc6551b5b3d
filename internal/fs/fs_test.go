package fs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInferFilesystem(t *testing.T) {
	fs, err := InferFilesystem("s3://foo/bar.txt")
	require.NoError(t, err)
	require.IsType(t, &S3FileSystem{}, fs)

	fs, err = InferFilesystem("./bar.txt")
	require.NoError(t, err)
	require.IsType(t, &LocalFileSystem{}, fs)
}

func TestLocalReadWrite(t *testing.T) {
	dir, err := ioutil.TempDir("", "rdd-fs")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	fs := &LocalFileSystem{}

	for _, name := range []string{"b.txt", "a.txt", "nested/c.txt"} {
		w, err := fs.OpenWriter(fs.Join(dir, name))
		require.NoError(t, err)
		_, err = w.Write([]byte("foo bar baz"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	files, err := fs.ListFiles(filepath.Join(dir, "*.txt"))
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, filepath.Join(dir, "a.txt"), files[0].Name)
	require.Equal(t, int64(11), files[0].Size)

	files, err = fs.ListFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	r, err := fs.OpenReader(files[0].Name, 4)
	require.NoError(t, err)
	contents, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, "bar baz", string(contents))

	info, err := fs.Stat(files[1].Name)
	require.NoError(t, err)
	require.Equal(t, int64(11), info.Size)
	require.NoError(t, fs.Delete(files[1].Name))
	_, err = fs.Stat(files[1].Name)
	require.Error(t, err)
}

func TestS3Paths(t *testing.T) {
	p, err := parseS3URI("s3://bucket/some/key.txt")
	require.NoError(t, err)
	require.Equal(t, "bucket", p.bucket)
	require.Equal(t, "some/key.txt", p.key)
	require.Equal(t, "s3://bucket/some/key.txt", p.String())

	_, err = parseS3URI("/local/path")
	require.Error(t, err)

	require.Equal(t, "logs/2020-", globPrefix("logs/2020-*.txt"))
	require.Equal(t, "logs/", globPrefix("logs/"))

	fs := &S3FileSystem{}
	require.Equal(t, "s3://bucket/out/part-00000", fs.Join("s3://bucket/out", "part-00000"))
}
