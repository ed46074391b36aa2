package utils

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFile_RotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")
	rf, err := OpenRotatingFile(FileOptions{Path: path, MaxSize: 10, MaxBackups: 2})
	require.NoError(t, err)
	defer func() { _ = rf.Close() }()

	for _, line := range []string{"first-\n", "second\n", "third-\n", "fourth\n"} {
		_, err := rf.Write([]byte(line))
		require.NoError(t, err)
	}

	read := func(name string) string {
		b, err := os.ReadFile(name)
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, "fourth\n", read(path))
	assert.Equal(t, "third-\n", read(path+".1"))
	assert.Equal(t, "second\n", read(path+".2"))
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "only MaxBackups files are kept")
}

func TestRotatingFile_Compress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	rf, err := OpenRotatingFile(FileOptions{Path: path, Compress: true})
	require.NoError(t, err)

	_, err = rf.Write([]byte("before rotation\n"))
	require.NoError(t, err)
	require.NoError(t, rf.Rotate())
	_, err = rf.Write([]byte("after rotation\n"))
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	f, err := os.Open(path + ".1.gz")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "before rotation\n", string(data))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(current), "after rotation"))
}

func TestRotatingFile_Closed(t *testing.T) {
	rf, err := OpenRotatingFile(FileOptions{Path: filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)
	require.NoError(t, rf.Close())
	require.NoError(t, rf.Close())

	_, err = rf.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)

	_, err = OpenRotatingFile(FileOptions{})
	assert.Error(t, err)
}
