package rvth

import (
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := OpenFile(fs, "nope.img", false)
	require.Error(t, err)

	var sysErr *SystemError
	assert.ErrorAs(t, err, &sysErr)
}

func TestCreateFileWriteReadBack(t *testing.T) {
	fs := afero.NewMemMapFs()
	file, err := CreateFile(fs, "new.img")
	require.NoError(t, err)

	_, err = file.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, file.Flush())

	size, err := file.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = file.Seek(0, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(file, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	require.NoError(t, file.Unref())
}

func TestFileRefCounting(t *testing.T) {
	fs := afero.NewMemMapFs()
	file, err := CreateFile(fs, "rc.img")
	require.NoError(t, err)

	clone := file.Ref()
	require.NoError(t, clone.Unref())

	// The original reference still works after the clone released its.
	_, err = file.Write([]byte("x"))
	assert.NoError(t, err)
	require.NoError(t, file.Unref())
}

func TestMakeSparseSetsSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	file, err := CreateFile(fs, "sparse.img")
	require.NoError(t, err)
	defer file.Unref()

	require.NoError(t, file.MakeSparse(4096))
	size, err := file.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
	assert.False(t, file.IsDevice())
}

func TestOpenMultiPart(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "part0", []byte("abcd"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "part1", []byte("efgh"), 0o644))

	file, err := OpenMultiPart(fs, []string{"part0", "part1"})
	require.NoError(t, err)
	defer file.Unref()

	size, err := file.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)

	// Reads span the part boundary.
	_, err = file.Seek(2, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(file, buf)
	require.NoError(t, err)
	assert.Equal(t, "cdef", string(buf))
}

func TestOpenMultiPartEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := OpenMultiPart(fs, nil)
	assert.Error(t, err)
}
