package rvth

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPlainImage writes a standalone image of lbaLen LBAs: a Wii disc
// header at LBA 0, one non-zero cluster at byte offset 0x1000, zeros
// everywhere else.
func buildPlainImage(t *testing.T, fs afero.Fs, path string, lbaLen uint32) {
	t.Helper()
	f, err := fs.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(lbaToBytes(lbaLen)))
	_, err = f.WriteAt(wiiHeaderBlock("RSPE01", "Wii Sports"), 0)
	require.NoError(t, err)
	_, err = f.WriteAt(fillLBA('D'), 0x1000)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func openPlainReader(t *testing.T, fs afero.Fs, path string) *Reader {
	t.Helper()
	file, err := OpenFile(fs, path, false)
	require.NoError(t, err)
	r, err := OpenReader(file, 0, 0)
	require.NoError(t, err)
	return r
}

func TestSparseCopy(t *testing.T) {
	const lbaLen = 8192 // 4 MiB
	fs := afero.NewMemMapFs()
	buildPlainImage(t, fs, "src.gcm", lbaLen)
	src := openPlainReader(t, fs, "src.gcm")
	defer src.Close()

	dest, err := createGCM(fs, "dst.gcm", lbaLen)
	require.NoError(t, err)

	require.NoError(t, sparseCopy(src, dest.entries[0].reader, lbaLen, nil, nil, nil))
	require.NoError(t, dest.Close())

	fi, err := fs.Stat("dst.gcm")
	require.NoError(t, err)
	assert.Equal(t, lbaToBytes(lbaLen), fi.Size(), "tail write forces the full file size")

	got, err := afero.ReadFile(fs, "dst.gcm")
	require.NoError(t, err)
	want, err := afero.ReadFile(fs, "src.gcm")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, byte(0), got[len(got)-1])
}

func TestSparseCopyRestoresDiscHeader(t *testing.T) {
	const lbaLen = 2048
	fs := afero.NewMemMapFs()
	buildPlainImage(t, fs, "src.gcm", lbaLen)

	// Zero LBA 0 in place, simulating the RVT-H flush bug, and hand the
	// copy engine the cached header to put back.
	f, err := fs.OpenFile("src.gcm", os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt(make([]byte, LBASize), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, hdr := identifyDiscHeader(wiiHeaderBlock("RSPE01", "Wii Sports"))
	require.NotNil(t, hdr)

	src := openPlainReader(t, fs, "src.gcm")
	defer src.Close()
	dest, err := createGCM(fs, "dst.gcm", lbaLen)
	require.NoError(t, err)

	require.NoError(t, sparseCopy(src, dest.entries[0].reader, lbaLen, hdr, nil, nil))
	require.NoError(t, dest.Close())

	got, err := afero.ReadFile(fs, "dst.gcm")
	require.NoError(t, err)
	assert.Equal(t, hdr.Raw[:], got[:LBASize])
}

func TestSparseCopyCancel(t *testing.T) {
	const lbaLen = 8192
	fs := afero.NewMemMapFs()
	buildPlainImage(t, fs, "src.gcm", lbaLen)
	src := openPlainReader(t, fs, "src.gcm")
	defer src.Close()
	dest, err := createGCM(fs, "dst.gcm", lbaLen)
	require.NoError(t, err)
	defer dest.Close()

	state := &ProgressState{Phase: ProgressExtract, LBATotal: lbaLen}
	err = sparseCopy(src, dest.entries[0].reader, lbaLen, nil, state, func(*ProgressState) bool {
		return false
	})
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestSparseCopyProgress(t *testing.T) {
	const lbaLen = 8192
	fs := afero.NewMemMapFs()
	buildPlainImage(t, fs, "src.gcm", lbaLen)
	src := openPlainReader(t, fs, "src.gcm")
	defer src.Close()
	dest, err := createGCM(fs, "dst.gcm", lbaLen)
	require.NoError(t, err)
	defer dest.Close()

	var calls []uint32
	state := &ProgressState{Phase: ProgressExtract, LBATotal: lbaLen}
	require.NoError(t, sparseCopy(src, dest.entries[0].reader, lbaLen, nil, state, func(s *ProgressState) bool {
		calls = append(calls, s.LBAProcessed)
		return true
	}))

	require.NotEmpty(t, calls)
	assert.Equal(t, uint32(0), calls[0])
	assert.Equal(t, uint32(lbaLen), calls[len(calls)-1], "completion is reported")
	assert.GreaterOrEqual(t, len(calls), int(lbaLen/copyBufLBAs), "at least once per chunk")
}

func TestPlainCopy(t *testing.T) {
	const lbaLen = 3000 // exercises the sub-chunk tail
	fs := afero.NewMemMapFs()
	buildPlainImage(t, fs, "src.gcm", lbaLen)
	src := openPlainReader(t, fs, "src.gcm")
	defer src.Close()
	dest, err := createGCM(fs, "dst.gcm", lbaLen)
	require.NoError(t, err)

	require.NoError(t, plainCopy(src, dest.entries[0].reader, lbaLen, nil, nil))
	require.NoError(t, dest.Close())

	got, err := afero.ReadFile(fs, "dst.gcm")
	require.NoError(t, err)
	want, err := afero.ReadFile(fs, "src.gcm")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCreateGCMTruncatesExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "dst.gcm", make([]byte, 10*LBASize), 0o644))

	dest, err := createGCM(fs, "dst.gcm", 4)
	require.NoError(t, err)
	require.NoError(t, dest.Close())

	fi, err := fs.Stat("dst.gcm")
	require.NoError(t, err)
	assert.Equal(t, lbaToBytes(4), fi.Size(), "stale longer destination is truncated")
}
