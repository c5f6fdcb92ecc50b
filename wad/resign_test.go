package wad

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcwii/rvth/wii"
)

func TestResignDebugToRetail(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTestWAD(t, fs, "debug.wad", wii.CryptoDebug, fxContents())

	info, err := Resign(fs, "debug.wad", "retail.wad", wii.CryptoRetail)
	require.NoError(t, err)
	assert.Equal(t, wii.CryptoRetail, info.CryptoType)
	assert.Equal(t, wii.SigStatusFakesigned, info.SigStatusTicket)
	assert.Equal(t, wii.SigStatusFakesigned, info.SigStatusTMD)

	// The resigned WAD reads back in the retail domain and every content
	// still verifies: the title key survived the rewrap and the content
	// ciphertext was carried through untouched.
	out, err := ReadInfo(fs, "retail.wad", true)
	require.NoError(t, err)
	assert.Equal(t, wii.CryptoRetail, out.CryptoType)
	assert.Equal(t, fxTitleID, out.TitleID)
	require.Len(t, out.Contents, 3)
	for i, c := range out.Contents {
		assert.True(t, c.Verified, "content %d", i)
	}
}

func TestResignDefaultKeyIsDebug(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTestWAD(t, fs, "retail.wad", wii.CryptoRetail, fxContents()[:1])

	info, err := Resign(fs, "retail.wad", "debug.wad", wii.CryptoUnknown)
	require.NoError(t, err)
	assert.Equal(t, wii.CryptoDebug, info.CryptoType)

	out, err := ReadInfo(fs, "debug.wad", true)
	require.NoError(t, err)
	assert.Equal(t, wii.CryptoDebug, out.CryptoType)
	require.Len(t, out.Contents, 1)
	assert.True(t, out.Contents[0].Verified)
}

func TestResignIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTestWAD(t, fs, "src.wad", wii.CryptoDebug, fxContents())

	_, err := Resign(fs, "src.wad", "mid.wad", wii.CryptoRetail)
	require.NoError(t, err)
	_, err = Resign(fs, "mid.wad", "dst.wad", wii.CryptoRetail)
	require.NoError(t, err)

	mid, err := afero.ReadFile(fs, "mid.wad")
	require.NoError(t, err)
	dst, err := afero.ReadFile(fs, "dst.wad")
	require.NoError(t, err)
	assert.Equal(t, mid, dst, "re-signing under the same key is a fixed point")
}
