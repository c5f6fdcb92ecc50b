package wii

import (
	"crypto/sha1"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTMDRaw assembles a TMD header plus content table by hand, the way a
// fixture WAD or partition header would carry it.
func buildTMDRaw(issuer Issuer, sysVersion uint64, contents []ContentEntry) []byte {
	raw := make([]byte, tmdContentsOff+len(contents)*tmdContentEntrySize)
	copy(raw[tmdIssuerOff:], string(issuer))
	binary.BigEndian.PutUint64(raw[tmdSysVersOff:], sysVersion)
	binary.BigEndian.PutUint64(raw[tmdTitleIDOff:], testTitleID)
	binary.BigEndian.PutUint16(raw[tmdNbrContOff:], uint16(len(contents)))
	for i, c := range contents {
		off := tmdContentsOff + i*tmdContentEntrySize
		binary.BigEndian.PutUint32(raw[off+contentIDOff:], c.ID)
		binary.BigEndian.PutUint16(raw[off+contentIndexOff:], c.Index)
		binary.BigEndian.PutUint16(raw[off+contentTypeOff:], c.Type)
		binary.BigEndian.PutUint64(raw[off+contentSizeOff:], c.Size)
		copy(raw[off+contentHashOff:], c.Hash[:])
	}
	return raw
}

func TestDecodeTMD(t *testing.T) {
	contents := []ContentEntry{
		{ID: 1, Index: 0, Type: 1, Size: 0x40},
		{ID: 2, Index: 1, Type: ContentTypeHashTree, Size: 0x8000},
	}
	raw := buildTMDRaw(IssuerDebugTMD, 1<<32|58, contents)

	tmd, err := DecodeTMD(raw)
	require.NoError(t, err)
	assert.Equal(t, IssuerDebugTMD, tmd.Issuer)
	assert.Equal(t, testTitleID, tmd.TitleID)
	require.Len(t, tmd.Contents, 2)
	assert.False(t, tmd.Contents[0].HasHashTree())
	assert.True(t, tmd.Contents[1].HasHashTree())

	ios, ok := tmd.IOSVersion()
	require.True(t, ok)
	assert.Equal(t, uint32(58), ios)
}

func TestDecodeTMDShort(t *testing.T) {
	_, err := DecodeTMD(make([]byte, 0x100))
	assert.Error(t, err)

	// A declared content count that overruns the buffer.
	raw := buildTMDRaw(IssuerDebugTMD, 0, nil)
	binary.BigEndian.PutUint16(raw[tmdNbrContOff:], 5)
	_, err = DecodeTMD(raw)
	assert.Error(t, err)
}

func TestTMDIOSVersionNotIOS(t *testing.T) {
	tmd, err := DecodeTMD(buildTMDRaw(IssuerDebugTMD, 0, nil))
	require.NoError(t, err)
	_, ok := tmd.IOSVersion()
	assert.False(t, ok)

	tmd, err = DecodeTMD(buildTMDRaw(IssuerDebugTMD, 1<<32|1000, nil))
	require.NoError(t, err)
	_, ok = tmd.IOSVersion()
	assert.False(t, ok)
}

func TestTMDEncodeRoundTrip(t *testing.T) {
	raw := buildTMDRaw(IssuerDebugTMD, 1<<32|36, []ContentEntry{{ID: 7, Type: 1, Size: 0x20}})
	tmd, err := DecodeTMD(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, tmd.Encode())

	var h4 [sha1.Size]byte
	h4[0] = 0xAB
	require.NoError(t, tmd.SetContentHash(0, h4))
	dec, err := DecodeTMD(tmd.Encode())
	require.NoError(t, err)
	assert.Equal(t, h4, dec.Contents[0].Hash)

	assert.Error(t, tmd.SetContentHash(3, h4))
}

func TestRecryptTMD(t *testing.T) {
	tmd, err := DecodeTMD(buildTMDRaw(IssuerDebugTMD, 1<<32|58, []ContentEntry{{ID: 1, Size: 0x40}}))
	require.NoError(t, err)

	status, err := RecryptTMD(tmd, CryptoRetail)
	require.NoError(t, err)
	assert.Equal(t, SigStatusFakesigned, status)
	assert.Equal(t, IssuerRetailTMD, tmd.Issuer)
	assert.Equal(t, make([]byte, tmdSigLen), tmd.Signature())
	assert.True(t, IsFakesigned(tmd.SignedPayload()))
	assert.Equal(t, SigStatusFakesigned, VerifyTMDSignature(tmd))
}
