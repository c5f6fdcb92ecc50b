package wad

import (
	"crypto/sha1"
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcwii/rvth/wii"
)

// Fixture field offsets inside a raw ticket / TMD.
const (
	fxTicketIssuerOff   = 0x140
	fxTicketTitleKeyOff = 0x1BF
	fxTicketTitleIDOff  = 0x1DC
	fxTicketKeyIdxOff   = 0x1F1

	fxTMDIssuerOff   = 0x140
	fxTMDSysVersOff  = 0x184
	fxTMDTitleIDOff  = 0x18C
	fxTMDNbrContOff  = 0x1DE
	fxTMDContentsOff = 0x1E4
	fxTMDContentSize = 0x24
)

var (
	fxTitleKey = []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E, 0x1F}
	fxTitleID  = uint64(0x0001000152535045) // "RSPE"
)

func fxTicketRaw(t *testing.T, domain wii.CryptoType) []byte {
	t.Helper()
	issuer, err := wii.TicketIssuer(domain)
	require.NoError(t, err)
	wrapped, err := wii.EncryptTitleKey(fxTitleKey, fxTitleID, domain)
	require.NoError(t, err)

	raw := make([]byte, wii.TicketSize)
	copy(raw[fxTicketIssuerOff:], string(issuer))
	copy(raw[fxTicketTitleKeyOff:], wrapped)
	binary.BigEndian.PutUint64(raw[fxTicketTitleIDOff:], fxTitleID)
	idx, err := wii.CommonKeyIndexForDomain(domain)
	require.NoError(t, err)
	raw[fxTicketKeyIdxOff] = idx
	return raw
}

func fxTMDRaw(t *testing.T, domain wii.CryptoType, contents [][]byte) []byte {
	t.Helper()
	issuer, err := wii.TMDIssuer(domain)
	require.NoError(t, err)

	raw := make([]byte, fxTMDContentsOff+len(contents)*fxTMDContentSize)
	copy(raw[fxTMDIssuerOff:], string(issuer))
	binary.BigEndian.PutUint64(raw[fxTMDSysVersOff:], 1<<32|58)
	binary.BigEndian.PutUint64(raw[fxTMDTitleIDOff:], fxTitleID)
	binary.BigEndian.PutUint16(raw[fxTMDNbrContOff:], uint16(len(contents)))
	for i, plain := range contents {
		off := fxTMDContentsOff + i*fxTMDContentSize
		binary.BigEndian.PutUint32(raw[off:], uint32(i))        // content ID
		binary.BigEndian.PutUint16(raw[off+4:], uint16(i))      // index
		binary.BigEndian.PutUint16(raw[off+6:], 1)              // flat content
		binary.BigEndian.PutUint64(raw[off+8:], uint64(len(plain)))
		sum := sha1.Sum(plain)
		copy(raw[off+0x10:], sum[:])
	}
	return raw
}

// buildTestWAD writes a standard-layout WAD carrying the given plaintext
// contents, each encrypted under the fixture title key.
func buildTestWAD(t *testing.T, fs afero.Fs, path string, domain wii.CryptoType, contents [][]byte) *Layout {
	t.Helper()
	ticket := fxTicketRaw(t, domain)
	tmd := fxTMDRaw(t, domain, contents)
	certChain := make([]byte, 0xA00)
	copy(certChain, "certificate chain placeholder")
	footer := []byte("build metadata footer")

	var data []byte
	for i, plain := range contents {
		padded := make([]byte, (len(plain)+15)&^15)
		copy(padded, plain)
		enc, err := wii.EncryptContentCBC(fxTitleKey, uint16(i), padded)
		require.NoError(t, err)
		data = append(data, enc...)
		if pad := (sectionAlign - len(data)%sectionAlign) % sectionAlign; pad != 0 {
			data = append(data, make([]byte, pad)...)
		}
	}

	l := &Layout{
		Type:          TypeInstallable,
		CertChainSize: uint32(len(certChain)),
		TicketSize:    uint32(len(ticket)),
		TMDSize:       uint32(len(tmd)),
		DataSize:      uint32(len(data)),
		FooterSize:    uint32(len(footer)),
	}
	l.computeStandardOffsets()

	buf := make([]byte, l.TotalSize)
	copy(buf, l.Encode())
	copy(buf[l.CertChainOffset:], certChain)
	copy(buf[l.TicketOffset:], ticket)
	copy(buf[l.TMDOffset:], tmd)
	copy(buf[l.DataOffset:], data)
	copy(buf[l.FooterOffset:], footer)
	require.NoError(t, afero.WriteFile(fs, path, buf, 0o644))
	return l
}

func fxContents() [][]byte {
	c := make([][]byte, 3)
	for i := range c {
		c[i] = make([]byte, 4000+i*100)
		for j := range c[i] {
			c[i][j] = byte(i + j*3)
		}
	}
	return c
}

func TestReadInfo(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTestWAD(t, fs, "title.wad", wii.CryptoDebug, fxContents())

	info, err := ReadInfo(fs, "title.wad", false)
	require.NoError(t, err)
	assert.Equal(t, "Is", info.Layout.TypeString())
	assert.Equal(t, fxTitleID, info.TitleID)
	assert.Equal(t, "RSPE", info.GameID)
	assert.Equal(t, wii.CryptoDebug, info.CryptoType)
	assert.True(t, info.HasIOSVer)
	assert.Equal(t, uint32(58), info.IOSVer)

	// Content rows are always listed; nothing is marked verified unless
	// verification was asked for.
	require.Len(t, info.Contents, 3)
	assert.Equal(t, uint64(4000), info.Contents[0].Size)
	assert.False(t, info.Contents[0].Verified)
}

func TestReadInfoVerify(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTestWAD(t, fs, "title.wad", wii.CryptoDebug, fxContents())

	info, err := ReadInfo(fs, "title.wad", true)
	require.NoError(t, err)
	require.Len(t, info.Contents, 3)
	for i, c := range info.Contents {
		assert.True(t, c.Verified, "content %d", i)
		assert.NoError(t, c.VerifyErr)
	}
}

func TestReadInfoVerifyDetectsCorruption(t *testing.T) {
	fs := afero.NewMemMapFs()
	layout := buildTestWAD(t, fs, "title.wad", wii.CryptoDebug, fxContents())

	// Flip the first byte of the third content's ciphertext on disk.
	buf, err := afero.ReadFile(fs, "title.wad")
	require.NoError(t, err)
	stride := uint64(0)
	for i := 0; i < 2; i++ {
		stride += alignContent(uint64(4000 + i*100))
	}
	buf[uint64(layout.DataOffset)+stride] ^= 0x01
	require.NoError(t, afero.WriteFile(fs, "title.wad", buf, 0o644))

	info, err := ReadInfo(fs, "title.wad", true)
	require.NoError(t, err)
	require.Len(t, info.Contents, 3)
	assert.True(t, info.Contents[0].Verified)
	assert.True(t, info.Contents[1].Verified)
	assert.False(t, info.Contents[2].Verified)
	assert.Error(t, info.Contents[2].VerifyErr)
}

func TestGameIDFromTitleID(t *testing.T) {
	assert.Equal(t, "RSPE", gameIDFromTitleID(0x0001000152535045))
	assert.Equal(t, "", gameIDFromTitleID(0x0000000100000002), "system titles have no game ID")
	assert.Equal(t, "", gameIDFromTitleID(0x00010001525350FF))
}
