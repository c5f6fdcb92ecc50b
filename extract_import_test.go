package rvth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcwii/rvth/wii"
)

// makeGCM writes a small standalone image with the given disc header and a
// recognizable payload LBA, on the same filesystem the engine under test
// uses.
func makeGCM(t *testing.T, fs afero.Fs, path string, header []byte, lbaLen uint32) {
	t.Helper()
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(lbaToBytes(lbaLen)))
	_, err = f.WriteAt(header, 0)
	require.NoError(t, err)
	_, err = f.WriteAt(fillLBA('P'), lbaToBytes(100))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestExtractGCNBank(t *testing.T) {
	fs, path := makeHDD(t, 8)
	entry := gcnBankEntry(0)
	plantBank(t, fs, path, entry, gcnHeaderBlock("GALE01", "MELEE"))

	// A payload LBA inside the bank window.
	f, err := fs.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt(fillLBA('Q'), lbaToBytes(entry.LBAStart+50))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	eng, err := Open(fs, path)
	require.NoError(t, err)
	defer eng.Close()

	dest := filepath.Join(filepath.Dir(path), "out.gcm")
	out, err := Extract(fs, eng, 0, dest, RecryptAuto, 0, nil)
	require.NoError(t, err)

	ob, err := out.Bank(0)
	require.NoError(t, err)
	assert.Equal(t, BankGCN, ob.Type)
	assert.Equal(t, testTimestamp, ob.TimestampUnix, "source timestamp is carried over")
	require.NoError(t, out.Close())

	fi, err := fs.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, lbaToBytes(entry.LBALen), fi.Size())

	df, err := fs.Open(dest)
	require.NoError(t, err)
	defer df.Close()
	buf := make([]byte, LBASize)
	_, err = df.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, gcnHeaderBlock("GALE01", "MELEE"), buf)
	_, err = df.ReadAt(buf, lbaToBytes(50))
	require.NoError(t, err)
	assert.Equal(t, fillLBA('Q'), buf)
}

func TestExtractValidation(t *testing.T) {
	fs, path := makeHDD(t, 8)
	dl := &BankEntry{Index: 0, Type: BankWiiDL, TimestampUnix: testTimestamp, LBAStart: 0x400, LBALen: 2 * nhcdBankSizeLBA}
	plantBank(t, fs, path, dl, wiiHeaderBlock("RSBE01", "SSBB"))

	eng, err := Open(fs, path)
	require.NoError(t, err)
	defer eng.Close()

	dest := filepath.Join(filepath.Dir(path), "out.gcm")
	_, err = Extract(fs, eng, 1, dest, RecryptAuto, 0, nil)
	assert.ErrorIs(t, err, ErrBankDL2)
	_, err = Extract(fs, eng, 2, dest, RecryptAuto, 0, nil)
	assert.ErrorIs(t, err, ErrBankEmpty)
}

func TestExtractSDKHeaderRejectsGCN(t *testing.T) {
	fs, path := makeHDD(t, 8)
	plantBank(t, fs, path, gcnBankEntry(0), gcnHeaderBlock("GALE01", "MELEE"))

	eng, err := Open(fs, path)
	require.NoError(t, err)
	defer eng.Close()

	_, err = Extract(fs, eng, 0, filepath.Join(filepath.Dir(path), "out.gcm"), RecryptAuto, ExtractPrependSDKHeader, nil)
	assert.ErrorIs(t, err, ErrNDEVGCNNotSupported)
}

func TestExtractSDKHeaderWii(t *testing.T) {
	fs, path := makeHDD(t, 8)
	entry := &BankEntry{Index: 0, Type: BankWiiSL, GameName: "SPORTS", TimestampUnix: testTimestamp, LBAStart: 0x400, LBALen: 2048}
	plantBank(t, fs, path, entry, wiiHeaderBlock("RSPE01", "SPORTS"))

	eng, err := Open(fs, path)
	require.NoError(t, err)
	defer eng.Close()

	dest := filepath.Join(filepath.Dir(path), "out.gcm")
	out, err := Extract(fs, eng, 0, dest, RecryptAuto, ExtractPrependSDKHeader, nil)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	fi, err := fs.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, lbaToBytes(entry.LBALen+sdkHeaderSizeLBA), fi.Size())

	df, err := fs.Open(dest)
	require.NoError(t, err)
	defer df.Close()
	hdr := make([]byte, sdkHeaderSizeBytes)
	_, err = df.ReadAt(hdr, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), hdr[0x0000])
	assert.Equal(t, byte(0xFF), hdr[0x0001])
	assert.Equal(t, byte(0xE0), hdr[0x082E])
	assert.Equal(t, byte(0x06), hdr[0x082F])
	assert.Equal(t, byte(0x01), hdr[0x0844])

	// The payload begins right past the header.
	buf := make([]byte, LBASize)
	_, err = df.ReadAt(buf, sdkHeaderSizeBytes)
	require.NoError(t, err)
	assert.Equal(t, wiiHeaderBlock("RSPE01", "SPORTS"), buf)
}

func TestImportGCN(t *testing.T) {
	fs, path := makeHDD(t, 8)
	src := filepath.Join(filepath.Dir(path), "src.gcm")
	makeGCM(t, fs, src, gcnHeaderBlock("GALE01", "MELEE"), 2048)

	eng, err := Open(fs, path)
	require.NoError(t, err)
	require.NoError(t, Import(fs, eng, 1, src, nil))

	b1, err := eng.Bank(1)
	require.NoError(t, err)
	assert.Equal(t, BankGCN, b1.Type)
	assert.True(t, strings.HasSuffix(b1.GameName, importedTagSuffix))
	require.NoError(t, eng.Close())

	// Reopen: the persisted entry and the copied image must both be there.
	eng, err = Open(fs, path)
	require.NoError(t, err)
	defer eng.Close()
	b1, err = eng.Bank(1)
	require.NoError(t, err)
	assert.Equal(t, BankGCN, b1.Type)
	assert.False(t, b1.IsDeleted)

	buf := make([]byte, LBASize)
	_, err = b1.Reader().ReadLBA(buf, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, fillLBA('P'), buf)
}

func TestImportValidation(t *testing.T) {
	fs, path := makeHDD(t, 8)
	plantBank(t, fs, path, gcnBankEntry(0), gcnHeaderBlock("GALE01", "MELEE"))
	src := filepath.Join(filepath.Dir(path), "src.gcm")
	makeGCM(t, fs, src, gcnHeaderBlock("GALE01", "MELEE"), 2048)

	eng, err := Open(fs, path)
	require.NoError(t, err)
	defer eng.Close()

	// Destination bank already holds an image.
	assert.ErrorIs(t, Import(fs, eng, 0, src, nil), ErrBankNotEmptyOrDeleted)

	// An HDD image is not a valid import source.
	assert.ErrorIs(t, Import(fs, eng, 1, path, nil), ErrIsHDDImage)

	// A standalone image is not a valid import destination.
	gcmEng, err := Open(fs, src)
	require.NoError(t, err)
	defer gcmEng.Close()
	assert.ErrorIs(t, Import(fs, gcmEng, 0, src, nil), ErrNotHDDImage)
}

func TestImportTooBig(t *testing.T) {
	fs, path := makeHDD(t, 8)
	src := filepath.Join(filepath.Dir(path), "huge.gcm")
	makeGCM(t, fs, src, gcnHeaderBlock("GALE01", "MELEE"), nhcdBankSizeLBA+1)

	eng, err := Open(fs, path)
	require.NoError(t, err)
	defer eng.Close()
	assert.ErrorIs(t, Import(fs, eng, 1, src, nil), ErrImageTooBig)
}

func TestImportDLRules(t *testing.T) {
	fs, path := makeHDD(t, 8)
	src := filepath.Join(filepath.Dir(path), "dl.gcm")
	// Large enough to be promoted from Wii-SL to Wii-DL on open.
	makeGCM(t, fs, src, wiiHeaderBlock("RSBE01", "SSBB"), NHCDBankWiiSLSizeRVTRLBA+64)

	eng, err := Open(fs, path)
	require.NoError(t, err)
	defer eng.Close()

	// A dual-layer image cannot land in the last bank, and the table must
	// be untouched afterwards.
	before := readRawEntry(t, fs, path, 7)
	assert.ErrorIs(t, Import(fs, eng, 7, src, nil), ErrImportDLLastBank)
	assert.Equal(t, before, readRawEntry(t, fs, path, 7))

	// On an extended table, a dual-layer image cannot start in bank 1.
	fs16, path16 := makeHDD(t, 16)
	src16 := filepath.Join(filepath.Dir(path16), "dl.gcm")
	makeGCM(t, fs16, src16, wiiHeaderBlock("RSBE01", "SSBB"), NHCDBankWiiSLSizeRVTRLBA+64)

	eng16, err := Open(fs16, path16)
	require.NoError(t, err)
	defer eng16.Close()
	assert.ErrorIs(t, Import(fs16, eng16, 0, src16, nil), ErrImportDLExtNoBank1)
}

func TestExtractToNoneFromEncryptedFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	fx := buildUnencryptedWii(t, fs)

	eng, err := Open(fs, fx.path)
	require.NoError(t, err)
	defer eng.Close()

	// Force an encrypted-looking crypto type to hit the guard.
	b, err := eng.Bank(0)
	require.NoError(t, err)
	b.CryptoType = wii.CryptoRetail

	_, err = Extract(fs, eng, 0, "out.gcm", wii.CryptoNone, 0, nil)
	assert.ErrorIs(t, err, ErrIsEncrypted)
}
