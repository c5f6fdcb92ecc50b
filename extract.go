package rvth

import (
	"github.com/spf13/afero"

	"github.com/gcwii/rvth/wii"
)

// ExtractFlags controls optional extract behavior.
type ExtractFlags uint32

const (
	// ExtractPrependSDKHeader prepends a 32 KiB devkit-loader header ahead
	// of the extracted image.
	ExtractPrependSDKHeader ExtractFlags = 1 << 0
)

const (
	sdkHeaderSizeBytes = 32 * 1024
	sdkHeaderSizeLBA   = sdkHeaderSizeBytes / LBASize

	// Assumed partition header size and H3 table size used when converting
	// an unencrypted partition's 31K-per-group layout to the 32K-per-group
	// encrypted layout.
	partitionHeaderSizeBytes = 0x8000
	extractCryptOverheadLBA  = 0x20000 / LBASize
	unencGroupLBAs           = 3968
	encGroupLBAs             = 4096
)

// RecryptAuto asks Extract to keep the source bank's existing crypto
// domain rather than recrypting.
const RecryptAuto wii.CryptoType = wii.CryptoUnknown

// createGCM creates (or truncates) a standalone disc image file of lbaLen
// LBAs and opens a plain Reader over the whole thing, marking it sparse.
// Any pre-existing destination is truncated to zero first, so stale
// trailing data from a longer previous file can never leak into the new
// image.
func createGCM(fs afero.Fs, path string, lbaLen uint32) (*Engine, error) {
	file, err := CreateFile(fs, path)
	if err != nil {
		return nil, err
	}
	if err := file.MakeSparse(lbaToBytes(lbaLen)); err != nil {
		_ = file.Unref()
		return nil, err
	}

	reader, err := OpenReader(file.Ref(), 0, lbaLen)
	if err != nil {
		_ = file.Unref() // the reader's reference
		_ = file.Unref() // our own
		return nil, err
	}

	dest := &Engine{
		fs:        fs,
		path:      path,
		file:      file,
		writable:  true,
		isHDD:     false,
		bankCount: 1,
		entries:   []*BankEntry{{Index: 0, LBAStart: 0, LBALen: lbaLen, reader: reader, TimestampUnix: -1}},
	}
	return dest, nil
}

// extractable reports whether a bank's type allows it to be extracted, and
// which EngineError to return otherwise.
func extractable(t BankType) error {
	switch t {
	case BankGCN, BankWiiSL, BankWiiDL:
		return nil
	case BankEmpty:
		return ErrBankEmpty
	case BankWiiDLBank2:
		return ErrBankDL2
	default:
		return ErrBankUnknown
	}
}

// Extract copies bank from src to a new standalone disc image at destPath
// on fs. Pass RecryptAuto as recryptKey to keep the
// source's crypto domain unchanged.
func Extract(fs afero.Fs, src *Engine, bank uint32, destPath string, recryptKey wii.CryptoType, flags ExtractFlags, progress Progress) (*Engine, error) {
	entry, err := src.Bank(bank)
	if err != nil {
		return nil, err
	}
	if err := extractable(entry.Type); err != nil {
		return nil, err
	}

	if recryptKey == wii.CryptoNone && entry.CryptoType != wii.CryptoNone && entry.CryptoType != wii.CryptoUnknown {
		return nil, ErrIsEncrypted
	}

	unencToEnc := (entry.Type == BankWiiSL || entry.Type == BankWiiDL) &&
		entry.CryptoType == wii.CryptoNone &&
		recryptKey != RecryptAuto && recryptKey != wii.CryptoNone

	var gcmLBALen uint32
	if unencToEnc {
		gamePTE := findGamePartition(entry)
		if gamePTE == nil {
			return nil, ErrNoGamePartition
		}
		lbaTmp := gamePTE.LBALen - uint32(partitionHeaderSizeBytes/LBASize)
		groups := lbaTmp / unencGroupLBAs
		if lbaTmp%unencGroupLBAs != 0 {
			groups++
		}
		gcmLBALen = groups*encGroupLBAs + extractCryptOverheadLBA + gamePTE.LBAStart
	} else {
		gcmLBALen = entry.LBALen
	}

	if flags&ExtractPrependSDKHeader != 0 {
		if entry.Type == BankGCN {
			return nil, ErrNDEVGCNNotSupported
		}
		gcmLBALen += sdkHeaderSizeLBA
	}

	dest, err := createGCM(fs, destPath, gcmLBALen)
	if err != nil {
		return nil, err
	}

	destEntry := dest.entries[0]
	destEntry.Type = entry.Type
	destEntry.RegionCode = entry.RegionCode
	destEntry.IsDeleted = false
	destEntry.CryptoType = entry.CryptoType
	destEntry.IOSVersion = entry.IOSVersion
	destEntry.Ticket = entry.Ticket
	destEntry.TMD = entry.TMD
	destEntry.DiscHeader = entry.DiscHeader
	destEntry.GameName = entry.GameName
	if entry.TimestampUnix >= 0 {
		destEntry.TimestampUnix = entry.TimestampUnix
	} else {
		destEntry.TimestampUnix = now()
	}

	if flags&ExtractPrependSDKHeader != 0 {
		if err := writeSDKHeader(destEntry.reader, entry.Type); err != nil {
			_ = dest.Close()
			return nil, err
		}
		destEntry.reader.LBAAdjust(sdkHeaderSizeLBA)
	}

	state := &ProgressState{Phase: ProgressExtract, SrcEngine: src, DstEngine: dest, SrcBank: bank, DstBank: 0, LBATotal: entry.LBALen}

	if unencToEnc {
		if err := extractCryptCopy(entry, destEntry, state, progress); err != nil {
			_ = dest.Close()
			return nil, err
		}
	} else {
		if err := sparseCopy(entry.reader, destEntry.reader, entry.LBALen, entry.DiscHeader, state, progress); err != nil {
			_ = dest.Close()
			return nil, err
		}
	}

	if recryptKey != RecryptAuto && recryptKey != destEntry.CryptoType {
		if err := RecryptPartitions(destEntry, recryptKey); err != nil {
			_ = dest.Close()
			return nil, err
		}
	}

	return dest, nil
}

// writeSDKHeader synthesizes the 32 KiB devkit-loader header a Wii SDK
// tool expects ahead of the disc payload.
func writeSDKHeader(dst *Reader, typ BankType) error {
	if typ != BankWiiSL && typ != BankWiiDL {
		return ErrNDEVGCNNotSupported
	}
	hdr := make([]byte, sdkHeaderSizeBytes)
	hdr[0x0000] = 0xFF
	hdr[0x0001] = 0xFF
	hdr[0x082E] = 0xE0
	hdr[0x082F] = 0x06
	hdr[0x0844] = 0x01
	_, err := dst.WriteLBA(hdr, 0, sdkHeaderSizeLBA)
	return err
}
