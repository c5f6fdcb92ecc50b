package rvth

import "io"

// Bank table layout.
const (
	nhcdBankTableAddressLBA = 0x300
	nhcdBlockSize           = LBASize
	nhcdMagic        uint32 = 0x4E484344 // "NHCD"
	nhcdBankCountMin        = 8
	nhcdBankCountMax        = 32

	nhcdEntryTypeOffset      = 0
	nhcdEntryTimestampOffset = 4
	nhcdEntryTimestampLen    = 14
	nhcdEntryLBAStartOffset  = 4 + 14
	nhcdEntryLBALenOffset    = 4 + 14 + 4
	nhcdEntryGameNameOffset  = 4 + 14 + 4 + 4
	nhcdEntryGameNameLen     = 64
)

const (
	nhcdBankTypeEmpty uint32 = iota
	nhcdBankTypeGCN
	nhcdBankTypeWiiSL
	nhcdBankTypeWiiDL
)

// nhcdDeletedBit marks a bank's type value as belonging to a deleted bank.
// The on-disk type field otherwise only needs the low bits, so the RVT-H
// table reuses the top bit as a deleted flag rather than a fifth type.
const nhcdDeletedBit uint32 = 0x80000000

// nhcdBankSizeLBA is the fixed size, in LBAs, of one ordinary bank slot on
// an 8-bank factory-default RVT-H Reader (0x900000 LBAs, ~4.5 GiB — enough
// for a dual-layer Wii disc image split across two banks).
const nhcdBankSizeLBA = 0x900000

// bankSlotSize returns the default slot size in LBAs of banks 2 and up on
// an extended table (bankCount > 8): the 8-bank factory span divided evenly
// by bankCount. Bank 1 is not made smaller: it keeps the full
// nhcdBankSizeLBA slot (see bankDefaultLen), so on an extended table the
// default slots together cover more than the 8-bank span.
func bankSlotSize(bankCount uint32) uint32 {
	// One 8-bank factory table spans the full addressable HDD.
	const totalLBAs = nhcdBankSizeLBA * 8
	return totalLBAs / bankCount
}

// bankStartLBA returns the default start LBA of bank i (0-indexed) when the
// table doesn't list one explicitly.
func bankStartLBA(i, bankCount uint32) uint32 {
	base := uint32(nhcdBankTableAddressLBA + 1 + bankCount)
	if bankCount <= nhcdBankCountMin {
		return base + i*nhcdBankSizeLBA
	}
	// Extended table: bank 1 keeps the full-size slot; later banks follow it
	// at bankSlotSize intervals.
	slot := bankSlotSize(bankCount)
	if i == 0 {
		return base
	}
	return base + nhcdBankSizeLBA + (i-1)*slot
}

// bankDefaultLen returns the default length, in LBAs, of bank i when the
// table entry doesn't specify one.
func bankDefaultLen(i, bankCount uint32) uint32 {
	if bankCount <= nhcdBankCountMin || i == 0 {
		return nhcdBankSizeLBA
	}
	return bankSlotSize(bankCount)
}

// nhcdHeader is the decoded first block of the bank table.
type nhcdHeader struct {
	BankCount uint32
}

func loadNHCDHeader(file File) (*nhcdHeader, error) {
	buf := make([]byte, nhcdBlockSize)
	if _, err := file.Seek(lbaToBytes(nhcdBankTableAddressLBA), io.SeekStart); err != nil {
		return nil, sysErr("seek", err)
	}
	if _, err := io.ReadFull(file, buf); err != nil {
		return nil, sysErr("read", err)
	}

	if beUint32(buf[0:4]) != nhcdMagic {
		return nil, ErrNHCDTableMagic
	}

	bankCount := beUint32(buf[4:8])
	if bankCount < nhcdBankCountMin || bankCount > nhcdBankCountMax {
		return nil, ErrInvalidBankCount
	}

	return &nhcdHeader{BankCount: bankCount}, nil
}

// nhcdRawEntry is one decoded 512-byte bank-table entry, before it has been
// merged with default-slot geometry or promoted to a dual-layer pair.
type nhcdRawEntry struct {
	Type      uint32
	IsDeleted bool
	Timestamp int64
	LBAStart  uint32
	LBALen    uint32
	GameName  string
}

func loadNHCDEntry(file File, index uint32) (*nhcdRawEntry, error) {
	addr := lbaToBytes(nhcdBankTableAddressLBA) + nhcdBlockSize + int64(index)*nhcdBlockSize
	buf := make([]byte, nhcdBlockSize)
	if _, err := file.Seek(addr, io.SeekStart); err != nil {
		return nil, sysErr("seek", err)
	}
	if _, err := io.ReadFull(file, buf); err != nil {
		return nil, sysErr("read", err)
	}

	rawType := beUint32(buf[nhcdEntryTypeOffset:])
	return &nhcdRawEntry{
		Type:      rawType &^ nhcdDeletedBit,
		IsDeleted: rawType&nhcdDeletedBit != 0,
		Timestamp: decodeTimestamp(buf[nhcdEntryTimestampOffset : nhcdEntryTimestampOffset+nhcdEntryTimestampLen]),
		LBAStart:  beUint32(buf[nhcdEntryLBAStartOffset:]),
		LBALen:    beUint32(buf[nhcdEntryLBALenOffset:]),
		GameName:  trimString(buf[nhcdEntryGameNameOffset : nhcdEntryGameNameOffset+nhcdEntryGameNameLen]),
	}, nil
}

// persistNHCDEntry writes entry back to its slot in the bank table.
// Wii-DL-Bank2 entries are persisted as logical Empty since they carry no
// independent on-disk identity.
func persistNHCDEntry(file File, index uint32, e *BankEntry) error {
	addr := lbaToBytes(nhcdBankTableAddressLBA) + nhcdBlockSize + int64(index)*nhcdBlockSize
	buf := make([]byte, nhcdBlockSize)

	t := e.Type
	if t == BankWiiDLBank2 {
		t = BankEmpty
	}

	var nhcdType uint32
	switch t {
	case BankGCN:
		nhcdType = nhcdBankTypeGCN
	case BankWiiSL:
		nhcdType = nhcdBankTypeWiiSL
	case BankWiiDL:
		nhcdType = nhcdBankTypeWiiDL
	default:
		nhcdType = nhcdBankTypeEmpty
	}

	if e.IsDeleted && t != BankEmpty {
		nhcdType |= nhcdDeletedBit
	}
	putBEUint32(buf[nhcdEntryTypeOffset:], nhcdType)
	ts := e.TimestampUnix
	if t == BankEmpty {
		ts = -1
	}
	encodeTimestamp(buf[nhcdEntryTimestampOffset:nhcdEntryTimestampOffset+nhcdEntryTimestampLen], ts)
	putBEUint32(buf[nhcdEntryLBAStartOffset:], e.LBAStart)
	putBEUint32(buf[nhcdEntryLBALenOffset:], e.LBALen)
	padString(buf[nhcdEntryGameNameOffset:nhcdEntryGameNameOffset+nhcdEntryGameNameLen], e.GameName)

	if _, err := file.Seek(addr, io.SeekStart); err != nil {
		return sysErr("seek", err)
	}
	if _, err := file.Write(buf); err != nil {
		return sysErr("write", err)
	}
	return nil
}

func nhcdTypeToBankType(t uint32) BankType {
	switch t {
	case nhcdBankTypeGCN:
		return BankGCN
	case nhcdBankTypeWiiSL:
		return BankWiiSL
	case nhcdBankTypeWiiDL:
		return BankWiiDL
	case nhcdBankTypeEmpty:
		return BankEmpty
	default:
		return BankUnknown
	}
}
