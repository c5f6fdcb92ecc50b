package rvth

import "github.com/gcwii/rvth/wii"

// BankEntry is the in-memory representation of one bank (or, for a
// standalone disc image, the image's single implicit bank).
type BankEntry struct {
	Index      uint32
	Type       BankType
	RegionCode string
	IsDeleted  bool
	CryptoType wii.CryptoType
	SigType    wii.SigType

	SigStatusTicket wii.SigStatus
	SigStatusTMD    wii.SigStatus

	IOSVersion    uint32
	TimestampUnix int64
	GameName      string

	LBAStart uint32
	LBALen   uint32

	DiscHeader *DiscHeader

	Ticket []byte // raw 0x2A4-byte ticket, decoded lazily by package wii
	TMD    []byte // raw TMD header + content table
	Ptbl   []wii.PartitionTableEntry
	reader *Reader
}

// Reader returns the bank's owning block reader, or nil if none has been
// opened (an empty bank that was never imported into, for example).
func (e *BankEntry) Reader() *Reader { return e.reader }

// IsDLBank2 reports whether this entry is the synthetic second half of a
// dual-layer pair: never independently usable.
func (e *BankEntry) IsDLBank2() bool { return e.Type == BankWiiDLBank2 }
