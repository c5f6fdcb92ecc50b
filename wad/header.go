// Package wad parses, inspects, and re-signs Wii WAD title packages: the
// installable-title container format used to move a Wii title's ticket,
// TMD, and encrypted contents as a single file.
package wad

import (
	"encoding/binary"
	"fmt"

	"github.com/gcwii/rvth/wii"
)

// Standard WAD header size and section-type magics: header_size must be
// exactly 0x20, and the type field right after it is one of three
// ASCII-pair magics.
const (
	HeaderSize = 0x20

	TypeInstallable uint32 = 0x49730000 // "Is\0\0"
	TypeBoot2       uint32 = 0x69620000 // "ib\0\0"
	TypeBackup      uint32 = 0x426B0000 // "Bk\0\0"
)

// sectionAlign is the padding boundary every section of a standard-layout
// WAD starts on.
const sectionAlign = 64

func align64(n uint32) uint32 { return (n + sectionAlign - 1) &^ (sectionAlign - 1) }

// Layout is a decoded WAD header together with every section's computed
// offset.
type Layout struct {
	EarlyDevkit bool
	Type        uint32

	CertChainSize uint32
	CRLSize       uint32
	TicketSize    uint32
	TMDSize       uint32
	DataSize      uint32
	FooterSize    uint32

	CertChainOffset uint32
	CRLOffset       uint32
	TicketOffset    uint32
	TMDOffset       uint32
	DataOffset      uint32
	FooterOffset    uint32
	TotalSize       uint32
}

// TypeString names the WAD's type magic, or "Early Devkit" for the
// pre-alignment layout.
func (l *Layout) TypeString() string {
	if l.EarlyDevkit {
		return "Early Devkit"
	}
	switch l.Type {
	case TypeInstallable:
		return "Is"
	case TypeBoot2:
		return "ib"
	case TypeBackup:
		return "Bk"
	default:
		return "Unknown"
	}
}

// Identify parses a WAD's first HeaderSize bytes and determines both its
// type and whether it uses the early-devkit layout (certificate chain
// after the ticket) or the standard one. header_size must be exactly 0x20;
// a header whose type field matches no known magic is still an early
// devkit WAD if its ticket_size field holds the exact ticket struct size.
func Identify(buf []byte) (*Layout, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("wad: header truncated (%d < %d bytes)", len(buf), HeaderSize)
	}

	headerSize := binary.BigEndian.Uint32(buf[0:4])
	if headerSize != HeaderSize {
		return nil, fmt.Errorf("wad: unexpected header_size 0x%x", headerSize)
	}
	typ := binary.BigEndian.Uint32(buf[4:8])

	l := &Layout{
		Type:          typ,
		CertChainSize: binary.BigEndian.Uint32(buf[8:12]),
		CRLSize:       binary.BigEndian.Uint32(buf[12:16]),
		TicketSize:    binary.BigEndian.Uint32(buf[16:20]),
		TMDSize:       binary.BigEndian.Uint32(buf[20:24]),
		DataSize:      binary.BigEndian.Uint32(buf[24:28]),
		FooterSize:    binary.BigEndian.Uint32(buf[28:32]),
	}

	switch typ {
	case TypeInstallable, TypeBoot2, TypeBackup:
		l.computeStandardOffsets()
		return l, nil
	}

	if l.TicketSize == uint32(wii.TicketSize) {
		l.EarlyDevkit = true
		l.Type = 0
		l.computeEarlyOffsets()
		return l, nil
	}

	return nil, fmt.Errorf("wad: unrecognized header")
}

// computeStandardOffsets lays out cert chain, CRL, ticket, TMD, data, and
// footer each starting on a 64-byte boundary.
func (l *Layout) computeStandardOffsets() {
	off := uint32(HeaderSize)
	l.CertChainOffset = off
	off = align64(off + l.CertChainSize)
	l.CRLOffset = off
	off = align64(off + l.CRLSize)
	l.TicketOffset = off
	off = align64(off + l.TicketSize)
	l.TMDOffset = off
	off = align64(off + l.TMDSize)
	l.DataOffset = off
	off = align64(off + l.DataSize)
	l.FooterOffset = off
	l.TotalSize = align64(off + l.FooterSize)
}

// computeEarlyOffsets lays out the early-devkit section order: the
// certificate chain comes after the ticket instead of before it.
// Alignment is the same 64-byte boundary as the standard layout.
func (l *Layout) computeEarlyOffsets() {
	off := uint32(HeaderSize)
	l.TicketOffset = off
	off = align64(off + l.TicketSize)
	l.CertChainOffset = off
	off = align64(off + l.CertChainSize)
	l.CRLOffset = off
	off = align64(off + l.CRLSize)
	l.TMDOffset = off
	off = align64(off + l.TMDSize)
	l.DataOffset = off
	off = align64(off + l.DataSize)
	l.FooterOffset = off
	l.TotalSize = off + l.FooterSize
}

// Encode serializes a standard (non-early) layout's header back to
// HeaderSize bytes.
func (l *Layout) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], HeaderSize)
	binary.BigEndian.PutUint32(buf[4:8], l.Type)
	binary.BigEndian.PutUint32(buf[8:12], l.CertChainSize)
	binary.BigEndian.PutUint32(buf[12:16], l.CRLSize)
	binary.BigEndian.PutUint32(buf[16:20], l.TicketSize)
	binary.BigEndian.PutUint32(buf[20:24], l.TMDSize)
	binary.BigEndian.PutUint32(buf[24:28], l.DataSize)
	binary.BigEndian.PutUint32(buf[28:32], l.FooterSize)
	return buf
}
