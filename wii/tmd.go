package wii

import (
	"encoding/binary"
	"fmt"
)

// TMD header offsets: signature block, issuer, version, ca_crl_version,
// signer_crl_version, sys_version(u64), title_id(u64), title_type,
// group_id, region, nbr_cont(u16), boot_index(u16), then nbr_cont content
// entries of 0x24 bytes each.
const (
	tmdSigOff       = 0x000
	tmdSigLen       = 0x140
	tmdIssuerOff    = 0x140
	tmdIssuerLen    = 0x40
	tmdSysVersOff   = 0x184
	tmdTitleIDOff   = 0x18C
	tmdTitleTypeOff = 0x194
	tmdGroupIDOff   = 0x198
	tmdRegionOff    = 0x19C
	tmdNbrContOff   = 0x1DE
	tmdBootIdxOff   = 0x1E0
	tmdPaddingOff   = 0x1E2 // unused two-byte field, mutated by fakesigning
	tmdContentsOff  = 0x1E4

	tmdContentEntrySize = 0x24
	contentIDOff        = 0x00
	contentIndexOff     = 0x04
	contentTypeOff      = 0x06
	contentSizeOff      = 0x08
	contentHashOff      = 0x10
	contentHashLen      = 0x14

	// ContentTypeHashTree marks a content as having an H0-H3 hash tree
	// (type bit 1).
	ContentTypeHashTree = 0x0002
)

// ContentEntry is one TMD content-table row.
type ContentEntry struct {
	ID    uint32
	Index uint16
	Type  uint16
	Size  uint64
	Hash  [contentHashLen]byte
}

// HasHashTree reports whether this content carries an H0-H3 hash tree.
func (c ContentEntry) HasHashTree() bool { return c.Type&ContentTypeHashTree != 0 }

// TMD is the decoded form of a title metadata blob.
type TMD struct {
	Raw []byte

	Issuer     Issuer
	SysVersion uint64
	TitleID    uint64
	TitleType  uint32
	GroupID    uint16
	Region     uint16
	BootIndex  uint16
	Contents   []ContentEntry
}

// DecodeTMD parses a raw TMD buffer (header plus content table). Unlike the
// ticket, a TMD's length depends on its content count, so the whole buffer
// is consumed rather than a fixed size.
func DecodeTMD(buf []byte) (*TMD, error) {
	if len(buf) < tmdContentsOff {
		return nil, fmt.Errorf("wii: TMD buffer too short for header (%d < %d)", len(buf), tmdContentsOff)
	}
	nbrCont := binary.BigEndian.Uint16(buf[tmdNbrContOff : tmdNbrContOff+2])
	need := tmdContentsOff + int(nbrCont)*tmdContentEntrySize
	if len(buf) < need {
		return nil, fmt.Errorf("wii: TMD buffer too short for %d contents (%d < %d)", nbrCont, len(buf), need)
	}

	t := &TMD{
		Raw:        append([]byte(nil), buf[:need]...),
		Issuer:     Issuer(trimNulString(buf[tmdIssuerOff : tmdIssuerOff+tmdIssuerLen])),
		SysVersion: binary.BigEndian.Uint64(buf[tmdSysVersOff : tmdSysVersOff+8]),
		TitleID:    binary.BigEndian.Uint64(buf[tmdTitleIDOff : tmdTitleIDOff+8]),
		TitleType:  binary.BigEndian.Uint32(buf[tmdTitleTypeOff : tmdTitleTypeOff+4]),
		GroupID:    binary.BigEndian.Uint16(buf[tmdGroupIDOff : tmdGroupIDOff+2]),
		Region:     binary.BigEndian.Uint16(buf[tmdRegionOff : tmdRegionOff+2]),
		BootIndex:  binary.BigEndian.Uint16(buf[tmdBootIdxOff : tmdBootIdxOff+2]),
		Contents:   make([]ContentEntry, nbrCont),
	}

	for i := 0; i < int(nbrCont); i++ {
		off := tmdContentsOff + i*tmdContentEntrySize
		entry := buf[off : off+tmdContentEntrySize]
		c := &t.Contents[i]
		c.ID = binary.BigEndian.Uint32(entry[contentIDOff : contentIDOff+4])
		c.Index = binary.BigEndian.Uint16(entry[contentIndexOff : contentIndexOff+2])
		c.Type = binary.BigEndian.Uint16(entry[contentTypeOff : contentTypeOff+2])
		c.Size = binary.BigEndian.Uint64(entry[contentSizeOff : contentSizeOff+8])
		copy(c.Hash[:], entry[contentHashOff:contentHashOff+contentHashLen])
	}
	return t, nil
}

// IOSVersion extracts the IOS version number from SysVersion (the low 32
// bits, valid when the high word is 1 and the low word is under 256).
// Returns (0, false) when the title is not IOS-booted in the expected way.
func (t *TMD) IOSVersion() (uint32, bool) {
	hi := uint32(t.SysVersion >> 32)
	lo := uint32(t.SysVersion)
	if hi != 1 || lo >= 256 {
		return 0, false
	}
	return lo, true
}

// Encode serializes t back to a raw buffer, starting from Raw so fields
// this struct doesn't model (padding, reserved bytes) pass through.
func (t *TMD) Encode() []byte {
	out := append([]byte(nil), t.Raw...)
	copy(out[tmdIssuerOff:tmdIssuerOff+tmdIssuerLen], padNulString(string(t.Issuer), tmdIssuerLen))
	binary.BigEndian.PutUint64(out[tmdSysVersOff:tmdSysVersOff+8], t.SysVersion)
	binary.BigEndian.PutUint64(out[tmdTitleIDOff:tmdTitleIDOff+8], t.TitleID)
	binary.BigEndian.PutUint16(out[tmdNbrContOff:tmdNbrContOff+2], uint16(len(t.Contents)))
	for i, c := range t.Contents {
		off := tmdContentsOff + i*tmdContentEntrySize
		entry := out[off : off+tmdContentEntrySize]
		binary.BigEndian.PutUint32(entry[contentIDOff:contentIDOff+4], c.ID)
		binary.BigEndian.PutUint16(entry[contentIndexOff:contentIndexOff+2], c.Index)
		binary.BigEndian.PutUint16(entry[contentTypeOff:contentTypeOff+2], c.Type)
		binary.BigEndian.PutUint64(entry[contentSizeOff:contentSizeOff+8], c.Size)
		copy(entry[contentHashOff:contentHashOff+contentHashLen], c.Hash[:])
	}
	return out
}

// Signature returns the TMD's 0x140-byte RSA signature block.
func (t *TMD) Signature() []byte { return t.Raw[tmdSigOff : tmdSigOff+tmdSigLen] }

// SetSignature overwrites the TMD's signature block in Raw.
func (t *TMD) SetSignature(sig []byte) { copy(t.Raw[tmdSigOff:tmdSigOff+tmdSigLen], sig) }

// SignedPayload returns the region of the TMD hashed for signing: everything
// after the signature block.
func (t *TMD) SignedPayload() []byte { return t.Raw[tmdSigLen:] }

// SetContentHash writes the H4 hash (SHA-1 of the partition's H3 table)
// into content index idx.
func (t *TMD) SetContentHash(idx int, h4 [contentHashLen]byte) error {
	if idx < 0 || idx >= len(t.Contents) {
		return fmt.Errorf("wii: content index %d out of range", idx)
	}
	t.Contents[idx].Hash = h4
	return nil
}
