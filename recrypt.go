package rvth

import "github.com/gcwii/rvth/wii"

// Wii partition header field offsets relative to the partition's start
// LBA and the standard Wii partition header layout.
const (
	partTicketOff     = 0x000
	partTMDSizeOff    = 0x2A4
	partTMDOffsetOff  = 0x2A8
	partCertSizeOff   = 0x2AC
	partCertOffsetOff = 0x2B0
	partH3OffsetOff   = 0x2B4
	partDataOffsetOff = 0x2B8
)

// RecryptPartitions swaps every Wii partition in entry's game partition
// table from its current crypto domain to to, rewriting ticket and TMD
// issuers/signatures and leaving the bulk partition data untouched. It
// mutates entry.CryptoType on success.
func RecryptPartitions(entry *BankEntry, to wii.CryptoType) error {
	if entry.reader == nil {
		return ErrNotWiiImage
	}
	if entry.CryptoType == wii.CryptoNone {
		return ErrIsUnencrypted
	}
	entries := entry.Ptbl
	if entries == nil {
		if findGamePartition(entry) == nil {
			return ErrNoGamePartition
		}
		entries = entry.Ptbl
	}

	from := entry.CryptoType
	for i := range entries {
		state := wii.RecryptLoaded
		sigTicket, sigTMD, err := recryptOnePartition(entry.reader, &entries[i], from, to, &state)
		if err != nil {
			return err
		}
		if entries[i].Type == wii.PartitionTypeGame {
			entry.SigStatusTicket = sigTicket
			entry.SigStatusTMD = sigTMD
		}
	}

	entry.CryptoType = to
	return entry.reader.Flush()
}

// recryptOnePartition drives a single partition through the
// Loaded -> KeySwapped -> SignaturesRegenerated -> Persisted state
// machine. state is updated as each step completes so a caller inspecting
// it after a failure can tell how far the partition got.
func recryptOnePartition(r *Reader, pte *wii.PartitionTableEntry, from, to wii.CryptoType, state *wii.RecryptState) (wii.SigStatus, wii.SigStatus, error) {
	headerLBAs := uint32(partitionHeaderSizeBytes / LBASize)
	buf := make([]byte, partitionHeaderSizeBytes)
	if _, err := r.ReadLBA(buf, pte.LBAStart, headerLBAs); err != nil {
		return wii.SigStatusUnknown, wii.SigStatusUnknown, err
	}

	ticket, err := wii.DecodeTicket(buf[partTicketOff:])
	if err != nil {
		return wii.SigStatusUnknown, wii.SigStatusUnknown, err
	}
	tmdSize := beUint32(buf[partTMDSizeOff : partTMDSizeOff+4])
	tmdOffset := beUint32(buf[partTMDOffsetOff : partTMDOffsetOff+4]) << 2
	if uint64(tmdOffset)+uint64(tmdSize) > uint64(len(buf)) {
		return wii.SigStatusUnknown, wii.SigStatusUnknown, ErrPartitionHeaderCorrupted
	}
	tmd, err := wii.DecodeTMD(buf[tmdOffset : tmdOffset+tmdSize])
	if err != nil {
		return wii.SigStatusUnknown, wii.SigStatusUnknown, ErrPartitionHeaderCorrupted
	}

	*state = wii.RecryptKeySwapped
	sigStatusTicket, err := wii.RecryptTicket(ticket, from, to)
	if err != nil {
		return wii.SigStatusUnknown, wii.SigStatusUnknown, err
	}
	sigStatusTMD, err := wii.RecryptTMD(tmd, to)
	if err != nil {
		return wii.SigStatusUnknown, wii.SigStatusUnknown, err
	}

	*state = wii.RecryptSignaturesRegenerated

	copy(buf[partTicketOff:partTicketOff+wii.TicketSize], ticket.Raw)
	copy(buf[tmdOffset:tmdOffset+uint32(len(tmd.Raw))], tmd.Raw)

	if _, err := r.WriteLBA(buf, pte.LBAStart, headerLBAs); err != nil {
		return wii.SigStatusUnknown, wii.SigStatusUnknown, err
	}
	*state = wii.RecryptPersisted
	return sigStatusTicket, sigStatusTMD, nil
}
