package rvth

import (
	"crypto/sha1"

	"github.com/gcwii/rvth/wii"
)

// Hash-tree cluster-group granularity: each 31 KiB of
// plaintext becomes a 32 KiB encrypted group once hashed. This is distinct
// from (and much smaller than) the 3968/4096-LBA "group" used in extract.go
// solely to size the destination file ahead of time; that outer formula is
// a coarser upper-bound estimate, while the loop below walks the actual
// 31 KiB/32 KiB units the hash tree is built over.
const (
	cryptClusterGroupUnencLBAs = 31744 / LBASize // 62
	cryptClusterGroupEncLBAs   = 32768 / LBASize // 64
)

// extractCryptCopy converts an unencrypted source partition to the
// 32-KiB-per-group encrypted layout expected by retail hardware as it is
// copied to destEntry.
//
// Regions of the disc outside the game partition (everything up to the
// partition's data start) are copied verbatim via the ordinary sparse copy
// engine; only the partition's data region goes through hash-tree
// construction and encryption.
func extractCryptCopy(entry, destEntry *BankEntry, state *ProgressState, progress Progress) error {
	pte := findGamePartition(entry)
	if pte == nil {
		return ErrNoGamePartition
	}

	headerLBAs := uint32(partitionHeaderSizeBytes / LBASize)
	prefixLBAs := pte.LBAStart + headerLBAs
	if err := sparseCopy(entry.reader, destEntry.reader, prefixLBAs, entry.DiscHeader, state, progress); err != nil {
		return err
	}

	headerBuf := make([]byte, partitionHeaderSizeBytes)
	if _, err := entry.reader.ReadLBA(headerBuf, pte.LBAStart, headerLBAs); err != nil {
		return err
	}
	ticket, err := wii.DecodeTicket(headerBuf[partTicketOff:])
	if err != nil {
		return err
	}
	// A crypto_type=None source has no common key of its own; the ticket's
	// title-key field is stored in the clear's "each
	// 32 KiB encrypted group is stored as 31 KiB plaintext in the source".
	titleKey := ticket.EncTitleKey

	tmdSize := beUint32(headerBuf[partTMDSizeOff : partTMDSizeOff+4])
	tmdOffset := beUint32(headerBuf[partTMDOffsetOff : partTMDOffsetOff+4]) << 2
	if uint64(tmdOffset)+uint64(tmdSize) > uint64(len(headerBuf)) {
		return ErrPartitionHeaderCorrupted
	}
	tmd, err := wii.DecodeTMD(headerBuf[tmdOffset : tmdOffset+tmdSize])
	if err != nil {
		return err
	}
	gameContentIdx := -1
	for i, c := range tmd.Contents {
		if c.HasHashTree() {
			gameContentIdx = i
			break
		}
	}

	// The unencrypted source packs data right after the 0x8000-byte
	// partition header; the encrypted destination needs the standard
	// 0x20000-byte prefix (header plus H3 table) before its first group.
	srcDataStartLBA := pte.LBAStart + headerLBAs
	dstDataStartLBA := pte.LBAStart + extractCryptOverheadLBA
	dataLenLBA := pte.LBALen - headerLBAs
	clusterGroups := dataLenLBA / cryptClusterGroupUnencLBAs
	if dataLenLBA%cryptClusterGroupUnencLBAs != 0 {
		clusterGroups++
	}

	h2s := make([][sha1.Size]byte, 0, clusterGroups)
	plainGroup := make([]byte, cryptClusterGroupUnencLBAs*LBASize)

	for g := uint32(0); g < clusterGroups; g++ {
		if state != nil {
			state.LBAProcessed = srcDataStartLBA + g*cryptClusterGroupUnencLBAs
			if !progress.call(state) {
				return ErrCanceled
			}
		}

		srcLBA := srcDataStartLBA + g*cryptClusterGroupUnencLBAs
		n := uint32(cryptClusterGroupUnencLBAs)
		if remaining := dataLenLBA - g*cryptClusterGroupUnencLBAs; remaining < n {
			n = remaining
			for i := range plainGroup {
				plainGroup[i] = 0
			}
		}
		if _, err := entry.reader.ReadLBA(plainGroup, srcLBA, n); err != nil {
			return err
		}

		tree, err := wii.BuildHashTreeGroup(plainGroup)
		if err != nil {
			return err
		}
		h2s = append(h2s, tree.H2)

		encGroup, err := wii.EncryptGroup(titleKey, tree)
		if err != nil {
			return err
		}

		dstLBA := dstDataStartLBA + g*cryptClusterGroupEncLBAs
		if _, err := destEntry.reader.WriteLBA(encGroup, dstLBA, cryptClusterGroupEncLBAs); err != nil {
			return err
		}
	}

	h3 := wii.ComputeH3(h2s)
	if err := writeH3Table(destEntry.reader, pte.LBAStart, headerBuf, h3); err != nil {
		return err
	}
	if gameContentIdx >= 0 {
		h4 := wii.ComputeH4(h3)
		if err := tmd.SetContentHash(gameContentIdx, h4); err != nil {
			return err
		}
	}

	// The destination is now encrypted; it adopts the debug common-key
	// domain, matching how devkit-sourced unencrypted discs present once
	// encrypted for real hardware.
	wrappedKey, err := wii.EncryptTitleKey(titleKey, ticket.TitleID, wii.CryptoDebug)
	if err != nil {
		return err
	}
	ticket.EncTitleKey = wrappedKey
	if err := wii.SetTitleKeyDomain(ticket, wii.CryptoDebug); err != nil {
		return err
	}
	sigStatusTicket, err := wii.SignTicket(ticket)
	if err != nil {
		return err
	}
	tmdIssuer, err := wii.TMDIssuer(wii.CryptoDebug)
	if err != nil {
		return err
	}
	tmd.Issuer = tmdIssuer
	sigStatusTMD, err := wii.SignTMD(tmd)
	if err != nil {
		return err
	}
	destEntry.SigStatusTicket = sigStatusTicket
	destEntry.SigStatusTMD = sigStatusTMD
	destEntry.CryptoType = wii.CryptoDebug
	destEntry.Ticket = ticket.Raw
	destEntry.TMD = tmd.Raw

	copy(headerBuf[partTicketOff:partTicketOff+wii.TicketSize], ticket.Raw)
	copy(headerBuf[tmdOffset:tmdOffset+uint32(len(tmd.Raw))], tmd.Raw)
	putBEUint32(headerBuf[partDataOffsetOff:], (extractCryptOverheadLBA*LBASize)>>2)
	putBEUint32(headerBuf[partitionHeaderDataSizeOff:], (clusterGroups*cryptClusterGroupEncLBAs*LBASize)>>2)
	if _, err := destEntry.reader.WriteLBA(headerBuf, pte.LBAStart, headerLBAs); err != nil {
		return err
	}

	if state != nil {
		state.LBAProcessed = state.LBATotal
		if !progress.call(state) {
			return ErrCanceled
		}
	}

	return destEntry.reader.Flush()
}

// writeH3Table writes the partition's accumulated H3 table at the offset
// the partition header declares (stored >>2; the conventional 0x8000 right
// after the header when the field is zero), zero-padded to whole LBAs.
func writeH3Table(r *Reader, partStartLBA uint32, headerBuf, h3 []byte) error {
	if len(h3) == 0 {
		return nil
	}
	off := beUint32(headerBuf[partH3OffsetOff:partH3OffsetOff+4]) << 2
	if off == 0 {
		off = partitionHeaderSizeBytes
	}
	startLBA := off / LBASize
	lbas := uint32((len(h3) + LBASize - 1) / LBASize)
	// The table lives between the partition header and the data start; a
	// partition with more groups than the region can index keeps only the
	// prefix, the same truncation the fixed-size on-disc table imposes.
	if max := uint32(extractCryptOverheadLBA) - startLBA; lbas > max {
		lbas = max
	}
	buf := make([]byte, lbas*LBASize)
	copy(buf, h3)
	_, err := r.WriteLBA(buf, partStartLBA+startLBA, lbas)
	return err
}
