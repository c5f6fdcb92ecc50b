package rvth

import "github.com/gcwii/rvth/wii"

// scanPartitionTable reads the volume group table and every non-empty
// group's partition entries from a reader (the disc
// partition table this module needs to locate the game partition for
// extract-crypt and recryption). Partition LBAs returned are relative to
// the reader's own window, i.e. already relative to the bank's LBA start.
func scanPartitionTable(r *Reader) ([]wii.PartitionTableEntry, error) {
	head := make([]byte, LBASize)
	if _, err := r.ReadLBA(head, wii.PTblLBA, 1); err != nil {
		return nil, err
	}
	groups, err := wii.DecodeVolumeGroupTable(head)
	if err != nil {
		return nil, ErrPartitionTableCorrupted
	}

	var all []wii.PartitionTableEntry
	for _, g := range groups {
		if g.Count == 0 {
			continue
		}
		need := int(g.Count) * 8
		lbas := uint32((need + LBASize - 1) / LBASize)
		buf := make([]byte, lbas*LBASize)
		if _, err := r.ReadLBA(buf, g.OffsetLBA, lbas); err != nil {
			return nil, err
		}
		entries, err := wii.DecodePartitionGroup(buf, g.Count)
		if err != nil {
			return nil, ErrPartitionTableCorrupted
		}
		all = append(all, entries...)
	}
	return all, nil
}

// findGamePartition locates the entry's game partition, caching the result
// on entry.Ptbl so repeated calls (extract, then recrypt) don't re-scan.
// It also fills in each partition's LBALen by reading its header's data
// size field.
func findGamePartition(entry *BankEntry) *wii.PartitionTableEntry {
	if entry.reader == nil {
		return nil
	}
	if entry.Ptbl == nil {
		entries, err := scanPartitionTable(entry.reader)
		if err != nil {
			return nil
		}
		for i := range entries {
			fillPartitionLength(entry.reader, &entries[i])
		}
		entry.Ptbl = entries
	}
	return wii.FindGamePartition(entry.Ptbl)
}

// partitionHeaderDataSizeOff is the byte offset within a Wii partition
// header of the partition's data length field, stored in units of 4
// bytes, per the standard Wii partition header layout.
const partitionHeaderDataSizeOff = 0x2BC

// fillPartitionLength reads a partition's 0x8000-byte header and derives
// its total LBA length (header + data) from the header's data size field.
func fillPartitionLength(r *Reader, pte *wii.PartitionTableEntry) {
	headerLBAs := uint32(partitionHeaderSizeBytes / LBASize)
	buf := make([]byte, partitionHeaderSizeBytes)
	if _, err := r.ReadLBA(buf, pte.LBAStart, headerLBAs); err != nil {
		return
	}
	dataSizeBytes := uint64(beUint32(buf[partitionHeaderDataSizeOff:partitionHeaderDataSizeOff+4])) << 2
	pte.LBALen = headerLBAs + uint32(dataSizeBytes/LBASize)
}
