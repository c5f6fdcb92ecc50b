package rvth

import (
	"github.com/spf13/afero"

	"github.com/gcwii/rvth/wii"
)

// importedTagSuffix marks a bank whose source image had no recryptable
// signature problem (so no auto-recrypt-to-Debug happened) with a small
// recognizable marker. It is written into the spare bytes of the game name
// field rather than a new on-disk structure.
const importedTagSuffix = " [imported]"

// Import copies the standalone disc image at srcPath into bank destBank of
// dst.
func Import(fs afero.Fs, dst *Engine, destBank uint32, srcPath string, progress Progress) error {
	if !dst.IsHDD() {
		return ErrNotHDDImage
	}

	src, err := Open(fs, srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if src.IsHDD() {
		return ErrIsHDDImage
	}
	srcEntry, err := src.Bank(0)
	if err != nil {
		return err
	}
	if err := extractable(srcEntry.Type); err != nil {
		return err
	}

	destEntry, err := dst.Bank(destBank)
	if err != nil {
		return err
	}

	if srcEntry.Type == BankWiiDL {
		if destBank+1 >= dst.bankCount {
			return ErrImportDLLastBank
		}
		if dst.bankCount > nhcdBankCountMin && destBank == 0 {
			return ErrImportDLExtNoBank1
		}
		if !bankEmptyOrDeleted(destEntry) {
			return ErrBankNotEmptyOrDeleted
		}
		bank2, err := dst.Bank(destBank + 1)
		if err != nil {
			return err
		}
		if !bankEmptyOrDeleted(bank2) {
			return ErrBank2DLNotEmptyOrDeleted
		}
		if srcEntry.LBALen > 2*destSlotLen(dst, destBank) {
			return ErrImageTooBig
		}
	} else {
		limit := destSlotLen(dst, destBank)
		if srcEntry.LBALen > limit {
			return ErrImageTooBig
		}
	}

	if !bankEmptyOrDeleted(destEntry) {
		return ErrBankNotEmptyOrDeleted
	}

	if err := dst.MakeWritable(); err != nil {
		return err
	}

	if destEntry.reader == nil {
		lbaStart := destEntry.LBAStart
		lbaLen := destEntry.LBALen
		if lbaStart == 0 || lbaLen == 0 {
			lbaStart = bankStartLBA(destBank, dst.bankCount)
			lbaLen = bankDefaultLen(destBank, dst.bankCount)
		}
		r, err := OpenReader(dst.file.Ref(), lbaStart, lbaLen)
		if err != nil {
			return err
		}
		destEntry.reader = r
		destEntry.LBAStart = lbaStart
		destEntry.LBALen = lbaLen
	}

	state := &ProgressState{Phase: ProgressImport, SrcEngine: src, DstEngine: dst, SrcBank: 0, DstBank: destBank, LBATotal: srcEntry.LBALen}
	if err := plainCopy(srcEntry.reader, destEntry.reader, srcEntry.LBALen, state, progress); err != nil {
		return err
	}

	destEntry.Type = srcEntry.Type
	destEntry.IsDeleted = false
	destEntry.CryptoType = srcEntry.CryptoType
	destEntry.SigType = srcEntry.SigType
	destEntry.SigStatusTicket = srcEntry.SigStatusTicket
	destEntry.SigStatusTMD = srcEntry.SigStatusTMD
	destEntry.IOSVersion = srcEntry.IOSVersion
	destEntry.TimestampUnix = srcEntry.TimestampUnix
	destEntry.GameName = srcEntry.GameName
	destEntry.RegionCode = srcEntry.RegionCode
	destEntry.DiscHeader = srcEntry.DiscHeader
	destEntry.Ticket = srcEntry.Ticket
	destEntry.TMD = srcEntry.TMD

	if srcEntry.Type == BankWiiDL {
		bank2 := dst.entries[destBank+1]
		bank2.Type = BankWiiDLBank2
		bank2.IsDeleted = false
	}

	canRecrypt := srcEntry.CryptoType == wii.CryptoRetail || srcEntry.CryptoType == wii.CryptoKorean ||
		srcEntry.CryptoType == wii.CryptoVWii || srcEntry.CryptoType == wii.CryptoDebug ||
		srcEntry.CryptoType == wii.CryptoDebugRealsigned
	needsRecrypt := srcEntry.CryptoType == wii.CryptoRetail || srcEntry.CryptoType == wii.CryptoKorean ||
		(canRecrypt && (srcEntry.SigStatusTicket != wii.SigStatusOK || srcEntry.SigStatusTMD != wii.SigStatusOK))

	if (srcEntry.Type == BankWiiSL || srcEntry.Type == BankWiiDL) && needsRecrypt {
		if err := RecryptPartitions(destEntry, wii.CryptoDebug); err != nil {
			return err
		}
	} else {
		destEntry.GameName += importedTagSuffix
		if len(destEntry.GameName) > 64 {
			destEntry.GameName = destEntry.GameName[:64]
		}
	}

	if err := persistNHCDEntry(dst.file, destBank, destEntry); err != nil {
		return err
	}
	if srcEntry.Type == BankWiiDL {
		if err := persistNHCDEntry(dst.file, destBank+1, dst.entries[destBank+1]); err != nil {
			return err
		}
	}
	return nil
}

func bankEmptyOrDeleted(e *BankEntry) bool {
	return e.Type == BankEmpty || e.IsDeleted
}

// destSlotLen returns the LBA capacity of bank i in dst: the table entry's
// own length, or bankDefaultLen when the entry lists none.
func destSlotLen(dst *Engine, i uint32) uint32 {
	if dst.entries[i].LBALen != 0 {
		return dst.entries[i].LBALen
	}
	return bankDefaultLen(i, dst.bankCount)
}

// plainCopy copies lbaLen LBAs from src to dst 1 MiB at a time without any
// sparse-hole detection.
func plainCopy(src, dst *Reader, lbaLen uint32, state *ProgressState, progress Progress) error {
	buf := make([]byte, copyBufLBAs*LBASize)
	var lba uint32
	for ; lba+copyBufLBAs <= lbaLen; lba += copyBufLBAs {
		if state != nil {
			state.LBAProcessed = lba
			if !progress.call(state) {
				return ErrCanceled
			}
		}
		if _, err := src.ReadLBA(buf, lba, copyBufLBAs); err != nil {
			return err
		}
		if _, err := dst.WriteLBA(buf, lba, copyBufLBAs); err != nil {
			return err
		}
	}
	if lba < lbaLen {
		n := lbaLen - lba
		tail := buf[:int64(n)*LBASize]
		if state != nil {
			state.LBAProcessed = lba
			if !progress.call(state) {
				return ErrCanceled
			}
		}
		if _, err := src.ReadLBA(tail, lba, n); err != nil {
			return err
		}
		if _, err := dst.WriteLBA(tail, lba, n); err != nil {
			return err
		}
	}
	if state != nil {
		state.LBAProcessed = lbaLen
		progress.call(state)
	}
	return dst.Flush()
}
