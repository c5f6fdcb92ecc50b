package rvth

// Sparse copy engine: copy lbaCopyLen LBAs from src to dst, skipping any
// 4 KiB sub-block that is entirely zero so the destination (already made
// sparse by the caller) grows holes instead of zero-filled regions.
const (
	copyBufLBAs      = 2048 // 1 MiB / 512
	copySubBlockLBAs = 8    // 4 KiB / 512
)

// sparseCopy copies lbaCopyLen LBAs from src to dst. srcHeader, if non-nil,
// is the cached disc header to restore at LBA 0 if the source's own first
// block lacks both disc magics (compensating for the RVT-H's "flush"
// zeroing bug).
func sparseCopy(src, dst *Reader, lbaCopyLen uint32, srcHeader *DiscHeader, state *ProgressState, progress Progress) error {
	buf := make([]byte, copyBufLBAs*LBASize)

	lbaBufMax := lbaCopyLen &^ (copyBufLBAs - 1)
	var lbaNonsparse uint32
	var sawAny bool

	var lbaCount uint32
	for ; lbaCount < lbaBufMax; lbaCount += copyBufLBAs {
		if state != nil {
			state.LBAProcessed = lbaCount
			if !progress.call(state) {
				return ErrCanceled
			}
		}

		if _, err := src.ReadLBA(buf, lbaCount, copyBufLBAs); err != nil {
			return err
		}

		if lbaCount == 0 {
			restoreDiscHeaderIfMissing(buf, srcHeader)
		}

		for sub := uint32(0); sub < copyBufLBAs*LBASize; sub += copySubBlockLBAs * LBASize {
			chunk := buf[sub : sub+copySubBlockLBAs*LBASize]
			if isBlockEmpty(chunk) {
				continue
			}
			writeAt := lbaCount + sub/LBASize
			if _, err := dst.WriteLBA(chunk, writeAt, copySubBlockLBAs); err != nil {
				return err
			}
			lbaNonsparse = writeAt + copySubBlockLBAs - 1
			sawAny = true
		}
	}

	if lbaCount < lbaCopyLen {
		lbaLeft := lbaCopyLen - lbaCount

		if state != nil {
			state.LBAProcessed = lbaCount
			if !progress.call(state) {
				return ErrCanceled
			}
		}

		tail := buf[:int64(lbaLeft)*LBASize]
		if _, err := src.ReadLBA(tail, lbaCount, lbaLeft); err != nil {
			return err
		}

		if lbaCount == 0 {
			restoreDiscHeaderIfMissing(tail, srcHeader)
		}

		for sub := uint32(0); sub < lbaLeft; sub++ {
			chunk := tail[sub*LBASize : sub*LBASize+LBASize]
			if isBlockEmpty(chunk) {
				continue
			}
			writeAt := lbaCount + sub
			if _, err := dst.WriteLBA(chunk, writeAt, 1); err != nil {
				return err
			}
			lbaNonsparse = writeAt
			sawAny = true
		}
	}

	if state != nil {
		state.LBAProcessed = lbaCopyLen
		if !progress.call(state) {
			return ErrCanceled
		}
	}

	// Tail-write invariant: force the file to its full size
	// even if the very last LBA happened to be sparse.
	if !sawAny || lbaNonsparse != lbaCopyLen-1 {
		zero := make([]byte, LBASize)
		if _, err := dst.WriteLBA(zero, lbaCopyLen-1, 1); err != nil {
			return err
		}
	}

	return dst.Flush()
}

func restoreDiscHeaderIfMissing(buf []byte, srcHeader *DiscHeader) {
	if srcHeader == nil {
		return
	}
	magicWii := beUint32(buf[wiiMagicOffset : wiiMagicOffset+4])
	magicGCN := beUint32(buf[gcnMagicOffset : gcnMagicOffset+4])
	if magicWii == wiiMagic || magicGCN == gcnMagic {
		return
	}
	copy(buf[:LBASize], srcHeader.Raw[:])
}
