package rvth

import "io"

// WBFS layout: magic "WBFS", HDD and WBFS sector sizes
// stored as power-of-two shifts, a disc-usage bitmap, then (since this
// module only supports single-game WBFS) one disc descriptor whose
// block-allocation table maps game-relative WBFS sectors to physical ones.
// Physical sector 0 belongs to the header/bitmap region and can never be a
// legitimate game block, so it doubles as the "unallocated" sentinel.
const (
	wbfsMagicBE uint32 = 0x57424653 // "WBFS"

	wbfsHeaderFixedBytes = 4 + 4 + 1 + 1 + 2 // magic, n_hd_sec, two shifts, padding
	wbfsDiscHeaderBytes  = 0x100
)

type wbfsState struct {
	hdSectorShift   uint8
	wbfsSectorShift uint8
	wbfsSectorSize  uint32 // bytes per WBFS sector, 1<<wbfsSectorShift
	firstDataSector uint32 // physical sector index where game data may start
	table           []uint16
	tableOffset     int64
	discHeaderOff   int64 // disc descriptor start: holds the promoted 256-byte disc header
	nextSector      uint32
	dirty           bool
}

func wbfsSectorLBAs(st *wbfsState) uint32 { return st.wbfsSectorSize / LBASize }

func newWBFSReader(file File, lbaStart, lbaLen uint32, imgType ImageType, head []byte) (*Reader, error) {
	buf := make([]byte, wbfsHeaderFixedBytes)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, sysErr("seek", err)
	}
	if _, err := io.ReadFull(file, buf); err != nil {
		return nil, sysErr("read", err)
	}

	nHDSec := beUint32(buf[4:8])
	hdShift := buf[8]
	wbfsShift := buf[9]

	st := &wbfsState{
		hdSectorShift:   hdShift,
		wbfsSectorShift: wbfsShift,
		wbfsSectorSize:  1 << wbfsShift,
	}

	hdSectorSize := uint32(1) << hdShift
	bitmapBits := (uint64(nHDSec) + 7) / 8
	bitmapBytes := (bitmapBits + uint64(hdSectorSize) - 1) / uint64(hdSectorSize) * uint64(hdSectorSize)
	discTableOffset := int64(hdSectorSize) // bitmap starts right after the fixed header, sector aligned

	// First disc descriptor starts at the next WBFS-sector boundary after
	// the header + bitmap region.
	discStart := alignUp(discTableOffset+int64(bitmapBytes), int64(st.wbfsSectorSize))

	if lbaLen == 0 {
		size, err := file.Size()
		if err != nil {
			return nil, err
		}
		lbaLen = bytesToLBA(size)
	}

	nBlocks := (lbaLen + wbfsSectorLBAs(st) - 1) / wbfsSectorLBAs(st)
	st.table = make([]uint16, nBlocks)
	st.discHeaderOff = discStart
	st.tableOffset = discStart + wbfsDiscHeaderBytes

	if _, err := file.Seek(st.tableOffset, io.SeekStart); err != nil {
		return nil, sysErr("seek", err)
	}
	tbuf := make([]byte, int(nBlocks)*2)
	if _, err := io.ReadFull(file, tbuf); err != nil && err != io.ErrUnexpectedEOF {
		return nil, sysErr("read", err)
	}
	var maxSector uint32
	for i := range st.table {
		v := beUint16(tbuf[i*2 : i*2+2])
		st.table[i] = v
		if uint32(v) >= maxSector {
			maxSector = uint32(v) + 1
		}
	}
	st.firstDataSector = uint32(discStart/int64(st.wbfsSectorSize)) + 1 // sector 0 of the disc region is the descriptor itself
	if maxSector < st.firstDataSector {
		maxSector = st.firstDataSector
	}
	st.nextSector = maxSector

	return &Reader{
		kind:     variantWBFS,
		file:     file,
		lbaStart: lbaStart,
		lbaLen:   lbaLen,
		imgType:  imgType,
		wbfs:     st,
	}, nil
}

func alignUp(v, align int64) int64 {
	return (v + align - 1) / align * align
}

func wbfsPhysicalOffset(st *wbfsState, sector uint32, within uint32) int64 {
	return int64(sector)*int64(st.wbfsSectorSize) + int64(within)*LBASize
}

func (r *Reader) wbfsReadLBA(buf []byte, start, count uint32) (uint32, error) {
	sectorLBAs := wbfsSectorLBAs(r.wbfs)
	var done uint32
	for done < count {
		logical := r.lbaStart + start + done
		block := logical / sectorLBAs
		within := logical % sectorLBAs
		dst := buf[done*LBASize : done*LBASize+LBASize]

		if int(block) >= len(r.wbfs.table) {
			return done, sysErr("read_lba", errOutOfRange)
		}
		sector := uint32(r.wbfs.table[block])
		if sector == 0 {
			for i := range dst {
				dst[i] = 0
			}
		} else {
			if _, err := r.file.Seek(wbfsPhysicalOffset(r.wbfs, sector, within), io.SeekStart); err != nil {
				return done, sysErr("seek", err)
			}
			if err := readZeroPadded(r.file, dst); err != nil {
				return done, sysErr("read_lba", err)
			}
		}

		// Disc LBA 0 starts with the 256-byte disc header WBFS promotes
		// to the front of the disc descriptor, so a disc ID scan never
		// has to touch the real game data.
		if logical == 0 {
			if _, err := r.file.Seek(r.wbfs.discHeaderOff, io.SeekStart); err != nil {
				return done, sysErr("seek", err)
			}
			if _, err := io.ReadFull(r.file, dst[:wbfsDiscHeaderBytes]); err != nil && err != io.ErrUnexpectedEOF {
				return done, sysErr("read_lba", err)
			}
		}
		done++
	}
	return done, nil
}

func (r *Reader) wbfsWriteLBA(buf []byte, start, count uint32) (uint32, error) {
	sectorLBAs := wbfsSectorLBAs(r.wbfs)
	var done uint32
	for done < count {
		logical := r.lbaStart + start + done
		block := logical / sectorLBAs
		within := logical % sectorLBAs
		src := buf[done*LBASize : done*LBASize+LBASize]

		if int(block) >= len(r.wbfs.table) {
			return done, sysErr("write_lba", errOutOfRange)
		}
		sector := uint32(r.wbfs.table[block])
		if sector == 0 {
			sector = r.wbfs.nextSector
			r.wbfs.nextSector++
			r.wbfs.table[block] = uint16(sector)
			r.wbfs.dirty = true
			if _, err := r.writeWBFSTable(); err != nil {
				return done, err
			}
		}

		if _, err := r.file.Seek(wbfsPhysicalOffset(r.wbfs, sector, within), io.SeekStart); err != nil {
			return done, sysErr("seek", err)
		}
		if _, err := r.file.Write(src); err != nil {
			return done, sysErr("write_lba", err)
		}

		// Keep the promoted disc-header copy in the descriptor current.
		if logical == 0 {
			if _, err := r.file.Seek(r.wbfs.discHeaderOff, io.SeekStart); err != nil {
				return done, sysErr("seek", err)
			}
			if _, err := r.file.Write(src[:wbfsDiscHeaderBytes]); err != nil {
				return done, sysErr("write_lba", err)
			}
		}
		done++
	}
	return done, nil
}

// writeWBFSTable persists the block-allocation table eagerly: unlike CISO's
// single deferred flush, the WBFS layout's table lives interleaved with
// disc metadata that downstream readers may inspect before Flush is called.
func (r *Reader) writeWBFSTable() (int, error) {
	buf := make([]byte, len(r.wbfs.table)*2)
	for i, v := range r.wbfs.table {
		putBEUint16(buf[i*2:i*2+2], v)
	}
	if _, err := r.file.Seek(r.wbfs.tableOffset, io.SeekStart); err != nil {
		return 0, sysErr("seek", err)
	}
	return r.file.Write(buf)
}
