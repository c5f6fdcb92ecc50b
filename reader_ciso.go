package rvth

import "io"

// CISO layout: a 32,768-entry big-endian u16 block-index
// table immediately follows the 4-byte "CISO" magic; each indexed block is
// a fixed 2 MiB. 0xFFFF in the table means the block is entirely zero and
// was never allocated on disk.
const (
	cisoMagic        uint32 = 0x4349534F // "CISO"
	cisoTableEntries        = 32768
	cisoBlockBytes          = 2 * 1024 * 1024
	cisoBlockLBAs    uint32 = cisoBlockBytes / LBASize
	cisoUnallocated  uint32 = 0xFFFF
	cisoHeaderBytes         = 4 + cisoTableEntries*2
)

type cisoState struct {
	table     [cisoTableEntries]uint32 // physical block index, or cisoUnallocated
	nextBlock uint32
	dirty     bool
}

func newCISOReader(file File, lbaStart, lbaLen uint32, imgType ImageType, head []byte) (*Reader, error) {
	buf := make([]byte, cisoHeaderBytes)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, sysErr("seek", err)
	}
	if _, err := io.ReadFull(file, buf); err != nil {
		return nil, sysErr("read", err)
	}

	st := &cisoState{}
	var maxUsed uint32
	for i := 0; i < cisoTableEntries; i++ {
		v := uint32(beUint16(buf[4+i*2 : 4+i*2+2]))
		if v == 0xFFFF {
			v = cisoUnallocated
		} else if v+1 > maxUsed {
			maxUsed = v + 1
		}
		st.table[i] = v
	}
	st.nextBlock = maxUsed

	if lbaLen == 0 {
		// Logical size is governed by the table, not the physical file
		// size: the image extends to the last mapped block.
		lastMapped := -1
		for i := 0; i < cisoTableEntries; i++ {
			if st.table[i] != cisoUnallocated {
				lastMapped = i
			}
		}
		lbaLen = uint32(lastMapped+1) * cisoBlockLBAs
	}

	return &Reader{
		kind:     variantCISO,
		file:     file,
		lbaStart: lbaStart,
		lbaLen:   lbaLen,
		imgType:  imgType,
		ciso:     st,
	}, nil
}

func cisoPhysicalOffset(block, within uint32) int64 {
	return cisoHeaderBytes + int64(block)*cisoBlockBytes + int64(within)*LBASize
}

func (r *Reader) cisoReadLBA(buf []byte, start, count uint32) (uint32, error) {
	var done uint32
	for done < count {
		logical := r.lbaStart + start + done
		block := logical / cisoBlockLBAs
		within := logical % cisoBlockLBAs
		dst := buf[done*LBASize : done*LBASize+LBASize]

		phys := r.ciso.table[block]
		if phys == cisoUnallocated {
			for i := range dst {
				dst[i] = 0
			}
		} else {
			if _, err := r.file.Seek(cisoPhysicalOffset(phys, within), io.SeekStart); err != nil {
				return done, sysErr("seek", err)
			}
			if err := readZeroPadded(r.file, dst); err != nil {
				return done, sysErr("read_lba", err)
			}
		}
		done++
	}
	return done, nil
}

func (r *Reader) cisoWriteLBA(buf []byte, start, count uint32) (uint32, error) {
	var done uint32
	for done < count {
		logical := r.lbaStart + start + done
		block := logical / cisoBlockLBAs
		within := logical % cisoBlockLBAs
		src := buf[done*LBASize : done*LBASize+LBASize]

		phys := r.ciso.table[block]
		if phys == cisoUnallocated {
			phys = r.ciso.nextBlock
			r.ciso.nextBlock++
			r.ciso.table[block] = phys
			r.ciso.dirty = true
		}

		if _, err := r.file.Seek(cisoPhysicalOffset(phys, within), io.SeekStart); err != nil {
			return done, sysErr("seek", err)
		}
		if _, err := r.file.Write(src); err != nil {
			return done, sysErr("write_lba", err)
		}
		done++
	}
	return done, nil
}

func (r *Reader) cisoFlush() error {
	if r.ciso.dirty {
		buf := make([]byte, cisoTableEntries*2)
		for i := 0; i < cisoTableEntries; i++ {
			v := r.ciso.table[i]
			if v == cisoUnallocated {
				v = 0xFFFF
			}
			putBEUint16(buf[i*2:i*2+2], uint16(v))
		}
		if _, err := r.file.Seek(4, io.SeekStart); err != nil {
			return sysErr("seek", err)
		}
		if _, err := r.file.Write(buf); err != nil {
			return sysErr("write", err)
		}
		r.ciso.dirty = false
	}
	return r.file.Flush()
}
