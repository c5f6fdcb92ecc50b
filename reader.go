package rvth

import "io"

// ImageType is inferred by the bank engine when it opens a backing file.
type ImageType int

const (
	ImageHDDReader ImageType = iota // a real device
	ImageHDDImage                   // a file > 10 GiB
	ImageGCM                        // standalone image, reader starts at LBA 0
	ImageGCMSDK                     // standalone image, reader starts past an SDK header
)

const tenGiBInLBA = (10 * 1024 * 1024 * 1024) / LBASize

// variantKind tags which concrete codec a Reader dispatches to: a tagged
// variant switched over in every method, rather than a vtable/inheritance
// hierarchy.
type variantKind int

const (
	variantPlain variantKind = iota
	variantCISO
	variantWBFS
)

// Reader is a uniform LBA-addressable window over a backing file. A single
// concrete type backs all three on-disk variants (plain, CISO, WBFS);
// which codec path a method takes is chosen by switching on kind.
type Reader struct {
	kind     variantKind
	file     File
	lbaStart uint32
	lbaLen   uint32
	imgType  ImageType

	ciso *cisoState
	wbfs *wbfsState
}

// lbaAdjustImpl shifts the reader's window by delta LBAs, used when an SDK
// header has just been prepended ahead of the payload.
func (r *Reader) lbaAdjustImpl(delta int32) {
	r.lbaStart = uint32(int64(r.lbaStart) + int64(delta))
	r.lbaLen = uint32(int64(r.lbaLen) - int64(delta))
}

// LBALen returns the reader's window length in LBAs.
func (r *Reader) LBALen() uint32 { return r.lbaLen }

// LBAStart returns the reader's window start LBA within the backing file.
func (r *Reader) LBAStart() uint32 { return r.lbaStart }

// ImageType returns the inferred image type for this reader.
func (r *Reader) ImageType() ImageType { return r.imgType }

func boundsCheck(start, count, limit uint32) error {
	if uint64(start)+uint64(count) > uint64(limit) {
		return sysErr("read_lba", errOutOfRange)
	}
	return nil
}

// ReadLBA reads count LBAs starting at start (relative to the reader's
// window) into buf, which must be at least count*LBASize bytes.
func (r *Reader) ReadLBA(buf []byte, start, count uint32) (uint32, error) {
	if err := boundsCheck(start, count, r.lbaLen); err != nil {
		return 0, err
	}
	switch r.kind {
	case variantCISO:
		return r.cisoReadLBA(buf, start, count)
	case variantWBFS:
		return r.wbfsReadLBA(buf, start, count)
	default:
		return r.plainReadLBA(buf, start, count)
	}
}

// WriteLBA writes count LBAs from buf starting at start (relative to the
// reader's window).
func (r *Reader) WriteLBA(buf []byte, start, count uint32) (uint32, error) {
	if err := boundsCheck(start, count, r.lbaLen); err != nil {
		return 0, err
	}
	switch r.kind {
	case variantCISO:
		return r.cisoWriteLBA(buf, start, count)
	case variantWBFS:
		return r.wbfsWriteLBA(buf, start, count)
	default:
		return r.plainWriteLBA(buf, start, count)
	}
}

// Flush commits pending writes (the index table for CISO, or the raw file
// for plain) to the backing file. For WBFS it does nothing, since WriteLBA
// already writes the block table as it allocates.
func (r *Reader) Flush() error {
	switch r.kind {
	case variantCISO:
		return r.cisoFlush()
	case variantWBFS:
		return nil // WBFS index table is written eagerly on WriteLBA
	default:
		return r.file.Flush()
	}
}

// Close releases the reader's reference to the backing file.
func (r *Reader) Close() error {
	return r.file.Unref()
}

// LBAAdjust shifts the reader's addressable window by delta LBAs. Used
// after prepending an SDK header so subsequent writes land past it.
func (r *Reader) LBAAdjust(delta int32) {
	r.lbaAdjustImpl(delta)
}

// readZeroPadded fills dst from f, zeroing whatever lies past the physical
// end of the file: an allocated CISO/WBFS block whose tail was never
// written still reads as zeros.
func readZeroPadded(f File, dst []byte) error {
	n, err := io.ReadFull(f, dst)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
		return nil
	}
	return err
}

type errorString string

func (e errorString) Error() string { return string(e) }

var errOutOfRange error = errorString("lba range out of bounds")
