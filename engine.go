package rvth

import (
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
)

// Engine owns a backing file's bank table (or, for a standalone disc image,
// a single synthetic bank) plus one lazily-opened Reader per bank. The
// Engine exclusively owns entries and the underlying file handle, which is
// shared only with readers via refcount; it is not reentrant and not meant
// to be used from more than one goroutine.
type Engine struct {
	fs        afero.Fs
	path      string
	file      File
	writable  bool
	isHDD     bool
	bankCount uint32
	entries   []*BankEntry
}

// Open opens path as either an RVT-H HDD image/device or a standalone disc
// image. A zero-length file fails with a SystemError; a
// file no larger than two banks is treated as a standalone image.
func Open(fs afero.Fs, path string) (*Engine, error) {
	file, err := OpenFile(fs, path, false)
	if err != nil {
		return nil, err
	}

	size, err := file.Size()
	if err != nil {
		_ = file.Unref()
		return nil, err
	}
	if size == 0 {
		_ = file.Unref()
		return nil, sysErr("open", io.ErrUnexpectedEOF)
	}

	eng := &Engine{fs: fs, path: path, file: file}

	if size <= 2*lbaToBytes(nhcdBankSizeLBA) {
		if err := eng.openSingleImage(); err != nil {
			_ = file.Unref()
			return nil, err
		}
		return eng, nil
	}

	if err := eng.openHDD(); err != nil {
		_ = file.Unref()
		return nil, err
	}
	return eng, nil
}

func (eng *Engine) openSingleImage() error {
	reader, err := OpenReader(eng.file.Ref(), 0, 0)
	if err != nil {
		return err
	}

	head := make([]byte, LBASize)
	if _, err := reader.ReadLBA(head, 0, 1); err != nil {
		reader.Close()
		return err
	}

	typ, hdr := identifyDiscHeader(head)
	if typ == BankWiiSL && reader.LBALen() > NHCDBankWiiSLSizeRVTRLBA {
		typ = BankWiiDL
	}

	entry := &BankEntry{
		Index:         0,
		Type:          typ,
		LBAStart:      reader.LBAStart(),
		LBALen:        reader.LBALen(),
		TimestampUnix: -1,
		reader:        reader,
	}
	if typ != BankEmpty {
		entry.DiscHeader = hdr
		entry.GameName = hdr.GameTitle
		entry.RegionCode = RegionFromDiscID(hdr.DiscID)
		refreshCryptoInfo(entry)
	}

	eng.isHDD = false
	eng.bankCount = 1
	eng.entries = []*BankEntry{entry}
	return nil
}

func (eng *Engine) openHDD() error {
	hdr, err := loadNHCDHeader(eng.file)
	if err != nil {
		return err
	}

	eng.isHDD = true
	eng.bankCount = hdr.BankCount
	eng.entries = make([]*BankEntry, hdr.BankCount)

	for i := uint32(0); i < hdr.BankCount; i++ {
		if i > 0 && eng.entries[i-1].Type == BankWiiDL {
			eng.entries[i] = &BankEntry{Index: i, Type: BankWiiDLBank2, IsDeleted: eng.entries[i-1].IsDeleted, TimestampUnix: -1}
			continue
		}

		raw, err := loadNHCDEntry(eng.file, i)
		if err != nil {
			return err
		}

		typ := nhcdTypeToBankType(raw.Type)

		lbaStart, lbaLen := raw.LBAStart, raw.LBALen
		if typ == BankUnknown {
			lbaStart, lbaLen = 0, 0
		}
		if lbaStart == 0 || lbaLen == 0 {
			lbaStart = bankStartLBA(i, hdr.BankCount)
			lbaLen = bankDefaultLen(i, hdr.BankCount)
		}

		entry := &BankEntry{
			Index:         i,
			Type:          typ,
			IsDeleted:     raw.IsDeleted,
			LBAStart:      lbaStart,
			LBALen:        lbaLen,
			TimestampUnix: raw.Timestamp,
			GameName:      raw.GameName,
		}
		eng.entries[i] = entry

		if typ == BankGCN || typ == BankWiiSL || typ == BankWiiDL {
			if err := eng.attachReader(entry); err != nil {
				return err
			}
		}
	}

	return nil
}

// attachReader opens (or reopens) entry's block reader over its LBA
// window and refreshes its cached disc header / region / DL promotion.
func (eng *Engine) attachReader(entry *BankEntry) error {
	r, err := OpenReader(eng.file.Ref(), entry.LBAStart, entry.LBALen)
	if err != nil {
		return err
	}
	entry.reader = r

	head := make([]byte, LBASize)
	if _, err := r.ReadLBA(head, 0, 1); err != nil {
		return err
	}
	typ, hdr := identifyDiscHeader(head)
	if typ == BankWiiSL && entry.LBALen > NHCDBankWiiSLSizeRVTRLBA {
		typ = BankWiiDL
	}
	if typ != BankEmpty {
		entry.Type = typ
		entry.DiscHeader = hdr
		if entry.GameName == "" {
			entry.GameName = hdr.GameTitle
		}
		entry.RegionCode = RegionFromDiscID(hdr.DiscID)
		refreshCryptoInfo(entry)
	}
	return nil
}

// Close releases every entry's reader, then the main file handle. Errors
// from multiple readers are aggregated.
func (eng *Engine) Close() error {
	var err error
	for _, e := range eng.entries {
		if e.reader != nil {
			if cerr := e.reader.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
			e.reader = nil
		}
	}
	if cerr := eng.file.Unref(); cerr != nil {
		err = multierror.Append(err, cerr)
	}
	return err
}

// IsHDD reports whether this Engine wraps a full RVT-H bank table, as
// opposed to a standalone disc image.
func (eng *Engine) IsHDD() bool { return eng.isHDD }

// BankCount returns the number of bank slots.
func (eng *Engine) BankCount() uint32 { return eng.bankCount }

// Bank returns bank entry i, or ErrBankUnknown-free ERANGE-equivalent error
// if out of bounds.
func (eng *Engine) Bank(i uint32) (*BankEntry, error) {
	if i >= eng.bankCount {
		return nil, sysErr("bank", errOutOfRange)
	}
	return eng.entries[i], nil
}

// MakeWritable promotes a read-only Engine to read-write, reopening the
// underlying handle if needed. Every mutating operation calls this first.
// Each attached reader is rewired onto the new handle so subsequent
// WriteLBA calls don't land on the stale read-only one.
func (eng *Engine) MakeWritable() error {
	if eng.writable {
		return nil
	}
	file, err := OpenFile(eng.fs, eng.path, true)
	if err != nil {
		return err
	}
	for _, e := range eng.entries {
		if e.reader == nil {
			continue
		}
		old := e.reader.file
		e.reader.file = file.Ref()
		if err := old.Unref(); err != nil {
			return err
		}
	}
	if err := eng.file.Unref(); err != nil {
		_ = file.Unref()
		return err
	}
	eng.file = file
	eng.writable = true
	return nil
}

// DeleteBank marks bank i (and, for a dual-layer pair, both banks) deleted.
// Only banks holding real disc data can be deleted.
func (eng *Engine) DeleteBank(i uint32) error {
	entry, err := eng.Bank(i)
	if err != nil {
		return err
	}
	if entry.Type != BankGCN && entry.Type != BankWiiSL && entry.Type != BankWiiDL {
		return ErrBankUnknown
	}
	if entry.IsDeleted {
		return ErrBankIsDeleted
	}
	if err := eng.setDeleted(i, true); err != nil {
		return err
	}
	return nil
}

// UndeleteBank clears the deleted flag on bank i.
func (eng *Engine) UndeleteBank(i uint32) error {
	entry, err := eng.Bank(i)
	if err != nil {
		return err
	}
	if !entry.IsDeleted {
		return ErrBankNotDeleted
	}
	return eng.setDeleted(i, false)
}

func (eng *Engine) setDeleted(i uint32, deleted bool) error {
	entry := eng.entries[i]
	entry.IsDeleted = deleted
	if entry.Type == BankWiiDL && i+1 < eng.bankCount {
		eng.entries[i+1].IsDeleted = deleted
	}

	if !eng.isHDD {
		return nil
	}
	if err := eng.MakeWritable(); err != nil {
		return err
	}
	if err := persistNHCDEntry(eng.file, i, entry); err != nil {
		return err
	}
	if entry.Type == BankWiiDL && i+1 < eng.bankCount {
		if err := persistNHCDEntry(eng.file, i+1, eng.entries[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func now() int64 { return time.Now().Unix() }
