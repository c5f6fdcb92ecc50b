package wad

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/gcwii/rvth/wii"
)

// verifyChunkSize is the read buffer used when streaming a content
// through AES-CBC and SHA-1.
const verifyChunkSize = 1024 * 1024

// ContentResult is one content's TMD row plus its verification outcome
// (Verified/VerifyErr are only meaningful when Info ran with verify=true).
type ContentResult struct {
	Index     uint16
	ID        uint32
	Type      uint16
	Size      uint64
	Hash      [20]byte
	Verified  bool
	VerifyErr error
}

// Info is everything Info() reports about a WAD.
type Info struct {
	Layout *Layout

	TitleID   uint64
	GameID    string
	GroupID   uint16
	Region    uint16
	IOSVer    uint32
	HasIOSVer bool

	CryptoType      wii.CryptoType
	SigStatusTicket wii.SigStatus
	SigStatusTMD    wii.SigStatus

	Contents []ContentResult
}

// ReadInfo parses path's header, ticket, and TMD, and, when verify is true,
// streams every content through AES-CBC decryption to check its SHA-1
// against the TMD's recorded hash.
func ReadInfo(fs afero.Fs, path string, verify bool) (*Info, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, head); err != nil {
		return nil, fmt.Errorf("wad: reading header: %w", err)
	}
	layout, err := Identify(head)
	if err != nil {
		return nil, err
	}

	ticketBuf := make([]byte, layout.TicketSize)
	if err := readAt(f, int64(layout.TicketOffset), ticketBuf); err != nil {
		return nil, fmt.Errorf("wad: reading ticket: %w", err)
	}
	ticket, err := wii.DecodeTicket(ticketBuf)
	if err != nil {
		return nil, err
	}

	tmdBuf := make([]byte, layout.TMDSize)
	if err := readAt(f, int64(layout.TMDOffset), tmdBuf); err != nil {
		return nil, fmt.Errorf("wad: reading TMD: %w", err)
	}
	tmd, err := wii.DecodeTMD(tmdBuf)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Layout:          layout,
		TitleID:         ticket.TitleID,
		GameID:          gameIDFromTitleID(ticket.TitleID),
		GroupID:         tmd.GroupID,
		Region:          tmd.Region,
		CryptoType:      wii.CryptoTypeFromIssuer(ticket.Issuer, ticket.CommonKeyIndex),
		SigStatusTicket: wii.VerifyTicketSignature(ticket),
		SigStatusTMD:    wii.VerifyTMDSignature(tmd),
	}
	info.IOSVer, info.HasIOSVer = tmd.IOSVersion()

	info.Contents = make([]ContentResult, len(tmd.Contents))
	for i, c := range tmd.Contents {
		info.Contents[i] = ContentResult{Index: c.Index, ID: c.ID, Type: c.Type, Size: c.Size, Hash: c.Hash}
	}
	if !verify {
		return info, nil
	}

	titleKey, err := decryptTitleKeyWithFallback(ticket, info.CryptoType)
	if err != nil {
		return nil, err
	}

	contentOff := int64(layout.DataOffset)
	for i, c := range tmd.Contents {
		verr := verifyContent(f, contentOff, titleKey, c)
		info.Contents[i].VerifyErr = verr
		info.Contents[i].Verified = verr == nil
		contentOff += int64(alignContent(c.Size))
	}
	return info, nil
}

// decryptTitleKeyWithFallback recovers the per-title AES key using the
// domain inferred from the ticket's issuer, retrying under the Korean
// common key when that domain has no common key of its own (an
// unrecognized issuer infers CryptoUnknown). A title key unwrapped under
// the wrong common key is not detected here; it only shows up later as a
// content SHA-1 mismatch.
func decryptTitleKeyWithFallback(ticket *wii.Ticket, primary wii.CryptoType) ([]byte, error) {
	key, err := wii.DecryptTitleKey(ticket.EncTitleKey, ticket.TitleID, primary)
	if err == nil {
		return key, nil
	}
	if primary != wii.CryptoKorean {
		if key, kerr := wii.DecryptTitleKey(ticket.EncTitleKey, ticket.TitleID, wii.CryptoKorean); kerr == nil {
			return key, nil
		}
	}
	return nil, err
}

// verifyContent streams one content's ciphertext through AES-CBC
// decryption and SHA-1, comparing only the content's real (unpadded) byte
// count against its TMD hash. wii.NewHashTreeCipherReader keeps the
// ciphertext from ever being held in memory all at once.
func verifyContent(f afero.File, offset int64, titleKey []byte, c wii.ContentEntry) error {
	alignedSize := align16(c.Size)
	section := io.NewSectionReader(fileReaderAt{f}, offset, int64(alignedSize))

	iv := make([]byte, 16)
	binary.BigEndian.PutUint16(iv[:2], c.Index)
	cr, err := wii.NewHashTreeCipherReader(titleKey, iv, section)
	if err != nil {
		return err
	}

	h := sha1.New()
	remaining := c.Size
	buf := make([]byte, verifyChunkSize)
	for remaining > 0 {
		n := uint64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := io.ReadFull(cr, buf[:n])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return err
		}
		h.Write(buf[:read])
		remaining -= uint64(read)
		if uint64(read) < n {
			break
		}
	}

	got := h.Sum(nil)
	if !wii.ConstantTimeEqual(got, c.Hash[:]) {
		return fmt.Errorf("wad: content %d SHA-1 mismatch", c.Index)
	}
	return nil
}

func align16(n uint64) uint64 { return (n + 15) &^ 15 }

// alignContent is the stride between contents in the data section: each one
// is padded to a 64-byte boundary on disk.
func alignContent(n uint64) uint64 { return (n + sectionAlign - 1) &^ uint64(sectionAlign-1) }

// gameIDFromTitleID renders the low four bytes of a title ID as a game ID,
// but only when all four are alphanumeric; system titles pack binary values
// there instead.
func gameIDFromTitleID(titleID uint64) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(titleID))
	for _, c := range b {
		alnum := (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
		if !alnum {
			return ""
		}
	}
	return string(b)
}

func readAt(f afero.File, offset int64, buf []byte) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(f, buf)
	return err
}

// fileReaderAt adapts an afero.File (which may not implement io.ReaderAt
// directly on every backing Fs) to io.ReaderAt via Seek+Read, so
// io.SectionReader can be used without assuming concurrent access.
type fileReaderAt struct {
	f afero.File
}

func (r fileReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := r.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(r.f, p)
}
