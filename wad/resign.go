package wad

import (
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/gcwii/rvth/wii"
)

// DefaultRecryptKey is what Resign uses when the caller passes
// wii.CryptoUnknown: an unspecified key always means "make this
// installable on debug/devkit consoles".
const DefaultRecryptKey = wii.CryptoDebug

// Resign re-signs the WAD at srcPath into destPath under to's crypto
// domain (or DefaultRecryptKey if to is wii.CryptoUnknown): the title key
// is rewrapped, issuers and common_key_index are
// rewritten, ticket and TMD are re-signed (really or fakesigned), and the
// content data is carried through byte-for-byte, since recrypting only
// ever changes how the title key is wrapped, never the content
// ciphertext itself. The destination is always written in the standard
// 64-byte-aligned layout, even if the source was an early devkit WAD.
func Resign(fs afero.Fs, srcPath, destPath string, to wii.CryptoType) (*Info, error) {
	if to == wii.CryptoUnknown {
		to = DefaultRecryptKey
	}

	src, err := fs.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	head := make([]byte, HeaderSize)
	if _, err := io.ReadFull(src, head); err != nil {
		return nil, fmt.Errorf("wad: reading header: %w", err)
	}
	layout, err := Identify(head)
	if err != nil {
		return nil, err
	}

	certChain := make([]byte, layout.CertChainSize)
	if err := readAt(src, int64(layout.CertChainOffset), certChain); err != nil {
		return nil, fmt.Errorf("wad: reading cert chain: %w", err)
	}
	crl := make([]byte, layout.CRLSize)
	if err := readAt(src, int64(layout.CRLOffset), crl); err != nil {
		return nil, fmt.Errorf("wad: reading CRL: %w", err)
	}

	ticketBuf := make([]byte, layout.TicketSize)
	if err := readAt(src, int64(layout.TicketOffset), ticketBuf); err != nil {
		return nil, fmt.Errorf("wad: reading ticket: %w", err)
	}
	ticket, err := wii.DecodeTicket(ticketBuf)
	if err != nil {
		return nil, err
	}

	tmdBuf := make([]byte, layout.TMDSize)
	if err := readAt(src, int64(layout.TMDOffset), tmdBuf); err != nil {
		return nil, fmt.Errorf("wad: reading TMD: %w", err)
	}
	tmd, err := wii.DecodeTMD(tmdBuf)
	if err != nil {
		return nil, err
	}

	footer := make([]byte, layout.FooterSize)
	if err := readAt(src, int64(layout.FooterOffset), footer); err != nil {
		return nil, fmt.Errorf("wad: reading footer: %w", err)
	}

	from := wii.CryptoTypeFromIssuer(ticket.Issuer, ticket.CommonKeyIndex)
	sigStatusTicket, err := wii.RecryptTicket(ticket, from, to)
	if err != nil {
		return nil, err
	}
	sigStatusTMD, err := wii.RecryptTMD(tmd, to)
	if err != nil {
		return nil, err
	}

	out := &Layout{
		Type:          TypeInstallable,
		CertChainSize: uint32(len(certChain)),
		CRLSize:       uint32(len(crl)),
		TicketSize:    uint32(len(ticket.Raw)),
		TMDSize:       uint32(len(tmd.Raw)),
		DataSize:      layout.DataSize,
		FooterSize:    uint32(len(footer)),
	}
	out.computeStandardOffsets()

	dest, err := fs.Create(destPath)
	if err != nil {
		return nil, err
	}
	defer dest.Close()

	if err := writeSection(dest, 0, out.Encode()); err != nil {
		return nil, err
	}
	if err := writeSection(dest, int64(out.CertChainOffset), certChain); err != nil {
		return nil, err
	}
	if err := writeSection(dest, int64(out.CRLOffset), crl); err != nil {
		return nil, err
	}
	if err := writeSection(dest, int64(out.TicketOffset), ticket.Raw); err != nil {
		return nil, err
	}
	if err := writeSection(dest, int64(out.TMDOffset), tmd.Raw); err != nil {
		return nil, err
	}
	if err := copySection(dest, int64(out.DataOffset), src, int64(layout.DataOffset), int64(layout.DataSize)); err != nil {
		return nil, err
	}
	if err := writeSection(dest, int64(out.FooterOffset), footer); err != nil {
		return nil, err
	}
	if err := dest.Truncate(int64(out.TotalSize)); err != nil {
		return nil, err
	}

	return &Info{
		Layout:          out,
		TitleID:         ticket.TitleID,
		GameID:          gameIDFromTitleID(ticket.TitleID),
		GroupID:         tmd.GroupID,
		Region:          tmd.Region,
		CryptoType:      to,
		SigStatusTicket: sigStatusTicket,
		SigStatusTMD:    sigStatusTMD,
	}, nil
}

func writeSection(dest afero.File, offset int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := dest.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := dest.Write(buf)
	return err
}

func copySection(dest afero.File, destOff int64, src afero.File, srcOff, n int64) error {
	if n == 0 {
		return nil
	}
	if _, err := src.Seek(srcOff, io.SeekStart); err != nil {
		return err
	}
	if _, err := dest.Seek(destOff, io.SeekStart); err != nil {
		return err
	}
	_, err := io.CopyN(dest, src, n)
	return err
}
