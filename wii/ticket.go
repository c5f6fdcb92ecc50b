package wii

import (
	"encoding/binary"
	"fmt"
)

// Ticket offsets: signature block(0x140), issuer(0x40), ECDH key(0x3C),
// padding, encrypted title key(0x10), reserved, title ID(0x08), then the
// common_key_index byte. These are the on-disk offsets used throughout the
// Wii ecosystem.
const (
	TicketSize = 0x2A4

	ticketSigOff          = 0x000
	ticketSigLen          = 0x140
	ticketIssuerOff       = 0x140
	ticketIssuerLen       = 0x40
	ticketECDHOff         = 0x180
	ticketECDHLen         = 0x3C
	ticketEncTitleKeyOff  = 0x1BF
	ticketEncTitleKeyLen  = 0x10
	ticketTitleIDOff      = 0x1DC
	ticketCommonKeyIdxOff = 0x1F1
	ticketPaddingFixedOff = 0x1F2 // fixed two-byte padding field
)

// Ticket is the decoded form of a 0x2A4-byte ETicket. Raw retains the
// original bytes so Encode can round-trip fields this module does not
// model explicitly (reserved regions, limits, etc.).
type Ticket struct {
	Raw []byte

	Issuer         Issuer
	EncTitleKey    []byte
	TitleID        uint64
	CommonKeyIndex byte
}

// DecodeTicket parses a raw 0x2A4-byte ticket buffer.
func DecodeTicket(buf []byte) (*Ticket, error) {
	if len(buf) < TicketSize {
		return nil, fmt.Errorf("wii: ticket buffer too short (%d < %d)", len(buf), TicketSize)
	}
	t := &Ticket{
		Raw:            append([]byte(nil), buf[:TicketSize]...),
		Issuer:         Issuer(trimNulString(buf[ticketIssuerOff : ticketIssuerOff+ticketIssuerLen])),
		EncTitleKey:    append([]byte(nil), buf[ticketEncTitleKeyOff:ticketEncTitleKeyOff+ticketEncTitleKeyLen]...),
		TitleID:        binary.BigEndian.Uint64(buf[ticketTitleIDOff : ticketTitleIDOff+8]),
		CommonKeyIndex: buf[ticketCommonKeyIdxOff],
	}
	return t, nil
}

// Encode serializes t back to a 0x2A4-byte buffer, starting from Raw so
// any field this struct doesn't model passes through unmodified.
func (t *Ticket) Encode() []byte {
	out := append([]byte(nil), t.Raw...)
	copy(out[ticketIssuerOff:ticketIssuerOff+ticketIssuerLen], padNulString(string(t.Issuer), ticketIssuerLen))
	copy(out[ticketEncTitleKeyOff:ticketEncTitleKeyOff+ticketEncTitleKeyLen], t.EncTitleKey)
	binary.BigEndian.PutUint64(out[ticketTitleIDOff:ticketTitleIDOff+8], t.TitleID)
	out[ticketCommonKeyIdxOff] = t.CommonKeyIndex
	return out
}

// Signature returns the ticket's 0x140-byte RSA signature block.
func (t *Ticket) Signature() []byte { return t.Raw[ticketSigOff : ticketSigOff+ticketSigLen] }

// SetSignature overwrites the ticket's signature block in Raw.
func (t *Ticket) SetSignature(sig []byte) {
	copy(t.Raw[ticketSigOff:ticketSigOff+ticketSigLen], sig)
}

// SignedPayload returns the region of the ticket that is hashed for
// signing/verification: everything after the signature block.
func (t *Ticket) SignedPayload() []byte { return t.Raw[ticketSigLen:] }

func trimNulString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func padNulString(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}
