package wii

import (
	"encoding/binary"
	"fmt"
)

// A 0x140-byte signature block is a u32 signature-type word, the 0x100-byte
// RSA-2048 signature, and zero padding.
const (
	sigTypeRSA2048 uint32 = 0x00010001
	sigRSALen             = 0x100
)

// RecryptTicket swaps ticket's title key from one crypto domain to another
// and rewrites its issuer and common_key_index, then signs it (real RSA if
// a key is registered for the new issuer, fakesigned otherwise). It
// returns the signature status actually achieved.
func RecryptTicket(t *Ticket, from, to CryptoType) (SigStatus, error) {
	newTitleKey, err := RecryptTitleKey(t.EncTitleKey, t.TitleID, from, to)
	if err != nil {
		return SigStatusInvalid, err
	}
	t.EncTitleKey = newTitleKey
	if err := SetTitleKeyDomain(t, to); err != nil {
		return SigStatusInvalid, err
	}
	return SignTicket(t)
}

// SetTitleKeyDomain rewrites a ticket's issuer and common_key_index to
// match domain without touching EncTitleKey, used when the caller has
// already produced the wrapped title key itself (extractCryptCopy's
// unencrypted-source path, which has no prior common-key domain to
// decrypt from).
func SetTitleKeyDomain(t *Ticket, domain CryptoType) error {
	issuer, err := TicketIssuer(domain)
	if err != nil {
		return err
	}
	t.Issuer = issuer

	idx, err := CommonKeyIndexForDomain(domain)
	if err != nil {
		return err
	}
	t.CommonKeyIndex = idx
	return nil
}

// SignTicket (re-)signs t under its current Issuer, real RSA if a key is
// registered for that issuer, fakesigned otherwise.
func SignTicket(t *Ticket) (SigStatus, error) {
	t.Raw = t.Encode()
	return signPayload(t.Issuer, t.Raw, ticketSigLen, ticketSigOff, ticketPaddingFixedOff)
}

// RecryptTMD rewrites a TMD's issuer to match the new crypto domain and
// re-signs it.
func RecryptTMD(t *TMD, to CryptoType) (SigStatus, error) {
	issuer, err := TMDIssuer(to)
	if err != nil {
		return SigStatusInvalid, err
	}
	t.Issuer = issuer
	return SignTMD(t)
}

// SignTMD (re-)signs t under its current Issuer, real RSA if a key is
// registered for that issuer, fakesigned otherwise. Exposed separately
// from RecryptTMD so callers that only need to re-sign after a content
// hash change (extractCryptCopy) don't have to fabricate a "to" domain.
func SignTMD(t *TMD) (SigStatus, error) {
	t.Raw = t.Encode()
	return signPayload(t.Issuer, t.Raw, tmdSigLen, tmdSigOff, tmdPaddingOff)
}

// signPayload signs buf's trailing (post-signature-block) region under
// issuer's registered key if one exists, otherwise fakesigns it by
// brute-forcing a two-byte unused padding field (counterOff, an offset
// into buf) until the payload's SHA-1 starts with 0x00.
func signPayload(issuer Issuer, buf []byte, sigLen, sigOff, counterOff int) (SigStatus, error) {
	if len(buf) < sigOff+sigLen+2 || counterOff < sigOff+sigLen {
		return SigStatusInvalid, fmt.Errorf("wii: payload too short to sign")
	}
	key := lookupIssuerKey(issuer)
	if key != nil {
		sig, err := SignRSA2048SHA1(key, buf[sigOff+sigLen:])
		if err != nil {
			return SigStatusInvalid, err
		}
		for i := sigOff; i < sigOff+sigLen; i++ {
			buf[i] = 0
		}
		binary.BigEndian.PutUint32(buf[sigOff:], sigTypeRSA2048)
		copy(buf[sigOff+4:sigOff+4+sigRSALen], sig)
		return SigStatusOK, nil
	}

	// Fakesign: zero the signature block, then brute-force the padding
	// field until the SHA-1 of the signed payload starts with 0x00.
	for i := sigOff; i < sigOff+sigLen; i++ {
		buf[i] = 0
	}
	if _, err := FakesignBruteForce(buf[sigOff+sigLen:], counterOff-(sigOff+sigLen)); err != nil {
		return SigStatusInvalid, err
	}
	return SigStatusFakesigned, nil
}

// VerifyTicketSignature checks a ticket's signature against a registered
// public key (via its issuer's private key counterpart) or, failing that,
// the fakesign acceptance rule. It never returns an error for a bad
// signature: that is reported as a SigStatus.
func VerifyTicketSignature(t *Ticket) SigStatus {
	return verifySignature(t.Issuer, t.Raw, ticketSigOff, ticketSigLen)
}

// VerifyTMDSignature is the TMD counterpart of VerifyTicketSignature.
func VerifyTMDSignature(t *TMD) SigStatus {
	return verifySignature(t.Issuer, t.Raw, tmdSigOff, tmdSigLen)
}

func verifySignature(issuer Issuer, buf []byte, sigOff, sigLen int) SigStatus {
	if len(buf) < sigOff+sigLen {
		return SigStatusInvalid
	}
	key := lookupIssuerKey(issuer)
	if key != nil {
		sig := buf[sigOff+4 : sigOff+4+sigRSALen]
		if err := VerifyRSA2048SHA1(&key.PublicKey, buf[sigOff+sigLen:], sig); err == nil {
			return SigStatusOK
		}
	}
	allZero := true
	for _, b := range buf[sigOff : sigOff+sigLen] {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero && IsFakesigned(buf[sigOff+sigLen:]) {
		return SigStatusFakesigned
	}
	return SigStatusInvalid
}
