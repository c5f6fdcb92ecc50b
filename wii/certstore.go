package wii

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"fmt"
)

// Issuer is a certificate-chain issuer string as stored in a ticket or TMD,
// e.g. "Root-CA00000001-XS00000003". The issuer encodes both the
// certificate authority and the signer, and changes whenever the crypto
// domain changes.
type Issuer string

// vWii titles ride the retail certificate chain; only their
// common_key_index distinguishes them (0=Retail, 1=Korean, 2=vWii). Debug
// titles carry their own issuer chain.
const (
	IssuerRetailTicket Issuer = "Root-CA00000001-XS00000003"
	IssuerRetailTMD    Issuer = "Root-CA00000001-CP00000004"
	IssuerKoreanTicket Issuer = "Root-CA00000004-XS00000006"
	IssuerKoreanTMD    Issuer = "Root-CA00000004-CP00000007"
	IssuerDebugTicket  Issuer = "Root-CA00000002-XS00000006"
	IssuerDebugTMD     Issuer = "Root-CA00000002-CP00000007"
)

// TicketIssuer returns the canonical ticket issuer string for a crypto
// domain.
func TicketIssuer(ct CryptoType) (Issuer, error) {
	switch ct {
	case CryptoRetail, CryptoVWii:
		return IssuerRetailTicket, nil
	case CryptoKorean:
		return IssuerKoreanTicket, nil
	case CryptoDebug, CryptoDebugRealsigned:
		return IssuerDebugTicket, nil
	default:
		return "", fmt.Errorf("wii: no ticket issuer for crypto type %v", ct)
	}
}

// TMDIssuer returns the canonical TMD issuer string for a crypto domain.
func TMDIssuer(ct CryptoType) (Issuer, error) {
	switch ct {
	case CryptoRetail, CryptoVWii:
		return IssuerRetailTMD, nil
	case CryptoKorean:
		return IssuerKoreanTMD, nil
	case CryptoDebug, CryptoDebugRealsigned:
		return IssuerDebugTMD, nil
	default:
		return "", fmt.Errorf("wii: no TMD issuer for crypto type %v", ct)
	}
}

// CommonKeyIndexForDomain is the on-disk common_key_index byte for a crypto
// domain: 0=Retail, 1=Korean, 2=vWii. Debug titles keep index 0.
func CommonKeyIndexForDomain(ct CryptoType) (byte, error) {
	switch ct {
	case CryptoRetail, CryptoDebug, CryptoDebugRealsigned:
		return 0, nil
	case CryptoKorean:
		return 1, nil
	case CryptoVWii:
		return 2, nil
	default:
		return 0, ErrIssuerUnknown
	}
}

// CryptoTypeFromIssuer is the inverse lookup used when a bank entry's
// crypto domain must be inferred from a ticket that was read off disk
// rather than chosen by the caller.
func CryptoTypeFromIssuer(issuer Issuer, commonKeyIndex byte) CryptoType {
	switch issuer {
	case IssuerRetailTicket:
		switch commonKeyIndex {
		case 1:
			return CryptoKorean
		case 2:
			return CryptoVWii
		default:
			return CryptoRetail
		}
	case IssuerKoreanTicket:
		return CryptoKorean
	case IssuerDebugTicket:
		return CryptoDebug
	default:
		return CryptoUnknown
	}
}

// ErrIssuerUnknown mirrors the root package's EngineError of the same
// name, kept as a local sentinel so this package has no dependency on the
// root package.
var ErrIssuerUnknown = fmt.Errorf("wii: certificate has an unknown issuer")

// certStore holds the private keys this module can sign with, one per
// issuer. Most installations will have none: real signing is optional,
// and fakesigning is the fallback.
type certStore struct {
	keys map[Issuer]*rsa.PrivateKey
}

var globalCertStore = &certStore{keys: map[Issuer]*rsa.PrivateKey{}}

// RegisterIssuerKey installs a private key this module may use to produce
// real RSA-2048-SHA1 signatures for the named issuer. Without a registered
// key, RecryptTicket/RecryptTMD fall back to fakesigning.
func RegisterIssuerKey(issuer Issuer, key *rsa.PrivateKey) {
	globalCertStore.keys[issuer] = key
}

// lookupIssuerKey returns the registered private key for issuer, or nil if
// none has been registered.
func lookupIssuerKey(issuer Issuer) *rsa.PrivateKey {
	return globalCertStore.keys[issuer]
}

// SignRSA2048SHA1 produces a PKCS#1 v1.5 RSA-2048/SHA-1 signature over
// payload using the given private key.
func SignRSA2048SHA1(key *rsa.PrivateKey, payload []byte) ([]byte, error) {
	sum := sha1.Sum(payload)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, sum[:])
}

// VerifyRSA2048SHA1 checks a PKCS#1 v1.5 RSA-2048/SHA-1 signature. It
// returns nil on success, an error otherwise; callers translate the result
// into a SigStatus rather than propagating the error.
func VerifyRSA2048SHA1(pub *rsa.PublicKey, payload, sig []byte) error {
	sum := sha1.Sum(payload)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA1, sum[:], sig)
}
