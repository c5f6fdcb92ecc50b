package wii

// CryptoType is the closed set of encryption domains a disc or WAD title
// can be encrypted under.
type CryptoType int

const (
	CryptoUnknown CryptoType = iota
	CryptoNone               // unencrypted
	CryptoDebug
	CryptoRetail
	CryptoKorean
	CryptoVWii
	CryptoDebugRealsigned
)

func (c CryptoType) String() string {
	switch c {
	case CryptoNone:
		return "None"
	case CryptoDebug:
		return "Debug"
	case CryptoRetail:
		return "Retail"
	case CryptoKorean:
		return "Korean"
	case CryptoVWii:
		return "vWii"
	case CryptoDebugRealsigned:
		return "Debug (realsigned)"
	default:
		return "Unknown"
	}
}

// SigType distinguishes a ticket/TMD signature's declared algorithm. Every
// real signature this module handles is RSA-2048/SHA-1.
type SigType int

const (
	SigTypeUnknown SigType = iota
	SigTypeRSA2048SHA1
)

// SigStatus is the outcome of verifying a ticket or TMD signature.
// Verification failure is a status, not an operation failure: callers see
// Invalid/Fakesigned and the operation continues.
type SigStatus int

const (
	SigStatusUnknown SigStatus = iota
	SigStatusOK
	SigStatusInvalid
	SigStatusFakesigned
)

func (s SigStatus) String() string {
	switch s {
	case SigStatusOK:
		return "OK"
	case SigStatusFakesigned:
		return "Fakesigned"
	case SigStatusInvalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// RecryptState tracks a single partition's progress through the recrypt
// pipeline. A failure between steps leaves the partition
// on disk in whichever state it last reached; the operation is not
// transactional.
type RecryptState int

const (
	RecryptLoaded RecryptState = iota
	RecryptKeySwapped
	RecryptSignaturesRegenerated
	RecryptPersisted
)
