package rvth

import "fmt"

// EngineError is a semantic failure produced by this package, as opposed
// to a SystemError bubbling up from the filesystem. Values and order are
// part of the interface: external tooling matches on the numeric value at
// the error-string boundary, so new codes only ever get appended.
type EngineError int

const (
	ErrSuccess EngineError = iota
	ErrUnrecognizedFile
	ErrNHCDTableMagic
	ErrNoBanks
	ErrBankUnknown
	ErrBankEmpty
	ErrBankDL2
	ErrNotADevice
	ErrBankIsDeleted
	ErrBankNotDeleted
	ErrNotHDDImage
	ErrNoGamePartition
	ErrInvalidBankCount
	ErrIsHDDImage
	ErrIsRetailCrypto
	ErrImageTooBig
	ErrBankNotEmptyOrDeleted
	ErrNotWiiImage
	ErrIsUnencrypted
	ErrIsEncrypted
	ErrPartitionTableCorrupted
	ErrPartitionHeaderCorrupted
	ErrIssuerUnknown
	ErrImportDLExtNoBank1
	ErrImportDLLastBank
	ErrBank2DLNotEmptyOrDeleted
	ErrImportDLNotContiguous // reserved for interface stability; never emitted
	ErrNDEVGCNNotSupported
)

var engineErrorStrings = [...]string{
	"success",
	"unrecognized file format",
	"bank table magic is incorrect",
	"no banks found",
	"bank status is unknown",
	"bank is empty",
	"bank is second bank of a dual-layer image",
	"operation can only be performed on a device, not an image file",
	"bank is deleted",
	"bank is not deleted",
	"rvth object is not an HDD image",
	"Wii game partition not found",
	"bank count field is invalid",
	"operation cannot be performed on devices or HDD images",
	"cannot import a retail-encrypted Wii game",
	"source image does not fit in an RVT-H bank",
	"destination bank is not empty or deleted",
	"Wii-specific operation was requested on a non-Wii image",
	"image is unencrypted",
	"image is encrypted",
	"Wii partition table is corrupted",
	"at least one Wii partition header is corrupted",
	"certificate has an unknown issuer",
	"extended bank table: cannot use bank 1 for a dual-layer image",
	"cannot use the last bank for a dual-layer image",
	"the second bank for the dual-layer image is not empty or deleted",
	"the two banks are not contiguous",
	"NDEV headers for GCN are currently unsupported",
}

func (e EngineError) Error() string {
	if e < 0 || int(e) >= len(engineErrorStrings) {
		return fmt.Sprintf("rvth: unknown error %d", int(e))
	}
	return engineErrorStrings[e]
}

// SystemError wraps a POSIX-flavored failure (short read, seek failure,
// missing file, ...) so it can be distinguished from an EngineError without
// losing the cause. When both an engine decision and a
// system failure are relevant the engine code is what the caller sees; the
// system error is carried out-of-band via errors.Unwrap.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *SystemError) Unwrap() error { return e.Err }

func sysErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SystemError{Op: op, Err: err}
}

// ErrCanceled is returned when a progress callback asks that an in-flight
// extract/import/recrypt be stopped. There is no cleanup of
// a partially written destination; callers must decide whether to delete it.
var ErrCanceled = fmt.Errorf("rvth: operation canceled")
