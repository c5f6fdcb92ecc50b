package wii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/connesc/cipherio"
)

// Common AES-128 keys, one per crypto domain. The retail and
// Korean keys are the values published widely for homebrew development; the
// debug key is the devkit common key. vWii uses its own common key on the
// Wii U's Wii-mode IOS.
var commonKeys = map[CryptoType][]byte{
	CryptoRetail: {0xeb, 0xe4, 0x2a, 0x22, 0x5e, 0x85, 0x93, 0xe4, 0x48, 0xd9, 0xc5, 0x45, 0x73, 0x81, 0xaa, 0xf7},
	CryptoKorean: {0x63, 0xb8, 0x2b, 0xb4, 0xf4, 0x61, 0x4e, 0x2e, 0x13, 0xf2, 0xfe, 0xfb, 0xba, 0x4c, 0x9b, 0x7e},
	CryptoVWii:   {0x30, 0xbf, 0xc7, 0x6e, 0x7c, 0x19, 0xaf, 0xbb, 0x23, 0x16, 0x33, 0x30, 0xce, 0xd7, 0xc2, 0x8d},
	CryptoDebug:  {0xa1, 0x60, 0x4a, 0x6a, 0x71, 0x23, 0xb5, 0x29, 0xae, 0x8b, 0xec, 0x32, 0xc8, 0x16, 0xfc, 0xaa},
}

// CommonKey looks up the AES-128 common key for a crypto domain. It returns
// an error for CryptoNone/CryptoUnknown/CryptoDebugRealsigned, none of which
// have a key of their own (realsigned debug titles use the debug key).
func CommonKey(ct CryptoType) ([]byte, error) {
	if ct == CryptoDebugRealsigned {
		ct = CryptoDebug
	}
	key, ok := commonKeys[ct]
	if !ok {
		return nil, fmt.Errorf("wii: no common key for crypto type %v", ct)
	}
	return key, nil
}

// titleKeyIV builds the CBC IV used to wrap/unwrap a title key: the 8-byte
// title ID followed by 8 zero bytes.
func titleKeyIV(titleID uint64) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[:8], titleID)
	return iv
}

// DecryptTitleKey recovers the per-title AES key from a ticket's encrypted
// title key field using the named common key domain.
func DecryptTitleKey(encrypted []byte, titleID uint64, domain CryptoType) ([]byte, error) {
	key, err := CommonKey(domain)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, titleKeyIV(titleID)).CryptBlocks(out, encrypted)
	return out, nil
}

// EncryptTitleKey wraps a raw per-title AES key for storage in a ticket
// under the named common key domain.
func EncryptTitleKey(titleKey []byte, titleID uint64, domain CryptoType) ([]byte, error) {
	key, err := CommonKey(domain)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(titleKey))
	cipher.NewCBCEncrypter(block, titleKeyIV(titleID)).CryptBlocks(out, titleKey)
	return out, nil
}

// RecryptTitleKey swaps a ticket's title key from one common key domain to
// another without ever touching the partition's bulk data ciphertext: the
// per-sector data key derives from the title key itself, which is
// unchanged, so the ciphertext stays valid.
func RecryptTitleKey(encrypted []byte, titleID uint64, from, to CryptoType) ([]byte, error) {
	titleKey, err := DecryptTitleKey(encrypted, titleID, from)
	if err != nil {
		return nil, err
	}
	return EncryptTitleKey(titleKey, titleID, to)
}

// DecryptContentCBC decrypts one WAD content in place, keyed by the
// decrypted title key with IV = content index (big-endian u16) padded with
// 14 zero bytes.
func DecryptContentCBC(titleKey []byte, contentIndex uint16, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(titleKey)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint16(iv[:2], contentIndex)
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// EncryptContentCBC is the inverse of DecryptContentCBC: it encrypts one WAD
// content with the same title key and content-index IV.
func EncryptContentCBC(titleKey []byte, contentIndex uint16, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(titleKey)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint16(iv[:2], contentIndex)
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

// NewHashTreeCipherReader wraps r with a streaming AES-CBC decrypter keyed
// by the partition title key, used when the caller wants to stream a
// partition's hash/data regions instead of holding them entirely in memory.
// The WAD content verifier uses it so a content's ciphertext is never held
// in memory all at once.
func NewHashTreeCipherReader(titleKey, iv []byte, r io.Reader) (io.Reader, error) {
	block, err := aes.NewCipher(titleKey)
	if err != nil {
		return nil, err
	}
	return cipherio.NewBlockReader(r, cipher.NewCBCDecrypter(block, iv)), nil
}

// NewHashTreeCipherWriter is the write-side counterpart: it wraps w with a
// streaming AES-CBC encrypter keyed by the title key. The
// unencrypted-to-encrypted extract path does not use it; it encrypts each
// group with EncryptGroup.
func NewHashTreeCipherWriter(titleKey, iv []byte, w io.Writer) (io.WriteCloser, error) {
	block, err := aes.NewCipher(titleKey)
	if err != nil {
		return nil, err
	}
	return cipherio.NewBlockWriter(w, cipher.NewCBCEncrypter(block, iv)), nil
}

// ConstantTimeEqual reports whether two byte slices are equal, comparing in
// constant time so a signature-verification failure can't leak timing
// information's constant-time comparison requirement.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// sha1Sum is a small convenience wrapper kept local to this package so
// callers never need to import crypto/sha1 directly.
func sha1Sum(data []byte) [sha1.Size]byte {
	return sha1.Sum(data)
}

// FakesignBruteForce mutates 2 bytes of payload at counterOffset (an
// unused padding field) until the SHA-1 of the full payload begins with
// 0x00, the acceptance criterion debug firmwares apply. It returns the
// winning 16-bit value. The signature block itself must already be zeroed
// by the caller before this is invoked.
func FakesignBruteForce(payload []byte, counterOffset int) (uint16, error) {
	if counterOffset < 0 || counterOffset+2 > len(payload) {
		return 0, fmt.Errorf("wii: fakesign counter offset out of range")
	}
	for v := 0; v <= 0xFFFF; v++ {
		binary.BigEndian.PutUint16(payload[counterOffset:counterOffset+2], uint16(v))
		sum := sha1Sum(payload)
		if sum[0] == 0x00 {
			return uint16(v), nil
		}
	}
	return 0, fmt.Errorf("wii: fakesign brute force exhausted without a match")
}

// IsFakesigned reports whether payload's SHA-1 begins with 0x00, the
// acceptance criterion debug IOS uses in place of real RSA verification.
func IsFakesigned(payload []byte) bool {
	sum := sha1Sum(payload)
	return sum[0] == 0x00
}
