package wii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"fmt"
)

// Wii partition hash-tree geometry: each 31 KiB of
// plaintext becomes one 32 KiB encrypted group once hashed. A group holds
// 31 1-KiB data clusters plus a 1-KiB hash region: the H0 table (one SHA-1
// per data cluster), the H1 table (one SHA-1 per sub-group of 8 H0s), and
// H2 (the SHA-1 of the packed H1 table).
const (
	hashClusterSize = 0x400
	hashH0Region    = 0x000 // 31 x 20 bytes, padded to 0x280
	hashH1Region    = 0x280 // 4 x 20 bytes, padded to 0x340
	hashH2Region    = 0x340 // 20 bytes, remainder of the region zeroed
	hashRegionSize  = 0x400

	dataClustersPerGroup = 31
	dataClusterSize      = hashClusterSize
	unencGroupBytes      = dataClustersPerGroup * dataClusterSize // 31 KiB
	encGroupBytes        = 32 * 1024                              // 32 KiB

	// H1 covers sub-groups of 8 H0 hashes; the last sub-group of a group
	// is short (31 = 3 x 8 + 7).
	subGroupSize = 8
	h1Count      = (dataClustersPerGroup + subGroupSize - 1) / subGroupSize
)

// HashTreeGroup is one decoded 32-KiB encrypted group: the hash tables
// packed into the hash region plus the 31 decrypted data clusters.
type HashTreeGroup struct {
	H0   [dataClustersPerGroup][sha1.Size]byte
	H1   [h1Count][sha1.Size]byte
	H2   [sha1.Size]byte
	Data [dataClustersPerGroup][dataClusterSize]byte
}

// BuildHashTreeGroup computes H0 for each of the 31 data clusters, H1 for
// each sub-group of 8 H0s, and H2 over the packed H1 table.
func BuildHashTreeGroup(plain []byte) (*HashTreeGroup, error) {
	if len(plain) != unencGroupBytes {
		return nil, fmt.Errorf("wii: unencrypted group must be exactly %d bytes, got %d", unencGroupBytes, len(plain))
	}
	g := &HashTreeGroup{}
	for i := 0; i < dataClustersPerGroup; i++ {
		copy(g.Data[i][:], plain[i*dataClusterSize:(i+1)*dataClusterSize])
		g.H0[i] = sha1.Sum(g.Data[i][:])
	}

	for s := 0; s < h1Count; s++ {
		lo := s * subGroupSize
		hi := lo + subGroupSize
		if hi > dataClustersPerGroup {
			hi = dataClustersPerGroup
		}
		sub := make([]byte, 0, subGroupSize*sha1.Size)
		for i := lo; i < hi; i++ {
			sub = append(sub, g.H0[i][:]...)
		}
		g.H1[s] = sha1.Sum(sub)
	}

	h1Packed := make([]byte, 0, h1Count*sha1.Size)
	for s := 0; s < h1Count; s++ {
		h1Packed = append(h1Packed, g.H1[s][:]...)
	}
	g.H2 = sha1.Sum(h1Packed)
	return g, nil
}

// PackHashRegion serializes a group's H0/H1/H2 tables into the 1 KiB
// on-disk hash-region layout: H0 table at hashH0Region, H1 table at
// hashH1Region, H2 at hashH2Region, padding zeroed.
func PackHashRegion(g *HashTreeGroup) []byte {
	region := make([]byte, hashRegionSize)
	for i := 0; i < dataClustersPerGroup; i++ {
		copy(region[hashH0Region+i*sha1.Size:], g.H0[i][:])
	}
	for s := 0; s < h1Count; s++ {
		copy(region[hashH1Region+s*sha1.Size:], g.H1[s][:])
	}
	copy(region[hashH2Region:], g.H2[:])
	return region
}

// EncryptGroup AES-CBC-encrypts a built group's hash region (IV=0) and
// data region (IV = last 16 bytes of the encrypted hash region), returning
// the 32 KiB encrypted on-disk group.
func EncryptGroup(titleKey []byte, g *HashTreeGroup) ([]byte, error) {
	block, err := aes.NewCipher(titleKey)
	if err != nil {
		return nil, err
	}

	region := PackHashRegion(g)
	encRegion := make([]byte, len(region))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(encRegion, region)

	dataIV := encRegion[len(encRegion)-aes.BlockSize:]
	var plainData [dataClustersPerGroup * dataClusterSize]byte
	for i := 0; i < dataClustersPerGroup; i++ {
		copy(plainData[i*dataClusterSize:], g.Data[i][:])
	}
	encData := make([]byte, len(plainData))
	cipher.NewCBCEncrypter(block, dataIV).CryptBlocks(encData, plainData[:])

	out := make([]byte, 0, encGroupBytes)
	out = append(out, encRegion...)
	out = append(out, encData...)
	return out, nil
}

// ComputeH3 packs each group's H2 value into the partition-wide H3 table,
// which the caller writes at the partition's H3 offset.
func ComputeH3(groupH2s [][sha1.Size]byte) []byte {
	h3 := make([]byte, len(groupH2s)*sha1.Size)
	for i, h2 := range groupH2s {
		copy(h3[i*sha1.Size:], h2[:])
	}
	return h3
}

// ComputeH4 is the SHA-1 of the partition's full H3 table, stored as the
// content's hash in the TMD.
func ComputeH4(h3 []byte) [sha1.Size]byte {
	return sha1.Sum(h3)
}

// VerifyHashTreeGroup decrypts one encrypted group and checks its internal
// H0/H1/H2 consistency, then compares the derived H2 against expectedH3.
// expectedH3 must come from a separately stored copy of the partition's H3
// table (the one writeH3Table-style callers persist outside the group),
// never from the group being verified, or the comparison proves nothing.
// It returns the decrypted data clusters on success.
func VerifyHashTreeGroup(titleKey []byte, encGroup []byte, expectedH3 [sha1.Size]byte) ([dataClustersPerGroup][dataClusterSize]byte, error) {
	var out [dataClustersPerGroup][dataClusterSize]byte
	if len(encGroup) < hashRegionSize+dataClustersPerGroup*dataClusterSize {
		return out, fmt.Errorf("wii: encrypted group too short")
	}
	block, err := aes.NewCipher(titleKey)
	if err != nil {
		return out, err
	}

	region := make([]byte, hashRegionSize)
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(region, encGroup[:hashRegionSize])

	h0Table := region[hashH0Region : hashH0Region+dataClustersPerGroup*sha1.Size]
	h1Table := region[hashH1Region : hashH1Region+h1Count*sha1.Size]
	h2 := region[hashH2Region : hashH2Region+sha1.Size]

	for s := 0; s < h1Count; s++ {
		lo := s * subGroupSize
		hi := lo + subGroupSize
		if hi > dataClustersPerGroup {
			hi = dataClustersPerGroup
		}
		gotH1 := sha1.Sum(h0Table[lo*sha1.Size : hi*sha1.Size])
		if !ConstantTimeEqual(gotH1[:], h1Table[s*sha1.Size:(s+1)*sha1.Size]) {
			return out, fmt.Errorf("wii: H1 hash mismatch in sub-group %d", s)
		}
	}
	gotH2 := sha1.Sum(h1Table)
	if !ConstantTimeEqual(gotH2[:], h2) {
		return out, fmt.Errorf("wii: H2 hash mismatch")
	}
	if !ConstantTimeEqual(gotH2[:], expectedH3[:]) {
		return out, fmt.Errorf("wii: H3 hash mismatch")
	}

	dataIV := encGroup[hashRegionSize-aes.BlockSize : hashRegionSize]
	plainData := make([]byte, dataClustersPerGroup*dataClusterSize)
	cipher.NewCBCDecrypter(block, dataIV).CryptBlocks(plainData, encGroup[hashRegionSize:hashRegionSize+len(plainData)])

	for i := 0; i < dataClustersPerGroup; i++ {
		cluster := plainData[i*dataClusterSize : (i+1)*dataClusterSize]
		gotH0 := sha1.Sum(cluster)
		if !ConstantTimeEqual(gotH0[:], h0Table[i*sha1.Size:(i+1)*sha1.Size]) {
			return out, fmt.Errorf("wii: H0 hash mismatch in cluster %d", i)
		}
		copy(out[i][:], cluster)
	}
	return out, nil
}
