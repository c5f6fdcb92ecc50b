package rvth

// BankType classifies the content of a bank or standalone image.
type BankType int

const (
	BankEmpty BankType = iota
	BankGCN
	BankWiiSL
	BankWiiDL
	BankWiiDLBank2 // synthetic: second physical bank of a BankWiiDL pair
	BankUnknown
)

func (t BankType) String() string {
	switch t {
	case BankEmpty:
		return "Empty"
	case BankGCN:
		return "GameCube"
	case BankWiiSL:
		return "Wii (single-layer)"
	case BankWiiDL:
		return "Wii (dual-layer)"
	case BankWiiDLBank2:
		return "Wii (dual-layer, bank 2)"
	default:
		return "Unknown"
	}
}

const (
	wiiMagicOffset = 0x18
	gcnMagicOffset = 0x1c
	wiiMagic       = 0x5D1C9EA3
	gcnMagic       = 0xC2339F3D

	discIDOffset    = 0x0
	discIDLen       = 6
	gameTitleOffset = 0x20
	gameTitleLen    = 64
)

// DiscHeader is the decoded first 512 bytes of any disc image.
type DiscHeader struct {
	DiscID    string
	GameTitle string
	MagicWii  uint32
	MagicGCN  uint32
	Raw       [LBASize]byte
}

// identifyDiscHeader classifies a 512-byte block: exactly
// one of the two magics should be set for a real disc, and their absence
// means an empty/zeroed bank.
func identifyDiscHeader(buf []byte) (BankType, *DiscHeader) {
	if len(buf) < LBASize {
		return BankEmpty, nil
	}

	hdr := &DiscHeader{
		DiscID:    trimString(buf[discIDOffset : discIDOffset+discIDLen]),
		GameTitle: trimString(buf[gameTitleOffset : gameTitleOffset+gameTitleLen]),
		MagicWii:  beUint32(buf[wiiMagicOffset : wiiMagicOffset+4]),
		MagicGCN:  beUint32(buf[gcnMagicOffset : gcnMagicOffset+4]),
	}
	copy(hdr.Raw[:], buf[:LBASize])

	switch {
	case hdr.MagicWii == wiiMagic:
		return BankWiiSL, hdr
	case hdr.MagicGCN == gcnMagic:
		return BankGCN, hdr
	default:
		return BankEmpty, nil
	}
}

// NHCDBankWiiSLSizeRVTRLBA is the single-layer retail disc size threshold,
// in LBAs (a DVD5's 4,699,979,776 bytes); a Wii-SL bank larger than this is
// actually a dual-layer image whose second bank follows.
const NHCDBankWiiSLSizeRVTRLBA = 9179648

// regionTable maps the region letter of a game code to a region name.
var regionTable = map[byte]string{
	'E': "NTSC-U",
	'J': "NTSC-J",
	'K': "NTSC-K",
	'W': "NTSC-T",
	'P': "PAL",
	'D': "PAL",
	'F': "PAL",
	'I': "PAL",
	'S': "PAL",
	'U': "PAL",
	'X': "PAL",
	'Y': "PAL",
}

// RegionFromDiscID returns a human-readable region name for a 6-byte disc
// ID. The region letter is the fourth character of the game code
// ("RSPE01" is NTSC-U); anything shorter or unrecognized is "Unknown".
func RegionFromDiscID(discID string) string {
	if len(discID) < 4 {
		return "Unknown"
	}
	if r, ok := regionTable[discID[3]]; ok {
		return r
	}
	return "Unknown"
}
