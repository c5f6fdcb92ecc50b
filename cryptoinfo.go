package rvth

import "github.com/gcwii/rvth/wii"

// refreshCryptoInfo decodes entry's game partition ticket and TMD (if it
// has one) and fills in the crypto/signature fields so they are available
// on every opened Wii bank without first calling Extract or
// RecryptPartitions. Non-Wii banks and banks with no readable game
// partition are left untouched.
func refreshCryptoInfo(entry *BankEntry) {
	if entry.Type != BankWiiSL && entry.Type != BankWiiDL {
		return
	}
	pte := findGamePartition(entry)
	if pte == nil {
		return
	}

	headerLBAs := uint32(partitionHeaderSizeBytes / LBASize)
	buf := make([]byte, partitionHeaderSizeBytes)
	if _, err := entry.reader.ReadLBA(buf, pte.LBAStart, headerLBAs); err != nil {
		return
	}

	ticket, err := wii.DecodeTicket(buf[partTicketOff:])
	if err != nil {
		return
	}
	tmdSize := beUint32(buf[partTMDSizeOff : partTMDSizeOff+4])
	tmdOffset := beUint32(buf[partTMDOffsetOff : partTMDOffsetOff+4]) << 2
	if uint64(tmdOffset)+uint64(tmdSize) > uint64(len(buf)) {
		return
	}
	tmd, err := wii.DecodeTMD(buf[tmdOffset : tmdOffset+tmdSize])
	if err != nil {
		return
	}

	// Byte 0x61 of the disc header is the "disable disc encryption" flag
	// devkit discs set; such an image stores its title key in the clear
	// and its data as 31-KiB plaintext groups, whatever issuer the ticket
	// happens to carry.
	if entry.DiscHeader != nil && entry.DiscHeader.Raw[0x61] != 0 {
		entry.CryptoType = wii.CryptoNone
	} else {
		entry.CryptoType = wii.CryptoTypeFromIssuer(ticket.Issuer, ticket.CommonKeyIndex)
	}
	entry.SigType = wii.SigTypeRSA2048SHA1
	entry.SigStatusTicket = wii.VerifyTicketSignature(ticket)
	entry.SigStatusTMD = wii.VerifyTMDSignature(tmd)
	if ios, ok := tmd.IOSVersion(); ok {
		entry.IOSVersion = ios
	}
	entry.Ticket = ticket.Raw
	entry.TMD = tmd.Raw
}
