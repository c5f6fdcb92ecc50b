package wad

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcwii/rvth/wii"
)

func TestIdentifyStandardWAD(t *testing.T) {
	in := &Layout{
		Type:          TypeInstallable,
		CertChainSize: 0xA00,
		CRLSize:       0,
		TicketSize:    uint32(wii.TicketSize),
		TMDSize:       0x208,
		DataSize:      0x40000,
		FooterSize:    0x80,
	}
	l, err := Identify(in.Encode())
	require.NoError(t, err)

	assert.False(t, l.EarlyDevkit)
	assert.Equal(t, "Is", l.TypeString())
	assert.Equal(t, uint32(HeaderSize), l.CertChainOffset)
	// Every section starts on a 64-byte boundary.
	assert.Equal(t, uint32(0), l.CRLOffset%sectionAlign)
	assert.Equal(t, uint32(0), l.TicketOffset%sectionAlign)
	assert.Equal(t, uint32(0), l.TMDOffset%sectionAlign)
	assert.Equal(t, uint32(0), l.DataOffset%sectionAlign)
	assert.Equal(t, uint32(0), l.FooterOffset%sectionAlign)
	assert.Greater(t, l.TotalSize, l.FooterOffset)
}

func TestIdentifyRejectsBadHeaderSize(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], 0x40)
	binary.BigEndian.PutUint32(buf[4:8], TypeInstallable)
	_, err := Identify(buf)
	assert.Error(t, err)

	_, err = Identify(make([]byte, 8))
	assert.Error(t, err)
}

func TestIdentifyEarlyDevkit(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], HeaderSize)
	binary.BigEndian.PutUint32(buf[4:8], 0x12345678) // no known type magic
	binary.BigEndian.PutUint32(buf[8:12], 0xA00)     // cert chain
	binary.BigEndian.PutUint32(buf[16:20], uint32(wii.TicketSize))
	binary.BigEndian.PutUint32(buf[20:24], 0x208)

	l, err := Identify(buf)
	require.NoError(t, err)
	assert.True(t, l.EarlyDevkit)
	assert.Equal(t, "Early Devkit", l.TypeString())

	// The early layout puts the certificate chain after the ticket.
	assert.Equal(t, uint32(HeaderSize), l.TicketOffset)
	assert.Greater(t, l.CertChainOffset, l.TicketOffset)
	assert.Greater(t, l.TMDOffset, l.CertChainOffset)
}

func TestIdentifyUnrecognized(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], HeaderSize)
	binary.BigEndian.PutUint32(buf[4:8], 0x12345678)
	binary.BigEndian.PutUint32(buf[16:20], 0x100) // not the ticket struct size
	_, err := Identify(buf)
	assert.Error(t, err)
}
