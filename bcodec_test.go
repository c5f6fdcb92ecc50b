package rvth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestampRoundTrip(t *testing.T) {
	buf := make([]byte, nhcdEntryTimestampLen)
	when := time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC).Unix()

	encodeTimestamp(buf, when)
	assert.Equal(t, "20230405060708", string(buf))
	assert.Equal(t, when, decodeTimestamp(buf))
}

func TestTimestampUnset(t *testing.T) {
	buf := make([]byte, nhcdEntryTimestampLen)
	encodeTimestamp(buf, -1)
	assert.Equal(t, make([]byte, nhcdEntryTimestampLen), buf)
	assert.Equal(t, int64(-1), decodeTimestamp(buf))
}

func TestTimestampGarbage(t *testing.T) {
	assert.Equal(t, int64(-1), decodeTimestamp([]byte("not-a-date....")))
}

func TestPadTrimString(t *testing.T) {
	buf := make([]byte, 8)
	padString(buf, "abc")
	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0, 0, 0, 0}, buf)
	assert.Equal(t, "abc", trimString(buf))

	padString(buf, "longer than the field")
	assert.Equal(t, "longer t", trimString(buf))
}

func TestIsBlockEmpty(t *testing.T) {
	buf := make([]byte, 4096)
	assert.True(t, isBlockEmpty(buf))
	buf[4095] = 1
	assert.False(t, isBlockEmpty(buf))
}

func TestLBAConversions(t *testing.T) {
	assert.Equal(t, int64(0x300*512), lbaToBytes(0x300))
	assert.Equal(t, uint32(3), bytesToLBA(3*512+100))
}
