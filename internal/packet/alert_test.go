package packet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LoraFall/internal/model"
)

// bitwiseCRC8 is the shift-register form used as a reference for the table.
func bitwiseCRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ CRC8Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func TestCRC8(t *testing.T) {
	assert.Equal(t, byte(0xF4), CRC8([]byte("123456789")))
	assert.Equal(t, byte(0x00), CRC8(nil))

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i * 7)
	}
	for n := 0; n <= len(data); n += 13 {
		assert.Equal(t, bitwiseCRC8(data[:n]), CRC8(data[:n]), "length %d", n)
	}
}

func TestEncodeAlert_Layout(t *testing.T) {
	buf := make([]byte, 32)
	n, err := EncodeAlert(model.FallEvent{EpochMs: 110, PeakCentiG: 300, IdleMs: 700}, buf)
	require.NoError(t, err)
	require.Equal(t, FrameSize, n)

	want := []byte{0xFA, 0x01, 0x6E, 0x00, 0x00, 0x00, 0x2C, 0x01, 0xBC, 0x02}
	assert.Equal(t, want, buf[:10])
	assert.Equal(t, bitwiseCRC8(want), buf[10])
}

func TestEncodeAlert_BufferTooSmall(t *testing.T) {
	buf := make([]byte, FrameSize-1)
	n, err := EncodeAlert(model.FallEvent{EpochMs: 1}, buf)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Equal(t, 0, n)
	assert.Equal(t, make([]byte, FrameSize-1), buf, "buffer must be untouched")
}

func TestRoundTrip(t *testing.T) {
	events := []model.FallEvent{
		{},
		{EpochMs: 110, PeakCentiG: 300, IdleMs: 700},
		{EpochMs: 0xFFFFFFFF, PeakCentiG: -32768, IdleMs: 65535},
		{EpochMs: 0x01020304, PeakCentiG: 32767, IdleMs: 1},
	}
	for _, e := range events {
		buf := make([]byte, FrameSize)
		_, err := EncodeAlert(e, buf)
		require.NoError(t, err)

		got, err := DecodeAlert(buf)
		require.NoError(t, err)
		if diff := cmp.Diff(e, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDecodeAlert_RejectsEverySingleBitFlip(t *testing.T) {
	buf := make([]byte, FrameSize)
	_, err := EncodeAlert(model.FallEvent{EpochMs: 123456, PeakCentiG: 450, IdleMs: 720}, buf)
	require.NoError(t, err)

	for i := 0; i < FrameSize; i++ {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), buf...)
			corrupt[i] ^= 1 << bit
			_, err := DecodeAlert(corrupt)
			assert.Error(t, err, "byte %d bit %d", i, bit)
		}
	}
}

func TestDecodeAlert_Errors(t *testing.T) {
	valid := make([]byte, FrameSize)
	_, err := EncodeAlert(model.FallEvent{EpochMs: 5, PeakCentiG: 250, IdleMs: 700}, valid)
	require.NoError(t, err)

	withByte := func(i int, v byte) []byte {
		b := append([]byte(nil), valid...)
		b[i] = v
		return b
	}

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrShortFrame},
		{"truncated", valid[:FrameSize-1], ErrShortFrame},
		{"wrong type", withByte(0, 0xFB), ErrFrameType},
		{"wrong version", withByte(1, 0x02), ErrFrameVersion},
		{"bad crc", withByte(10, valid[10]^0xFF), ErrChecksum},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeAlert(tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecodeAlert_IgnoresTrailingBytes(t *testing.T) {
	buf := make([]byte, 20)
	e := model.FallEvent{EpochMs: 99, PeakCentiG: 222, IdleMs: 701}
	_, err := EncodeAlert(e, buf)
	require.NoError(t, err)
	buf[15] = 0xAA

	got, err := DecodeAlert(buf)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}
