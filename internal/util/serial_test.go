package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"LoraFall/internal/model"
)

func TestSerialMode_Defaults(t *testing.T) {
	mode, err := SerialMode(model.SerialConfig{Device: "/dev/null"})
	require.NoError(t, err)
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}

func TestSerialMode_Explicit(t *testing.T) {
	mode, err := SerialMode(model.SerialConfig{Baud: 9600, DataBits: 7, StopBits: 2, Parity: "even"})
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, 7, mode.DataBits)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)
}

func TestNormalizeSerial_Invalid(t *testing.T) {
	for _, cfg := range []model.SerialConfig{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := NormalizeSerial(cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}
