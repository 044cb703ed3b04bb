package lora

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LoraFall/internal/timeutil"
)

func TestSimChip_IrqFlagsWriteOneToClear(t *testing.T) {
	c := NewSimChip(nil)
	c.mu.Lock()
	c.raiseLocked(IrqTxDone | IrqRxDone)
	c.mu.Unlock()

	require.NoError(t, c.WriteRegister(RegIrqFlags, IrqTxDone))
	assert.Equal(t, IrqRxDone, c.Peek(RegIrqFlags))
	require.NoError(t, c.WriteRegister(RegIrqFlags, 0xFF))
	assert.Equal(t, byte(0), c.Peek(RegIrqFlags))
}

func TestSimChip_FifoPointerAutoIncrements(t *testing.T) {
	c := NewSimChip(nil)
	require.NoError(t, c.WriteRegister(RegFifoAddrPtr, 0xFE))
	require.NoError(t, c.WriteBurst(RegFifo, []byte{1, 2, 3}))
	assert.Equal(t, byte(0x01), c.Peek(RegFifoAddrPtr), "pointer wraps at 256")

	require.NoError(t, c.WriteRegister(RegFifoAddrPtr, 0xFE))
	buf := make([]byte, 3)
	require.NoError(t, c.ReadBurst(RegFifo, buf))
	assert.Equal(t, []byte{1, 2, 3}, buf)
}

func TestSimChip_ResetRestoresDefaults(t *testing.T) {
	c := NewSimChip(nil)
	require.NoError(t, c.WriteRegister(RegSyncWord, 0x34))
	require.NoError(t, c.WriteRegister(RegOpMode, ModeLongRange|ModeStdby))
	require.NoError(t, c.Reset())
	assert.Equal(t, byte(0x12), c.Peek(RegSyncWord))
	assert.Equal(t, byte(0x09), c.Peek(RegOpMode))
}

func TestEther_FrequencyMustMatch(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	ether := NewEther()
	txChip, rxChip := NewSimChip(ether), NewSimChip(ether)
	tx, rx := NewRadio(txChip, clock, nil), NewRadio(rxChip, clock, nil)

	require.NoError(t, tx.Init(DefaultConfig()))
	cfg := DefaultConfig()
	cfg.FrequencyHz = 868100000
	require.NoError(t, rx.Init(cfg))

	require.NoError(t, tx.Send([]byte("wrong channel"), 100*time.Millisecond))
	assert.Equal(t, 0, rxChip.Pending())
	_, err := rx.Receive(make([]byte, 16), 0)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestEther_ClosedChipStopsHearing(t *testing.T) {
	ether := NewEther()
	tx, rx := NewSimChip(ether), NewSimChip(ether)
	require.NoError(t, rx.Close())

	require.NoError(t, tx.WriteRegister(RegPayloadLength, 1))
	require.NoError(t, tx.WriteRegister(RegOpMode, ModeLongRange|ModeTx))
	assert.Len(t, tx.Transmitted(), 1)
	assert.Equal(t, 0, rx.Pending())
	assert.Equal(t, IrqTxDone, tx.Peek(RegIrqFlags))
}

func TestSimChip_InboxBounded(t *testing.T) {
	ether := NewEther()
	tx, rx := NewSimChip(ether), NewSimChip(ether)
	require.NoError(t, tx.WriteRegister(RegPayloadLength, 1))
	for i := 0; i < simInboxDepth+5; i++ {
		require.NoError(t, tx.WriteRegister(RegOpMode, ModeLongRange|ModeTx))
	}
	assert.Equal(t, simInboxDepth, rx.Pending())
}
