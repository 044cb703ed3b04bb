package lora

// SX1276 register map (LoRa mode).
const (
	RegFifo              byte = 0x00
	RegOpMode            byte = 0x01
	RegFrfMsb            byte = 0x06
	RegFrfMid            byte = 0x07
	RegFrfLsb            byte = 0x08
	RegPaConfig          byte = 0x09
	RegOcp               byte = 0x0B
	RegLna               byte = 0x0C
	RegFifoAddrPtr       byte = 0x0D
	RegFifoTxBaseAddr    byte = 0x0E
	RegFifoRxBaseAddr    byte = 0x0F
	RegFifoRxCurrentAddr byte = 0x10
	RegIrqFlagsMask      byte = 0x11
	RegIrqFlags          byte = 0x12
	RegRxNbBytes         byte = 0x13
	RegPktSnrValue       byte = 0x19
	RegPktRssiValue      byte = 0x1A
	RegModemConfig1      byte = 0x1D
	RegModemConfig2      byte = 0x1E
	RegPreambleMsb       byte = 0x20
	RegPreambleLsb       byte = 0x21
	RegPayloadLength     byte = 0x22
	RegHopPeriod         byte = 0x24
	RegModemConfig3      byte = 0x26
	RegDetectOptimize    byte = 0x31
	RegDetectionThresh   byte = 0x37
	RegSyncWord          byte = 0x39
	RegDioMapping1       byte = 0x40
	RegVersion           byte = 0x42
	RegPaDac             byte = 0x4D

	// writeFlag is OR-ed into the address byte of a register write.
	writeFlag byte = 0x80
)

// RegOpMode bits.
const (
	ModeLongRange byte = 0x80
	ModeSleep     byte = 0x00
	ModeStdby     byte = 0x01
	ModeTx        byte = 0x03
	ModeRxCont    byte = 0x05
	ModeRxSingle  byte = 0x06
	modeMask      byte = 0x07
)

// RegIrqFlags bits.
const (
	IrqCadDetected      byte = 0x01
	IrqFhssChange       byte = 0x02
	IrqCadDone          byte = 0x04
	IrqTxDone           byte = 0x08
	IrqValidHeader      byte = 0x10
	IrqPayloadCrcError  byte = 0x20
	IrqRxDone           byte = 0x40
	IrqRxTimeout        byte = 0x80

	irqReceiveMask = IrqRxDone | IrqRxTimeout | IrqPayloadCrcError
	irqEnabledMask = IrqTxDone | irqReceiveMask
)

const (
	// ChipVersionSX1276 is the silicon revision reported by RegVersion.
	ChipVersionSX1276 byte = 0x12

	// MaxPayload is the largest LoRa payload the FIFO accepts.
	MaxPayload = 255

	fifoTxBase byte = 0x80
	fifoRxBase byte = 0x00

	paBoost    byte = 0x80
	paDacBoost byte = 0x84
	ocpOn100mA byte = 0x2B
	lnaMaxGain byte = 0x23
	agcAutoOn  byte = 0x04
	lowDataOpt byte = 0x08
	crcOn      byte = 0x04

	detectOptimizeSF7to12 byte = 0x03
	detectThreshSF7to12   byte = 0x0A

	crystalHz = 32000000
)
