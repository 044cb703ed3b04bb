// Package model defines the records that flow through the fall alert pipeline.
package model

import "time"

// AccelSample is one three-axis accelerometer reading in hundredths of g.
type AccelSample struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// FallEvent is a confirmed fall episode produced by the detector.
// EpochMs is the detector's virtual time of the impact and wraps at 2^32.
type FallEvent struct {
	EpochMs    uint32 `json:"epoch_ms"`
	PeakCentiG int16  `json:"peak_centi_g"`
	IdleMs     uint16 `json:"idle_ms"`
}

// Alert is a fall event as delivered by the receiver to its consumers.
type Alert struct {
	ID         string    `json:"id"`
	Receiver   string    `json:"receiver"`
	Event      FallEvent `json:"event"`
	RSSI       int       `json:"rssi_dbm"`
	SNR        float64   `json:"snr_db"`
	ReceivedAt time.Time `json:"received_at"`
}
