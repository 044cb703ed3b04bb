// Package model defines shared configuration structures used to initialize the LoraFall system.
// It includes global settings, the sender node definition and the receiver definition.
package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Detector defaults taken from the wearable firmware.
const (
	DefaultPeakThresholdCentiG = 220
	DefaultIdleThresholdCentiG = 20
	DefaultIdleConfirmMs       = 700
	DefaultSampleRateHz        = 100
	DefaultStallGraceMs        = 100
)

// Pipeline timing defaults.
const (
	DefaultQueueCapacity    = 4
	DefaultTxTimeoutMs      = 100
	DefaultRxTimeoutMs      = 200
	DefaultPopTimeoutMs     = 50
	DefaultIdleBackoffMs    = 5
	DefaultRxBackoffMs      = 20
	DefaultStatusIntervalMs = 5000
)

// Config represents the root structure loaded from configs/config.yml.
// Either section may be omitted to run a single role.
type Config struct {
	Global   GlobalConfig    `yaml:"global"`
	Node     *NodeConfig     `yaml:"node"`
	Receiver *ReceiverConfig `yaml:"receiver"`
}

// GlobalConfig defines shared settings across the system.
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json or console
	Service   string `yaml:"service"`
}

// SerialConfig describes a serial port and its line settings.
type SerialConfig struct {
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
}

// RadioConfig selects a transceiver backend and its modem parameters.
type RadioConfig struct {
	Backend         string       `yaml:"backend"` // sim or serial
	Serial          SerialConfig `yaml:"serial"`
	FrequencyHz     uint32       `yaml:"frequency_hz"`
	SpreadingFactor int          `yaml:"spreading_factor"`
	BandwidthHz     int          `yaml:"bandwidth_hz"`
	CodingRate      int          `yaml:"coding_rate"` // denominator of 4/x
	TxPowerDbm      int          `yaml:"tx_power_dbm"`
	CRC             *bool        `yaml:"crc"`
	SyncWord        int          `yaml:"sync_word"`
	PreambleLength  int          `yaml:"preamble_length"`
}

// ImuConfig selects the accelerometer source.
type ImuConfig struct {
	Source     string       `yaml:"source"` // scenario or serial
	Serial     SerialConfig `yaml:"serial"`
	WireFormat string       `yaml:"wire_format"` // csv or json
	Scenario   string       `yaml:"scenario"`
	Loop       bool         `yaml:"loop"`
}

// FallConfig holds the detector thresholds and timing.
type FallConfig struct {
	PeakThresholdCentiG int16  `yaml:"peak_threshold_centi_g"`
	IdleThresholdCentiG int16  `yaml:"idle_threshold_centi_g"`
	IdleConfirmMs       uint16 `yaml:"idle_confirm_ms"`
	SampleRateHz        uint16 `yaml:"sample_rate_hz"`
	StallGraceMs        uint16 `yaml:"stall_grace_ms"`
}

// DefaultFallConfig returns the firmware detector settings.
func DefaultFallConfig() FallConfig {
	return FallConfig{
		PeakThresholdCentiG: DefaultPeakThresholdCentiG,
		IdleThresholdCentiG: DefaultIdleThresholdCentiG,
		IdleConfirmMs:       DefaultIdleConfirmMs,
		SampleRateHz:        DefaultSampleRateHz,
		StallGraceMs:        DefaultStallGraceMs,
	}
}

// UnmarshalYAML starts from the firmware defaults so that only the keys
// present in the document are overridden. An explicit 0 is kept.
func (f *FallConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain FallConfig
	p := plain(DefaultFallConfig())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = FallConfig(p)
	return nil
}

// NodeConfig defines the sender (wearable) node.
type NodeConfig struct {
	ID               string      `yaml:"id"`
	Imu              ImuConfig   `yaml:"imu"`
	Radio            RadioConfig `yaml:"radio"`
	Fall             FallConfig  `yaml:"fall"`
	QueueCapacity    int         `yaml:"queue_capacity"`
	TxTimeoutMs      int         `yaml:"tx_timeout_ms"`
	PopTimeoutMs     int         `yaml:"pop_timeout_ms"`
	IdleBackoffMs    int         `yaml:"idle_backoff_ms"`
	StatusIntervalMs int         `yaml:"status_interval_ms"`
}

// RedisConfig points the receiver at a Redis stream; empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

// MQTTConfig points the receiver at an MQTT broker; empty Broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// ReceiverConfig defines the receiver (base station) node.
type ReceiverConfig struct {
	ID               string      `yaml:"id"`
	Radio            RadioConfig `yaml:"radio"`
	RxTimeoutMs      int         `yaml:"rx_timeout_ms"`
	RxBackoffMs      int         `yaml:"rx_backoff_ms"`
	DeliveryCapacity int         `yaml:"delivery_capacity"`
	HTTPAddr         string      `yaml:"http_addr"`
	Redis            RedisConfig `yaml:"redis"`
	MQTT             MQTTConfig  `yaml:"mqtt"`
}

// Normalize fills unset fields with defaults and validates the configuration.
func (c *Config) Normalize() error {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = "info"
	}
	if c.Global.LogFormat == "" {
		c.Global.LogFormat = "console"
	}
	if c.Global.Service == "" {
		c.Global.Service = "lorafall"
	}
	if c.Node == nil && c.Receiver == nil {
		return fmt.Errorf("config: neither node nor receiver is defined")
	}
	if c.Node != nil {
		if err := c.Node.Normalize(); err != nil {
			return fmt.Errorf("config: node: %w", err)
		}
	}
	if c.Receiver != nil {
		if err := c.Receiver.Normalize(); err != nil {
			return fmt.Errorf("config: receiver: %w", err)
		}
	}
	return nil
}

// Normalize applies node defaults.
func (n *NodeConfig) Normalize() error {
	if n.ID == "" {
		n.ID = "node-1"
	}
	if err := n.Radio.Normalize(); err != nil {
		return err
	}
	if err := n.Imu.Normalize(); err != nil {
		return err
	}
	// A fall section present in YAML was pre-filled by UnmarshalYAML, so an
	// all-zero block means the section was omitted.
	if n.Fall == (FallConfig{}) {
		n.Fall = DefaultFallConfig()
	}
	setDefault(&n.QueueCapacity, DefaultQueueCapacity)
	setDefault(&n.TxTimeoutMs, DefaultTxTimeoutMs)
	setDefault(&n.PopTimeoutMs, DefaultPopTimeoutMs)
	setDefault(&n.IdleBackoffMs, DefaultIdleBackoffMs)
	setDefault(&n.StatusIntervalMs, DefaultStatusIntervalMs)
	return nil
}

// Normalize applies receiver defaults.
func (r *ReceiverConfig) Normalize() error {
	if r.ID == "" {
		r.ID = "rx-1"
	}
	if err := r.Radio.Normalize(); err != nil {
		return err
	}
	setDefault(&r.RxTimeoutMs, DefaultRxTimeoutMs)
	setDefault(&r.RxBackoffMs, DefaultRxBackoffMs)
	setDefault(&r.DeliveryCapacity, DefaultQueueCapacity)
	if r.Redis.Stream == "" {
		r.Redis.Stream = "lorafall:alerts"
	}
	if r.MQTT.Topic == "" {
		r.MQTT.Topic = "lorafall/alerts"
	}
	if r.MQTT.ClientID == "" {
		r.MQTT.ClientID = "lorafall-" + r.ID
	}
	return nil
}

// Normalize applies radio defaults matching the firmware link settings.
func (r *RadioConfig) Normalize() error {
	r.Backend = strings.ToLower(strings.TrimSpace(r.Backend))
	switch r.Backend {
	case "":
		r.Backend = "sim"
	case "sim":
	case "serial":
		if r.Serial.Device == "" {
			return fmt.Errorf("radio: serial backend requires serial.device")
		}
	default:
		return fmt.Errorf("radio: unknown backend %q", r.Backend)
	}
	if r.FrequencyHz == 0 {
		r.FrequencyHz = 915000000
	}
	setDefault(&r.SpreadingFactor, 7)
	setDefault(&r.BandwidthHz, 125000)
	setDefault(&r.CodingRate, 5)
	setDefault(&r.TxPowerDbm, 15)
	setDefault(&r.SyncWord, 0x12)
	setDefault(&r.PreambleLength, 8)
	if r.SyncWord < 0 || r.SyncWord > 0xFF {
		return fmt.Errorf("radio: sync_word %d does not fit in one byte", r.SyncWord)
	}
	if r.PreambleLength < 0 || r.PreambleLength > 0xFFFF {
		return fmt.Errorf("radio: preamble_length %d outside 0-65535", r.PreambleLength)
	}
	setDefault(&r.Serial.Baud, 115200)
	if r.CRC == nil {
		on := true
		r.CRC = &on
	}
	return nil
}

// Normalize applies IMU defaults.
func (i *ImuConfig) Normalize() error {
	i.Source = strings.ToLower(strings.TrimSpace(i.Source))
	switch i.Source {
	case "":
		i.Source = "scenario"
	case "scenario":
	case "serial":
		if i.Serial.Device == "" {
			return fmt.Errorf("imu: serial source requires serial.device")
		}
	default:
		return fmt.Errorf("imu: unknown source %q", i.Source)
	}
	if i.WireFormat == "" {
		i.WireFormat = "csv"
	}
	if i.Scenario == "" {
		i.Scenario = "fall"
	}
	setDefault(&i.Serial.Baud, 115200)
	return nil
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
