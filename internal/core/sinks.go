package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"LoraFall/internal/model"
)

// Sink consumes alerts on the receiver.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, alert model.Alert) error
}

// LogSink writes every alert to the log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging on logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "sink.log"))}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, a model.Alert) error {
	s.logger.Warn("FALL ALERT",
		zap.String("alert_id", a.ID),
		zap.String("receiver", a.Receiver),
		zap.Uint32("epoch_ms", a.Event.EpochMs),
		zap.Int16("peak_centi_g", a.Event.PeakCentiG),
		zap.Uint16("idle_ms", a.Event.IdleMs),
		zap.Int("rssi_dbm", a.RSSI),
		zap.Float64("snr_db", a.SNR),
		zap.Time("received_at", a.ReceivedAt),
	)
	return nil
}

// RedisStreamSink appends alerts to a Redis stream with XADD. Each entry
// carries the event fields flat plus the full alert as JSON under "data".
type RedisStreamSink struct {
	client *redis.Client
	stream string
}

// NewRedisStreamSink returns a sink writing to stream through client.
func NewRedisStreamSink(client *redis.Client, stream string) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream}
}

// DialRedisStreamSink connects to the server in cfg and checks it answers.
func DialRedisStreamSink(ctx context.Context, cfg model.RedisConfig) (*RedisStreamSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return NewRedisStreamSink(client, cfg.Stream), nil
}

// Name implements Sink.
func (s *RedisStreamSink) Name() string { return "redis:" + s.stream }

// Deliver implements Sink.
func (s *RedisStreamSink) Deliver(ctx context.Context, a model.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":           a.ID,
			"receiver":     a.Receiver,
			"epoch_ms":     strconv.FormatUint(uint64(a.Event.EpochMs), 10),
			"peak_centi_g": strconv.Itoa(int(a.Event.PeakCentiG)),
			"idle_ms":      strconv.Itoa(int(a.Event.IdleMs)),
			"rssi_dbm":     strconv.Itoa(a.RSSI),
			"data":         string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStreamSink) Close() error { return s.client.Close() }

// Publisher is the part of an MQTT client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// pahoPublisher adapts a paho client to Publisher.
type pahoPublisher struct {
	client mqtt.Client
}

// DialMQTT connects to the broker in cfg.
func DialMQTT(cfg model.MQTTConfig) (Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &pahoPublisher{client: client}, nil
}

func (p *pahoPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (p *pahoPublisher) Disconnect() { p.client.Disconnect(250) }

// MQTTSink publishes each alert as JSON.
type MQTTSink struct {
	pub   Publisher
	topic string
	qos   byte
}

// NewMQTTSink returns a sink publishing on topic.
func NewMQTTSink(pub Publisher, topic string, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic, qos: qos}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt:" + s.topic }

// Deliver implements Sink. The receiver id is appended to the topic so
// subscribers can filter per base station.
func (s *MQTTSink) Deliver(_ context.Context, a model.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.pub.Publish(s.topic+"/"+a.Receiver, s.qos, false, payload)
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	s.pub.Disconnect()
	return nil
}
